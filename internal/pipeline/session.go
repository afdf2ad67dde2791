package pipeline

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/transform"
)

// Artifact file names inside an item's staging directory. The original keeps
// its upload extension and is recorded on the item row at ingest.
const (
	workingArtifact = "working.png"
	maskArtifact    = "mask.png"
	grayArtifact    = "gray.png"
)

// session holds the in-memory pixel products of one item under edit. All
// access goes through the mutex; the controller locks it for the duration of
// an operation, so transitions for one item are strictly sequential while
// different items proceed concurrently.
//
// The buffers form a derivation chain: original (ingest) → working (crop
// product) → mask (segmentation composite) → normWorking/normMask (square
// render, kept in lockstep) → gray (grayscale worker output). Overwriting an
// upstream product drops everything derived from it; backward stage moves
// leave the chain untouched.
type session struct {
	mu sync.Mutex

	id  int64
	dir string

	state State

	original    image.Image
	working     image.Image
	mask        image.Image
	normWorking image.Image
	normMask    image.Image
	gray        image.Image
}

func (s *session) workingPath() string { return filepath.Join(s.dir, workingArtifact) }
func (s *session) maskPath() string    { return filepath.Join(s.dir, maskArtifact) }
func (s *session) grayPath() string    { return filepath.Join(s.dir, grayArtifact) }

// baseBuffer is the segmentation and normalize input: the crop product when
// one exists, the original otherwise.
func (s *session) baseBuffer() image.Image {
	if s.working != nil {
		return s.working
	}
	return s.original
}

// viewBuffer returns the buffer the operator is looking at on the given
// stage. Later products cached by a backward move do not leak into earlier
// stage views.
func (s *session) viewBuffer(stage queue.Stage) image.Image {
	switch stage {
	case queue.StagePreprocess:
		return s.original
	case queue.StageAnnotate, queue.StageNormalize:
		return s.baseBuffer()
	case queue.StageGrayscale:
		if s.normWorking != nil {
			return s.normWorking
		}
		return s.baseBuffer()
	default:
		if s.gray != nil {
			return s.gray
		}
		if s.normWorking != nil {
			return s.normWorking
		}
		return s.baseBuffer()
	}
}

// maskBuffer returns the mask product visible on the given stage.
func (s *session) maskBuffer(stage queue.Stage) image.Image {
	switch stage {
	case queue.StageGrayscale, queue.StageReview:
		if s.normMask != nil {
			return s.normMask
		}
	}
	return s.mask
}

// finalMask is the artifact persisted at save time.
func (s *session) finalMask() image.Image {
	if s.normMask != nil {
		return s.normMask
	}
	return s.mask
}

// dropSegmentation discards the mask and every later product, removing their
// persisted artifacts best-effort.
func (s *session) dropSegmentation(item *queue.Item) {
	s.mask = nil
	s.state.Segmentation = nil
	if item.MaskFile != "" {
		_ = os.Remove(item.MaskFile)
		item.MaskFile = ""
	}
	s.dropNormalize(item)
}

// dropNormalize discards the normalize products and every later product.
func (s *session) dropNormalize(item *queue.Item) {
	s.normWorking = nil
	s.normMask = nil
	s.state.Normalize = nil
	s.dropGrayscale(item)
}

// dropGrayscale discards the grayscale product.
func (s *session) dropGrayscale(item *queue.Item) {
	s.gray = nil
	s.state.GrayscaleMode = ""
	if item.GrayscaleFile != "" {
		_ = os.Remove(item.GrayscaleFile)
		item.GrayscaleFile = ""
	}
}

// writeArtifact encodes a buffer as PNG into the session directory.
func (s *session) writeArtifact(path string, img image.Image) error {
	data, err := transform.EncodePNG(img)
	if err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "encode artifact", fmt.Sprintf("encode %s", filepath.Base(path)), err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "write artifact", "create item directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "pipeline", "write artifact", fmt.Sprintf("write %s", filepath.Base(path)), err)
	}
	return nil
}

// restore rebuilds a session from the item row and its staged artifacts.
// Deterministic normalize products are replayed from the recorded options;
// worker products (mask, grayscale) are loaded from disk.
func restore(item *queue.Item, dir string) (*session, error) {
	state, err := Unmarshal(item.SessionJSON)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "restore session", "stored session state is unreadable", err)
	}

	s := &session{id: item.ID, dir: dir, state: state}

	if s.original, err = loadArtifact(item.OriginalFile, "original image"); err != nil {
		return nil, err
	}
	if item.WorkingFile != "" {
		if s.working, err = loadArtifact(item.WorkingFile, "working image"); err != nil {
			return nil, err
		}
	}
	var storedMask image.Image
	if item.MaskFile != "" {
		if storedMask, err = loadArtifact(item.MaskFile, "mask image"); err != nil {
			return nil, err
		}
	}
	if item.GrayscaleFile != "" {
		if s.gray, err = loadArtifact(item.GrayscaleFile, "grayscale image"); err != nil {
			return nil, err
		}
	}

	if state.Finalized && state.Normalize != nil {
		// A finalized session stored the post-normalize mask; replay the
		// working render and slot the stored mask beside it.
		s.normMask = storedMask
		if replayed, err := replayNormalize(s.baseBuffer(), state.Normalize); err == nil {
			s.normWorking = replayed
		} else {
			return nil, err
		}
	} else {
		s.mask = storedMask
		if state.Normalize != nil {
			if s.normWorking, err = replayNormalize(s.baseBuffer(), state.Normalize); err != nil {
				return nil, err
			}
			if storedMask != nil {
				if s.normMask, err = replayNormalize(storedMask, state.Normalize); err != nil {
					return nil, err
				}
			}
		}
	}
	// Editing resumes; the finalized marker is re-set by the next save.
	s.state.Finalized = false
	return s, nil
}

func replayNormalize(img image.Image, run *NormalizeRun) (image.Image, error) {
	out, err := transform.Apply(img, transform.Options{
		TargetSize:     run.TargetSize,
		Rotation:       run.Rotation,
		FlipHorizontal: run.FlipHorizontal,
		FlipVertical:   run.FlipVertical,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "pipeline", "restore session", "replay normalize pass", err)
	}
	return out, nil
}

func loadArtifact(path, description string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "pipeline", "load artifact", fmt.Sprintf("read %s", description), err)
	}
	img, err := transform.DecodeBytes(data)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "pipeline", "load artifact", fmt.Sprintf("decode %s", description), err)
	}
	return img, nil
}
