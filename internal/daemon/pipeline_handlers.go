package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"treadmark/internal/api"
	"treadmark/internal/pipeline"
	"treadmark/internal/queue"
	"treadmark/internal/services"
	"treadmark/internal/transform"
	"treadmark/internal/viewport"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger files spill to temp storage.
const maxUploadMemory = 8 << 20

type cropRequest struct {
	X0          float64 `json:"x0"`
	Y0          float64 `json:"y0"`
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	StageWidth  int     `json:"stageWidth,omitempty"`
	StageHeight int     `json:"stageHeight,omitempty"`
}

type segmentRequest struct {
	Geometry    json.RawMessage `json:"geometry"`
	StageWidth  int             `json:"stageWidth,omitempty"`
	StageHeight int             `json:"stageHeight,omitempty"`
}

type normalizeRequest struct {
	TargetSize     int  `json:"targetSize"`
	Rotation       int  `json:"rotation"`
	FlipHorizontal bool `json:"flipHorizontal"`
	FlipVertical   bool `json:"flipVertical"`
}

type grayscaleRequest struct {
	Mode string `json:"mode"`
}

type backRequest struct {
	Stage string `json:"stage"`
}

type saveRequest struct {
	Label       string `json:"label"`
	DatasetRoot string `json:"datasetRoot,omitempty"`
}

type uploadResponse struct {
	Item      api.QueueItem `json:"item"`
	Duplicate bool          `json:"duplicate"`
}

// handleUpload accepts a multipart image upload, stages it under the staging
// directory, and enqueues it for ingest.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart payload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := uploadExtensions[ext]; !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported image extension "+ext)
		return
	}

	uploadDir := filepath.Join(s.daemon.cfg.Paths.StagingDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		s.writeError(w, http.StatusInternalServerError, "prepare upload dir: "+err.Error())
		return
	}
	stagedPath := filepath.Join(uploadDir, uuid.NewString()+ext)
	dest, err := os.Create(stagedPath)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stage upload: "+err.Error())
		return
	}
	if _, err := io.Copy(dest, file); err != nil {
		dest.Close()
		os.Remove(stagedPath)
		s.writeError(w, http.StatusInternalServerError, "stage upload: "+err.Error())
		return
	}
	if err := dest.Close(); err != nil {
		os.Remove(stagedPath)
		s.writeError(w, http.StatusInternalServerError, "stage upload: "+err.Error())
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = queue.InferTitleFromPath(header.Filename)
	}
	item, duplicate, err := s.daemon.AddImage(r.Context(), stagedPath, title)
	if err != nil {
		os.Remove(stagedPath)
		s.writePipelineError(w, err)
		return
	}
	if duplicate {
		os.Remove(stagedPath)
	}
	s.writeJSON(w, http.StatusOK, uploadResponse{Item: api.FromQueueItem(item), Duplicate: duplicate})
}

// handleItem dispatches /api/items/{id}/{operation} to the interactive
// pipeline controller.
func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	editor := s.daemon.Pipeline()
	if editor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "interactive pipeline unavailable")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/items/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	itemID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	operation := parts[1]

	switch r.Method {
	case http.MethodGet:
		s.handleItemGet(w, r, editor, itemID, operation)
	case http.MethodPost:
		s.handleItemPost(w, r, editor, itemID, operation)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleItemGet(w http.ResponseWriter, r *http.Request, editor *pipeline.Controller, itemID int64, operation string) {
	ctx := r.Context()
	switch operation {
	case "snapshot":
		snap, err := editor.Snapshot(ctx, itemID)
		if err != nil {
			s.writePipelineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, snap)
	case "preview":
		data, contentType, err := editor.Preview(ctx, itemID)
		if err != nil {
			s.writePipelineError(w, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "mask":
		data, err := editor.MaskPNG(ctx, itemID)
		if err != nil {
			s.writePipelineError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "viewport":
		size, err := stageSizeFromQuery(r)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if size == nil {
			s.writeError(w, http.StatusBadRequest, "width and height query parameters are required")
			return
		}
		metrics, err := editor.Viewport(ctx, itemID, *size)
		if err != nil {
			s.writePipelineError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromViewportMetrics(metrics))
	default:
		s.writeError(w, http.StatusNotFound, "unknown operation "+operation)
	}
}

func (s *apiServer) handleItemPost(w http.ResponseWriter, r *http.Request, editor *pipeline.Controller, itemID int64, operation string) {
	ctx := r.Context()
	var (
		snap *pipeline.Snapshot
		err  error
	)
	switch operation {
	case "open":
		snap, err = editor.Open(ctx, itemID)
	case "crop":
		var req cropRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		snap, err = editor.Crop(ctx, itemID, req.X0, req.Y0, req.X1, req.Y1, optionalStageSize(req.StageWidth, req.StageHeight))
	case "skip-crop":
		snap, err = editor.SkipCrop(ctx, itemID)
	case "segment":
		var req segmentRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		snap, err = editor.Segment(ctx, itemID, []byte(req.Geometry), optionalStageSize(req.StageWidth, req.StageHeight))
	case "advance":
		snap, err = editor.Advance(ctx, itemID)
	case "normalize":
		var req normalizeRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		snap, err = editor.Normalize(ctx, itemID, transform.Options{
			TargetSize:     req.TargetSize,
			Rotation:       req.Rotation,
			FlipHorizontal: req.FlipHorizontal,
			FlipVertical:   req.FlipVertical,
		})
	case "skip-normalize":
		snap, err = editor.SkipNormalize(ctx, itemID)
	case "grayscale":
		var req grayscaleRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		snap, err = editor.Grayscale(ctx, itemID, req.Mode)
	case "skip-grayscale":
		snap, err = editor.SkipGrayscale(ctx, itemID)
	case "back":
		var req backRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		target, ok := queue.ParseStage(req.Stage)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown stage "+req.Stage)
			return
		}
		snap, err = editor.Back(ctx, itemID, target)
	case "save":
		var req saveRequest
		if decodeErr := decodeBody(r, &req); decodeErr != nil {
			s.writeError(w, http.StatusBadRequest, decodeErr.Error())
			return
		}
		snap, err = editor.Save(ctx, itemID, req.Label, req.DatasetRoot)
	case "release":
		editor.Release(itemID)
		s.writeJSON(w, http.StatusOK, map[string]bool{"released": true})
		return
	default:
		s.writeError(w, http.StatusNotFound, "unknown operation "+operation)
		return
	}

	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	if err := decoder.Decode(target); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func optionalStageSize(width, height int) *viewport.Size {
	if width <= 0 || height <= 0 {
		return nil
	}
	return &viewport.Size{Width: width, Height: height}
}

func stageSizeFromQuery(r *http.Request) (*viewport.Size, error) {
	widthStr := strings.TrimSpace(r.URL.Query().Get("width"))
	heightStr := strings.TrimSpace(r.URL.Query().Get("height"))
	if widthStr == "" && heightStr == "" {
		return nil, nil
	}
	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return nil, errors.New("invalid width")
	}
	height, err := strconv.Atoi(heightStr)
	if err != nil {
		return nil, errors.New("invalid height")
	}
	return optionalStageSize(width, height), nil
}

// writePipelineError maps the services error taxonomy onto HTTP statuses.
func (s *apiServer) writePipelineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrStageGuard):
		status = http.StatusConflict
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, services.ErrExternalTool):
		status = http.StatusBadGateway
	}
	s.writeError(w, status, err.Error())
}
