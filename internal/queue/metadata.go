package queue

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"treadmark/internal/textutil"
)

// Metadata is the annotation summary persisted on an item and written as a
// JSON sidecar beside exported artifacts. It also provides the organizer
// with filesystem-safe naming.
type Metadata struct {
	TitleValue       string `json:"title"`
	FilenameValue    string `json:"filename"`
	LabelValue       string `json:"label,omitempty"`
	SourceFilename   string `json:"source_filename,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	OriginalWidth    int    `json:"original_width,omitempty"`
	OriginalHeight   int    `json:"original_height,omitempty"`
	Algorithm        string `json:"algorithm,omitempty"`
	ModelSize        string `json:"model_size,omitempty"`
	PromptType       string `json:"prompt_type,omitempty"`
	ForegroundPoints int    `json:"foreground_points,omitempty"`
	BackgroundPoints int    `json:"background_points,omitempty"`
	BoundaryPoints   int    `json:"boundary_points,omitempty"`
	CropApplied      bool   `json:"crop_applied,omitempty"`
	SquareSize       int    `json:"square_size,omitempty"`
	RotationDegrees  int    `json:"rotation_degrees,omitempty"`
	FlipHorizontal   bool   `json:"flip_horizontal,omitempty"`
	FlipVertical     bool   `json:"flip_vertical,omitempty"`
	GrayscaleMode    string `json:"grayscale_mode,omitempty"`
	AnnotatedAt      string `json:"annotated_at,omitempty"`
	ExportedAt       string `json:"exported_at,omitempty"`

	// DatasetRoot carries the per-save destination between the interactive
	// save and the export lane. It is cleared before the sidecar is written.
	DatasetRoot string `json:"dataset_root,omitempty"`
}

// MetadataFromJSON builds metadata from stored JSON, falling back to basic inference.
func MetadataFromJSON(data, fallbackTitle string) Metadata {
	meta := NewBasicMetadata(fallbackTitle)
	_ = json.Unmarshal([]byte(data), &meta)
	if strings.TrimSpace(meta.TitleValue) == "" {
		meta.TitleValue = fallbackTitle
	}
	return meta
}

// NewBasicMetadata constructs a metadata record using the provided title.
// Filenames are sanitized for filesystem safety.
func NewBasicMetadata(title string) Metadata {
	title = textutil.NormalizeTitle(title)
	if title == "" {
		title = "Untitled Image"
	}
	return Metadata{
		TitleValue:    title,
		FilenameValue: sanitizeFilename(title),
	}
}

// Title returns the display title.
func (m Metadata) Title() string { return m.TitleValue }

// GetFilename returns the base name (without extension) for exported files.
func (m Metadata) GetFilename() string {
	if m.FilenameValue != "" {
		return m.FilenameValue
	}
	return sanitizeFilename(m.TitleValue)
}

// LabelDir resolves the destination directory for this item's label under
// the dataset root. The mapping is fixed 1:1, one subdirectory per label.
func (m Metadata) LabelDir(root string) string {
	label := textutil.SanitizeToken(m.LabelValue)
	if label == "" || label == "unknown" {
		label = "unlabeled"
	}
	return filepath.Join(root, label)
}

func sanitizeFilename(value string) string {
	cleaned := textutil.SanitizeFileName(value)
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return "untitled-image"
	}
	return strings.Join(fields, " ")
}
