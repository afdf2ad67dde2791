package queue

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

const itemColumns = "id, source_path, image_title, label, status, stage, mime_type, original_width, original_height, image_sha256, original_file, working_file, mask_file, grayscale_file, exported_file, error_message, created_at, updated_at, progress_stage, progress_percent, progress_message, session_json, metadata_json, last_heartbeat, needs_review, review_reason"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		sourcePath       sql.NullString
		imageTitle       sql.NullString
		label            sql.NullString
		statusStr        string
		stageStr         sql.NullString
		mimeType         sql.NullString
		originalWidth    sql.NullInt64
		originalHeight   sql.NullInt64
		sha256Hex        sql.NullString
		originalFile     sql.NullString
		workingFile      sql.NullString
		maskFile         sql.NullString
		grayscaleFile    sql.NullString
		exportedFile     sql.NullString
		errorMessage     sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		progressStage    sql.NullString
		progressPercent  sql.NullFloat64
		progressMessage  sql.NullString
		sessionJSON      sql.NullString
		metadataJSON     sql.NullString
		lastHeartbeatRaw sql.NullString
		needsReview      sql.NullInt64
		reviewReason     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&imageTitle,
		&label,
		&statusStr,
		&stageStr,
		&mimeType,
		&originalWidth,
		&originalHeight,
		&sha256Hex,
		&originalFile,
		&workingFile,
		&maskFile,
		&grayscaleFile,
		&exportedFile,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&sessionJSON,
		&metadataJSON,
		&lastHeartbeatRaw,
		&needsReview,
		&reviewReason,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		SourcePath:      sourcePath.String,
		ImageTitle:      imageTitle.String,
		Label:           label.String,
		Status:          Status(statusStr),
		Stage:           Stage(stageStr.String),
		MimeType:        mimeType.String,
		OriginalWidth:   int(originalWidth.Int64),
		OriginalHeight:  int(originalHeight.Int64),
		ImageSHA256:     sha256Hex.String,
		OriginalFile:    originalFile.String,
		WorkingFile:     workingFile.String,
		MaskFile:        maskFile.String,
		GrayscaleFile:   grayscaleFile.String,
		ExportedFile:    exportedFile.String,
		ErrorMessage:    errorMessage.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		SessionJSON:     sessionJSON.String,
		MetadataJSON:    metadataJSON.String,
	}
	if needsReview.Valid {
		item.NeedsReview = needsReview.Int64 != 0
	}
	item.ReviewReason = reviewReason.String

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// InferTitleFromPath derives a display title from an uploaded filename.
func InferTitleFromPath(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "Untitled Image"
	}
	ext := filepath.Ext(base)
	base = strings.TrimSuffix(base, ext)
	cleaned := strings.TrimSpace(base)
	if cleaned == "" {
		return "Untitled Image"
	}
	return cleaned
}
