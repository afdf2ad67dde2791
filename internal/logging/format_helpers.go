package logging

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

func formatBytes(value int64) string {
	if value < 0 {
		return fmt.Sprintf("%d B", value)
	}
	return humanize.IBytes(uint64(value))
}

func formatDurationHuman(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - minutes*60
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	default:
		hours := int(d.Hours())
		minutes := int(d.Minutes()) - hours*60
		return fmt.Sprintf("%dh%02dm", hours, minutes)
	}
}

func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value)
}
