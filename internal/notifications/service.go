package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"treadmark/internal/config"
)

const userAgent = "Treadmark/0.1.0"

// Event identifies a workflow milestone that may produce a notification.
type Event string

const (
	EventImageAdded            Event = "image_added"
	EventSegmentationCompleted Event = "segmentation_completed"
	EventExportCompleted       Event = "export_completed"
	EventReviewRequired        Event = "review_required"
	EventQueueStarted          Event = "queue_started"
	EventQueueCompleted        Event = "queue_completed"
	EventDaemonStarted         Event = "daemon_started"
	EventDaemonStopped         Event = "daemon_stopped"
	EventItemFailed            Event = "item_failed"
	EventTest                  Event = "test"
)

// Payload carries event-specific fields used to format the outgoing message.
// Values are stringified with fmt.Sprint; durations round to whole seconds.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		queueMin:    cfg.Notifications.QueueMinItems,
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		enabled: map[Event]bool{
			EventImageAdded:            cfg.Notifications.Ingest,
			EventSegmentationCompleted: cfg.Notifications.Segmentation,
			EventExportCompleted:       cfg.Notifications.Export,
			EventReviewRequired:        cfg.Notifications.Review,
			EventQueueStarted:          cfg.Notifications.Queue,
			EventQueueCompleted:        cfg.Notifications.Queue,
			EventDaemonStarted:         cfg.Notifications.Queue,
			EventDaemonStopped:         cfg.Notifications.Queue,
			EventItemFailed:            cfg.Notifications.Errors,
			EventTest:                  true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	enabled     map[Event]bool
	queueMin    int
	dedupWindow time.Duration

	mu       sync.Mutex
	lastKey  string
	lastSent time.Time
}

// Publish formats and delivers the event. Events disabled in the
// configuration, unknown events, and duplicates inside the dedup window are
// dropped without error.
func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	if event == EventQueueStarted && n.queueMin > 0 && payload.number("count") < n.queueMin {
		return nil
	}
	msg, ok := formatEvent(event, payload)
	if !ok {
		return nil
	}
	if n.isDuplicate(msg) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) isDuplicate(msg message) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := msg.title + "\n" + msg.body
	now := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if key == n.lastKey && now.Sub(n.lastSent) < n.dedupWindow {
		return true
	}
	n.lastKey = key
	n.lastSent = now
	return false
}

func formatEvent(event Event, payload Payload) (message, bool) {
	switch event {
	case EventImageAdded:
		title := payload.textOr("title", "untitled image")
		return message{
			title: "Treadmark - Image Added",
			body:  fmt.Sprintf("\U0001F4F7 Queued for annotation: %s", title),
			tags:  []string{"treadmark", "ingest", "added"},
		}, true
	case EventSegmentationCompleted:
		title := payload.textOr("title", "untitled image")
		body := fmt.Sprintf("\U0001F9E9 Mask ready: %s", title)
		if algo := payload.text("algorithm"); algo != "" {
			body = fmt.Sprintf("%s (%s)", body, algo)
		}
		return message{
			title: "Treadmark - Segmented",
			body:  body,
			tags:  []string{"treadmark", "segment", "completed"},
		}, true
	case EventExportCompleted:
		title := payload.textOr("title", "untitled image")
		body := fmt.Sprintf("✅ Added to dataset: %s", title)
		if file := payload.text("finalFile"); file != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, file)
		}
		return message{
			title:    "Treadmark - Saved",
			body:     body,
			tags:     []string{"treadmark", "dataset", "added"},
			priority: "high",
		}, true
	case EventReviewRequired:
		title := payload.textOr("title", "untitled image")
		body := fmt.Sprintf("Needs review: %s", title)
		if reason := payload.text("reason"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return message{
			title: "Treadmark - Review Required",
			body:  body,
			tags:  []string{"treadmark", "review", "attention"},
		}, true
	case EventQueueStarted:
		return message{
			title: "Treadmark - Queue Started",
			body:  fmt.Sprintf("Started processing queue with %d items", payload.number("count")),
			tags:  []string{"treadmark", "queue", "started"},
		}, true
	case EventQueueCompleted:
		processed := payload.number("processed")
		failed := payload.number("failed")
		durationText := payload.durationText("duration")
		title := "Treadmark - Queue Complete"
		body := fmt.Sprintf("Queue processing complete: %d items processed in %s", processed, durationText)
		if failed > 0 {
			title = "Treadmark - Queue Complete (with errors)"
			body = fmt.Sprintf("Queue processing complete: %d succeeded, %d failed in %s", processed, failed, durationText)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"treadmark", "queue", "completed"},
		}, true
	case EventDaemonStarted:
		body := "Daemon online"
		if pending := payload.number("pending"); pending > 0 {
			body = fmt.Sprintf("Daemon online with %d items waiting", pending)
		}
		return message{
			title: "Treadmark - Daemon Started",
			body:  body,
			tags:  []string{"treadmark", "daemon", "started"},
		}, true
	case EventDaemonStopped:
		return message{
			title: "Treadmark - Daemon Stopped",
			body:  "Daemon offline",
			tags:  []string{"treadmark", "daemon", "stopped"},
		}, true
	case EventItemFailed:
		body := "❌ Error"
		if contextLabel := payload.text("context"); contextLabel != "" {
			body += " with " + contextLabel
		}
		body += ": " + payload.textOr("error", "unknown")
		return message{
			title:    "Treadmark - Error",
			body:     body,
			tags:     []string{"treadmark", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Treadmark - Test",
			body:     "\U0001F9EA Notification system test",
			tags:     []string{"treadmark", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) textOr(key, fallback string) string {
	if text := p.text(key); text != "" {
		return text
	}
	return fallback
}

func (p Payload) number(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func (p Payload) durationText(key string) string {
	var d time.Duration
	if p != nil {
		if v, ok := p[key].(time.Duration); ok {
			d = v
		}
	}
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
