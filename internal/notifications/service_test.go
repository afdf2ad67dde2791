package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"treadmark/internal/config"
	"treadmark/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventExportCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "image added",
			event: notifications.EventImageAdded,
			payload: notifications.Payload{
				"title": "Michelin 225-45R17",
			},
			expectTitle:   "Treadmark - Image Added",
			expectMessage: "📷 Queued for annotation: Michelin 225-45R17",
			expectTags:    "treadmark,ingest,added",
		},
		{
			name:  "segmentation completed",
			event: notifications.EventSegmentationCompleted,
			payload: notifications.Payload{
				"title":     "Worn Radial",
				"algorithm": "sam2",
			},
			expectTitle:   "Treadmark - Segmented",
			expectMessage: "🧩 Mask ready: Worn Radial (sam2)",
			expectTags:    "treadmark,segment,completed",
		},
		{
			name:  "export completed",
			event: notifications.EventExportCompleted,
			payload: notifications.Payload{
				"title":     "Worn Radial",
				"finalFile": "worn-radial.png",
			},
			expectTitle:    "Treadmark - Saved",
			expectMessage:  "✅ Added to dataset: Worn Radial\nFile: worn-radial.png",
			expectTags:     "treadmark,dataset,added",
			expectPriority: "high",
		},
		{
			name:  "review required",
			event: notifications.EventReviewRequired,
			payload: notifications.Payload{
				"title":  "Cracked Sidewall",
				"reason": "segmentation worker failed",
			},
			expectTitle:   "Treadmark - Review Required",
			expectMessage: "Needs review: Cracked Sidewall\nsegmentation worker failed",
			expectTags:    "treadmark,review,attention",
		},
		{
			name:  "queue completed with failures",
			event: notifications.EventQueueCompleted,
			payload: notifications.Payload{
				"processed": 4,
				"failed":    1,
				"duration":  90 * time.Second,
			},
			expectTitle:   "Treadmark - Queue Complete (with errors)",
			expectMessage: "Queue processing complete: 4 succeeded, 1 failed in 1m30s",
			expectTags:    "treadmark,queue,completed",
		},
		{
			name:  "item failed",
			event: notifications.EventItemFailed,
			payload: notifications.Payload{
				"context": "segment (item #3)",
				"error":   "worker exited with status 2",
			},
			expectTitle:    "Treadmark - Error",
			expectMessage:  "❌ Error with segment (item #3): worker exited with status 2",
			expectTags:     "treadmark,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.DedupWindowSeconds = 0

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Ingest = false
	cfg.Notifications.Segmentation = false
	cfg.Notifications.Queue = false

	svc := notifications.NewService(&cfg)
	disabled := []notifications.Event{
		notifications.EventImageAdded,
		notifications.EventSegmentationCompleted,
		notifications.EventQueueStarted,
		notifications.EventDaemonStarted,
	}

	for _, event := range disabled {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceSuppressesSmallQueueStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed queue start: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.QueueMinItems = 3

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventQueueStarted, notifications.Payload{"count": 1}); err != nil {
		t.Fatalf("expected suppressed queue start to return nil, got %v", err)
	}
}

func TestNtfyServiceDeduplicatesWithinWindow(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 600

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{"title": "Same Tire"}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventImageAdded, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one delivery inside dedup window, got %d", calls)
	}
}
