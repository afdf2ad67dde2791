package api

import (
	"context"
	"testing"

	"treadmark/internal/queue"
)

type stubActionService struct {
	items   map[int64]*QueueItem
	retried []int64
}

func (s *stubActionService) Describe(_ context.Context, id int64) (*QueueItem, error) {
	return s.items[id], nil
}

func (s *stubActionService) Retry(_ context.Context, ids []int64) (int64, error) {
	s.retried = append(s.retried, ids...)
	return int64(len(ids)), nil
}

func (s *stubActionService) Remove(_ context.Context, ids []int64) (int64, error) {
	var removed int64
	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func TestRetryFailedItemsByID(t *testing.T) {
	svc := &stubActionService{items: map[int64]*QueueItem{
		1: {ID: 1, Status: string(queue.StatusFailed)},
		2: {ID: 2, Status: string(queue.StatusCompleted)},
	}}

	result, err := RetryFailedItemsByID(context.Background(), svc, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("RetryFailedItemsByID: %v", err)
	}
	if result.UpdatedCount != 1 {
		t.Fatalf("unexpected updated count: %d", result.UpdatedCount)
	}
	outcomes := map[int64]RetryItemOutcome{}
	for _, item := range result.Items {
		outcomes[item.ID] = item.Outcome
	}
	if outcomes[1] != RetryItemUpdated {
		t.Fatalf("item 1 outcome: %q", outcomes[1])
	}
	if outcomes[2] != RetryItemNotFailed {
		t.Fatalf("item 2 outcome: %q", outcomes[2])
	}
	if outcomes[3] != RetryItemNotFound {
		t.Fatalf("item 3 outcome: %q", outcomes[3])
	}
	if len(svc.retried) != 1 || svc.retried[0] != 1 {
		t.Fatalf("retry should only touch failed items: %v", svc.retried)
	}
}

func TestRemoveItemsByID(t *testing.T) {
	svc := &stubActionService{items: map[int64]*QueueItem{
		4: {ID: 4, Status: string(queue.StatusPending)},
	}}

	result, err := RemoveItemsByID(context.Background(), svc, []int64{4, 9})
	if err != nil {
		t.Fatalf("RemoveItemsByID: %v", err)
	}
	if result.RemovedCount != 1 {
		t.Fatalf("unexpected removed count: %d", result.RemovedCount)
	}
	if result.Items[0].Outcome != RemoveItemRemoved {
		t.Fatalf("item 4 outcome: %q", result.Items[0].Outcome)
	}
	if result.Items[1].Outcome != RemoveItemNotFound {
		t.Fatalf("item 9 outcome: %q", result.Items[1].Outcome)
	}
}
