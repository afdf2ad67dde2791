package queueaccess

import (
	"context"
	"strings"

	"treadmark/internal/api"
	"treadmark/internal/ipc"
	"treadmark/internal/queue"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.QueueItem, error)
	Describe(ctx context.Context, id int64) (*api.QueueItem, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	Remove(ctx context.Context, ids []int64) (int64, error)
	ResetStuck(ctx context.Context) (int64, error)
	RetryAll(ctx context.Context) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Stop(ctx context.Context, ids []int64) (int64, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]api.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Describe(_ context.Context, id int64) (*api.QueueItem, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		// The server reports missing items as an error rather than an
		// empty payload.
		if strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return &resp.Item, nil
}

func (a *ipcAccess) ClearAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearCompleted()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClearFailed()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Remove(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRemove(ids)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ResetStuck(_ context.Context) (int64, error) {
	resp, err := a.client.QueueReset()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) RetryAll(_ context.Context) (int64, error) {
	resp, err := a.client.QueueRetry(nil)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Stop(_ context.Context, ids []int64) (int64, error) {
	resp, err := a.client.QueueStop(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Health(_ context.Context) (queue.HealthSummary, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.HealthSummary{
		Total:      resp.Total,
		Pending:    resp.Pending,
		Processing: resp.Processing,
		Editing:    resp.Editing,
		Review:     resp.Review,
		Failed:     resp.Failed,
		Completed:  resp.Completed,
	}, nil
}

type storeAccess struct {
	store   *queue.Store
	service *api.QueueService
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.QueueItem, error) {
	var filters []queue.Status
	for _, s := range statuses {
		if parsed, ok := queue.ParseStatus(s); ok {
			filters = append(filters, parsed)
		}
	}
	return a.service.List(ctx, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*api.QueueItem, error) {
	return a.service.Describe(ctx, id)
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *storeAccess) Remove(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		removed, err := a.store.Remove(ctx, id)
		if err != nil {
			return count, err
		}
		if removed {
			count++
		}
	}
	return count, nil
}

func (a *storeAccess) ResetStuck(ctx context.Context) (int64, error) {
	return a.store.ResetStuckProcessing(ctx)
}

func (a *storeAccess) RetryAll(ctx context.Context) (int64, error) {
	return a.store.RetryFailed(ctx)
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

func (a *storeAccess) Stop(ctx context.Context, ids []int64) (int64, error) {
	return a.store.StopItems(ctx, ids...)
}

func (a *storeAccess) Health(ctx context.Context) (queue.HealthSummary, error) {
	return a.store.Health(ctx)
}
