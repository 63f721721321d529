package main

import (
	"context"

	"syndicate/internal/api"
	"syndicate/internal/daemonrun"
	"syndicate/internal/ipc"
	"syndicate/internal/transmission"
)

// queueAPI is implemented over IPC when the daemon runs and against the
// local store otherwise.
type queueAPI interface {
	List(ctx context.Context) ([]api.Queue, error)
	Items(ctx context.Context, req ipc.ItemsRequest) ([]api.Item, error)
	Refresh(ctx context.Context, queueID int64) (api.RefreshResponse, error)
	Transmit(ctx context.Context, queueID int64) (api.TransmitResponse, error)
	SetAction(ctx context.Context, ids []int64, action string) (int64, error)
	StatusCounts(ctx context.Context, req ipc.StatusCountsRequest) ([]api.StatusCount, error)
}

// withQueues prefers the daemon and falls back to the local store.
func (c *commandContext) withQueues(ctx context.Context, fn func(queueAPI) error) error {
	if client := c.tryClient(); client != nil {
		defer client.Close()
		return fn(&queueIPCAdapter{client: client})
	}
	return c.withStack(ctx, func(stack *daemonrun.Stack) error {
		return fn(&queueStoreAdapter{stack: stack})
	})
}

// --- IPC adapter ---

type queueIPCAdapter struct {
	client *ipc.Client
}

func (a *queueIPCAdapter) List(context.Context) ([]api.Queue, error) {
	resp, err := a.client.ListQueues()
	if err != nil {
		return nil, err
	}
	return resp.Queues, nil
}

func (a *queueIPCAdapter) Items(_ context.Context, req ipc.ItemsRequest) ([]api.Item, error) {
	resp, err := a.client.Items(req)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *queueIPCAdapter) Refresh(_ context.Context, queueID int64) (api.RefreshResponse, error) {
	resp, err := a.client.Refresh(queueID)
	if err != nil {
		return api.RefreshResponse{}, err
	}
	return *resp, nil
}

func (a *queueIPCAdapter) Transmit(_ context.Context, queueID int64) (api.TransmitResponse, error) {
	resp, err := a.client.Transmit(queueID)
	if err != nil {
		return api.TransmitResponse{}, err
	}
	return *resp, nil
}

func (a *queueIPCAdapter) SetAction(_ context.Context, ids []int64, action string) (int64, error) {
	resp, err := a.client.SetAction(ids, action)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *queueIPCAdapter) StatusCounts(_ context.Context, req ipc.StatusCountsRequest) ([]api.StatusCount, error) {
	resp, err := a.client.StatusCounts(req)
	if err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// --- Store adapter ---

type queueStoreAdapter struct {
	stack *daemonrun.Stack
}

func (a *queueStoreAdapter) List(ctx context.Context) ([]api.Queue, error) {
	return a.stack.API.Queues(ctx, api.Scope{})
}

func (a *queueStoreAdapter) Items(ctx context.Context, req ipc.ItemsRequest) ([]api.Item, error) {
	actions := make([]transmission.Action, 0, len(req.Actions))
	for _, raw := range req.Actions {
		action, err := transmission.ParseAction(raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return a.stack.API.Items(ctx, api.Scope{}, req.QueueID, actions, req.Limit)
}

func (a *queueStoreAdapter) Refresh(ctx context.Context, queueID int64) (api.RefreshResponse, error) {
	res, err := a.stack.Engine.Refresh(ctx, queueID)
	if err != nil {
		return api.RefreshResponse{}, err
	}
	return api.FromRefreshResult(res), nil
}

func (a *queueStoreAdapter) Transmit(ctx context.Context, queueID int64) (api.TransmitResponse, error) {
	res, err := a.stack.Engine.Transmit(ctx, queueID)
	return api.FromTransmitResult(res), err
}

func (a *queueStoreAdapter) SetAction(ctx context.Context, ids []int64, action string) (int64, error) {
	parsed, err := transmission.ParseAction(action)
	if err != nil {
		return 0, err
	}
	return a.stack.Engine.SetAction(ctx, ids, parsed)
}

func (a *queueStoreAdapter) StatusCounts(ctx context.Context, req ipc.StatusCountsRequest) ([]api.StatusCount, error) {
	filter, err := transmission.ParseCountFilter(req.QueueID, req.Field, req.From, req.To, a.stack.Config.Location())
	if err != nil {
		return nil, err
	}
	return a.stack.API.StatusCounts(ctx, api.Scope{}, filter)
}
