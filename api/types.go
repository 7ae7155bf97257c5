package api

import (
	"context"

	"fieldboard-api/domain"
)

// Store abstracts board persistence for handlers.
type Store interface {
	FetchBoard(ctx context.Context, tenantID string) (domain.BoardPayload, error)
	CreateColumn(ctx context.Context, tenantID, title string) (domain.Column, error)
	RenameColumn(ctx context.Context, tenantID, columnID, title string) error
	ReorderColumns(ctx context.Context, tenantID string, order []string) error
	// DeleteColumn removes the column and cascade-deletes the task rows it
	// references, returning the cascaded task ids.
	DeleteColumn(ctx context.Context, tenantID, columnID string) ([]string, error)
	CreateTask(ctx context.Context, tenantID, columnID string, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, tenantID string, t domain.Task) error
	MoveTask(ctx context.Context, tenantID, taskID, from, to string, pos int) error
	DeleteTask(ctx context.Context, tenantID, taskID string) error
	RescheduleTask(ctx context.Context, tenantID, taskID, start, due string) error
}

// NotFoundError is implemented by storage errors for missing entities so
// handlers can answer 404 instead of 500.
type NotFoundError interface {
	error
	NotFound()
}

// Publisher delivers change events to the downstream feed.
type Publisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}
