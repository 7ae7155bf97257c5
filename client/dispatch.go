package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"fieldboard-api/domain"
)

// Endpoint discriminators carried as the query parameter on the shared
// /kanban URL.
const (
	endpointCreateColumn    = "create-column"
	endpointUpdateColumn    = "update-column"
	endpointMoveColumns     = "move-columns"
	endpointDeleteColumn    = "delete-column"
	endpointCreateTask      = "create-task"
	endpointUpdateTask      = "update-task"
	endpointMoveTask        = "move-task"
	endpointDeleteTask      = "delete-task"
	endpointUpdateTaskDates = "update-task-dates"
)

type createColumnRequest struct {
	Title string `json:"title"`
}

type updateColumnRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type moveColumnsRequest struct {
	Order []string `json:"order"`
}

type deleteColumnRequest struct {
	ID string `json:"id"`
}

type createTaskRequest struct {
	ColumnID string      `json:"columnId"`
	Task     domain.Task `json:"task"`
}

type updateTaskRequest struct {
	Task domain.Task `json:"task"`
}

type moveTaskRequest struct {
	TaskID   string `json:"taskId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Position int    `json:"position"`
}

type deleteTaskRequest struct {
	TaskID string `json:"taskId"`
}

type updateTaskDatesRequest struct {
	TaskID    string `json:"taskId"`
	StartDate string `json:"startDate"`
	DueDate   string `json:"dueDate"`
}

// CreateColumn adds a column at the tail of the board.
func (c *Client) CreateColumn(ctx context.Context, title string) error {
	col := domain.Column{ID: tempID(), Title: title}
	return c.dispatch(ctx, endpointCreateColumn, createColumnRequest{Title: title},
		func(domain.BoardPayload) domain.Mutation { return domain.InsertColumn(col) },
		[]string{TagBoard}, true)
}

// UpdateColumn renames a column.
func (c *Client) UpdateColumn(ctx context.Context, id, title string) error {
	return c.dispatch(ctx, endpointUpdateColumn, updateColumnRequest{ID: id, Title: title},
		func(p domain.BoardPayload) domain.Mutation { return domain.RenameColumn(p, id, title) },
		[]string{TagBoard}, true)
}

// MoveColumns persists a caller-supplied column ordering. On failure the
// cache is resynchronized by forced revalidation rather than reverted.
func (c *Client) MoveColumns(ctx context.Context, order []string) error {
	return c.dispatch(ctx, endpointMoveColumns, moveColumnsRequest{Order: order},
		func(p domain.BoardPayload) domain.Mutation { return domain.ReorderColumns(p, order) },
		[]string{TagBoard}, false)
}

// DeleteColumn removes a column and drops its task bucket entirely. The
// server performs the authoritative cascade over the referenced tasks.
func (c *Client) DeleteColumn(ctx context.Context, id string) error {
	return c.dispatch(ctx, endpointDeleteColumn, deleteColumnRequest{ID: id},
		func(p domain.BoardPayload) domain.Mutation { return domain.DeleteColumn(p, id) },
		[]string{TagBoard, TagCalendar}, true)
}

// CreateTask inserts a task at the head of the column. The optimistic record
// carries a temporary id and is replaced wholesale by revalidation once the
// server assigns the permanent one.
func (c *Client) CreateTask(ctx context.Context, columnID string, t domain.Task) error {
	optimistic := t
	optimistic.ID = tempID()
	return c.dispatch(ctx, endpointCreateTask, createTaskRequest{ColumnID: columnID, Task: t},
		func(domain.BoardPayload) domain.Mutation { return domain.InsertTask(columnID, optimistic) },
		[]string{TagBoard, TagCalendar}, true)
}

// UpdateTask replaces a task's fields.
func (c *Client) UpdateTask(ctx context.Context, t domain.Task) error {
	return c.dispatch(ctx, endpointUpdateTask, updateTaskRequest{Task: t},
		func(p domain.BoardPayload) domain.Mutation { return domain.UpdateTask(p, t) },
		[]string{TagBoard, TagCalendar}, true)
}

// MoveTask relocates a task between columns, or within one, at position pos.
func (c *Client) MoveTask(ctx context.Context, id, from, to string, pos int) error {
	return c.dispatch(ctx, endpointMoveTask, moveTaskRequest{TaskID: id, From: from, To: to, Position: pos},
		func(p domain.BoardPayload) domain.Mutation { return domain.MoveTask(p, id, from, to, pos) },
		[]string{TagBoard}, true)
}

// DeleteTask removes a task from the flat list and its column.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.dispatch(ctx, endpointDeleteTask, deleteTaskRequest{TaskID: id},
		func(p domain.BoardPayload) domain.Mutation { return domain.DeleteTask(p, id) },
		[]string{TagBoard, TagCalendar}, true)
}

// UpdateTaskDates reschedules a task from the calendar view.
func (c *Client) UpdateTaskDates(ctx context.Context, id, start, due string) error {
	return c.dispatch(ctx, endpointUpdateTaskDates, updateTaskDatesRequest{TaskID: id, StartDate: start, DueDate: due},
		func(p domain.BoardPayload) domain.Mutation { return domain.RescheduleTask(p, id, start, due) },
		[]string{TagBoard, TagCalendar}, true)
}

// dispatch runs the three-phase protocol. Optimistic phase: build a mutation
// per matching cache key from that key's payload and apply it synchronously.
// Network phase: POST the request. Reconciliation: on success invalidate the
// given tags and revalidate in the background; on failure either roll the
// captured mutations back or, when revertOnFailure is false, force
// revalidation of the touched keys.
//
// Concurrent dispatches against the same key are not serialized; the last
// cache write wins.
func (c *Client) dispatch(ctx context.Context, endpoint string, body any,
	build func(domain.BoardPayload) domain.Mutation, tags []string, revertOnFailure bool) error {

	match := func(key string) bool { return strings.HasPrefix(key, c.boardPrefix()) }

	applied := make(map[string]domain.Mutation)
	for _, key := range c.store.Keys(match) {
		p, ok := c.store.Read(key)
		if !ok {
			continue
		}
		m := build(p)
		c.store.Write(key, m.Apply, false)
		applied[key] = m
	}

	if err := c.post(ctx, endpoint, body); err != nil {
		if revertOnFailure {
			for key, m := range applied {
				c.store.Write(key, m.Rollback, false)
			}
		} else {
			c.store.Invalidate(match)
			c.revalidateStale()
		}
		c.log.WithFields(log.Fields{
			"endpoint": endpoint,
			"keys":     len(applied),
			"reverted": revertOnFailure,
			"error":    err.Error(),
		}).Warn("board mutation failed")
		return err
	}

	c.store.InvalidateTags(tags...)
	c.revalidateStale()
	c.log.WithFields(log.Fields{"endpoint": endpoint, "keys": len(applied)}).Debug("board mutation applied")
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, body any) error {
	data, err := sonic.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/kanban?endpoint="+endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerTenant, c.tenant)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("kanban %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

// tempID generates the transient identifier an optimistic record carries
// until the server assigns a permanent one.
func tempID() string {
	return fmt.Sprintf("temp-%d-%04d", time.Now().UnixNano(), rand.Intn(10000))
}
