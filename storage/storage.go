// Package storage persists boards in Azure Table storage, one partition per
// tenant. Column and task rows share the board table behind a Kind
// discriminator; a column row embeds its ordered task-id list as JSON, which
// keeps the normalized payload shape a single-partition read.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"fieldboard-api/domain"
)

const (
	kindColumn = "column"
	kindTask   = "task"
)

// NotFoundError reports a missing board entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e NotFoundError) NotFound() {}

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	boardTable  *aztables.Client
	changeQueue *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardTable, changeQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	bt := svc.NewClient(boardTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changeQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{boardTable: bt, changeQueue: cq}, nil
}

type columnEntity struct {
	aztables.Entity
	Kind     string `json:"Kind"`
	Title    string `json:"Title"`
	TaskIDs  string `json:"TaskIDs"`
	Position int    `json:"Position"`
}

type taskEntity struct {
	aztables.Entity
	Kind          string `json:"Kind"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	ClientID      string `json:"ClientID"`
	ClientName    string `json:"ClientName"`
	ClientCompany string `json:"ClientCompany"`
	StartDate     string `json:"StartDate"`
	DueDate       string `json:"DueDate"`
	Extra         string `json:"Extra"`
	// Created is a zero-padded unix-nano string so lexical order matches
	// creation order within the partition.
	Created string `json:"Created"`
}

func createdStamp() string {
	return fmt.Sprintf("%020d", time.Now().UnixNano())
}

func encodeTaskIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func decodeTaskIDs(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return []string{}
	}
	return ids
}

func columnFromEntity(ent columnEntity) domain.Column {
	return domain.Column{
		ID:      ent.RowKey,
		Title:   ent.Title,
		TaskIDs: decodeTaskIDs(ent.TaskIDs),
	}
}

func taskFromEntity(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:            ent.RowKey,
		Title:         ent.Title,
		Description:   ent.Description,
		ClientID:      ent.ClientID,
		ClientName:    ent.ClientName,
		ClientCompany: ent.ClientCompany,
		StartDate:     ent.StartDate,
		DueDate:       ent.DueDate,
	}
	if ent.Extra != "" {
		t.Extra = sonic.NoCopyRawMessage(ent.Extra)
	}
	return t
}

// FetchBoard reads the full normalized payload for one tenant. Columns come
// back in board order, tasks newest first (creation inserts at the head).
func (s *Storage) FetchBoard(ctx context.Context, tenantID string) (domain.BoardPayload, error) {
	filter := "PartitionKey eq '" + tenantID + "'"
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})

	payload := domain.BoardPayload{Tasks: []domain.Task{}, Columns: []domain.Column{}}
	var colEnts []columnEntity
	var taskEnts []taskEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.BoardPayload{}, err
		}
		for _, raw := range resp.Entities {
			var probe struct {
				Kind string `json:"Kind"`
			}
			if err := json.Unmarshal(raw, &probe); err != nil {
				return domain.BoardPayload{}, err
			}
			switch probe.Kind {
			case kindColumn:
				var ent columnEntity
				if err := json.Unmarshal(raw, &ent); err != nil {
					return domain.BoardPayload{}, err
				}
				colEnts = append(colEnts, ent)
			case kindTask:
				var ent taskEntity
				if err := json.Unmarshal(raw, &ent); err != nil {
					return domain.BoardPayload{}, err
				}
				taskEnts = append(taskEnts, ent)
			}
		}
	}

	sort.SliceStable(colEnts, func(i, j int) bool { return colEnts[i].Position < colEnts[j].Position })
	sort.SliceStable(taskEnts, func(i, j int) bool { return taskEnts[i].Created > taskEnts[j].Created })

	for _, ent := range colEnts {
		payload.Columns = append(payload.Columns, columnFromEntity(ent))
	}
	for _, ent := range taskEnts {
		payload.Tasks = append(payload.Tasks, taskFromEntity(ent))
	}
	return payload, nil
}

func (s *Storage) fetchColumns(ctx context.Context, tenantID string) ([]columnEntity, error) {
	filter := "PartitionKey eq '" + tenantID + "' and Kind eq '" + kindColumn + "'"
	pager := s.boardTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var cols []columnEntity
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent columnEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			cols = append(cols, ent)
		}
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	return cols, nil
}

func (s *Storage) getColumn(ctx context.Context, tenantID, columnID string) (columnEntity, error) {
	resp, err := s.boardTable.GetEntity(ctx, tenantID, columnID, nil)
	if err != nil {
		if isNotFound(err) {
			return columnEntity{}, NotFoundError{Entity: kindColumn, ID: columnID}
		}
		return columnEntity{}, err
	}
	var ent columnEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return columnEntity{}, err
	}
	return ent, nil
}

// CreateColumn appends a column at the tail of the board order.
func (s *Storage) CreateColumn(ctx context.Context, tenantID, title string) (domain.Column, error) {
	cols, err := s.fetchColumns(ctx, tenantID)
	if err != nil {
		return domain.Column{}, err
	}
	position := 0
	for _, c := range cols {
		if c.Position >= position {
			position = c.Position + 1
		}
	}
	ent := columnEntity{
		Entity:   aztables.Entity{PartitionKey: tenantID, RowKey: uuid.NewString()},
		Kind:     kindColumn,
		Title:    title,
		TaskIDs:  encodeTaskIDs(nil),
		Position: position,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Column{}, err
	}
	if _, err := s.boardTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Column{}, err
	}
	return columnFromEntity(ent), nil
}

// RenameColumn updates a column's display title.
func (s *Storage) RenameColumn(ctx context.Context, tenantID, columnID, title string) error {
	if _, err := s.getColumn(ctx, tenantID, columnID); err != nil {
		return err
	}
	return s.merge(ctx, map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       columnID,
		"Title":        title,
	})
}

// ReorderColumns rewrites per-column order indexes from the explicit id list.
// Ids not present in the partition are skipped.
func (s *Storage) ReorderColumns(ctx context.Context, tenantID string, order []string) error {
	cols, err := s.fetchColumns(ctx, tenantID)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c.RowKey] = struct{}{}
	}
	pos := 0
	for _, id := range order {
		if _, ok := known[id]; !ok {
			continue
		}
		if err := s.merge(ctx, map[string]any{
			"PartitionKey": tenantID,
			"RowKey":       id,
			"Position":     pos,
		}); err != nil {
			return err
		}
		pos++
	}
	return nil
}

// DeleteColumn removes the column and cascade-deletes every task row it
// references. The cascaded task ids are returned for the change feed.
func (s *Storage) DeleteColumn(ctx context.Context, tenantID, columnID string) ([]string, error) {
	ent, err := s.getColumn(ctx, tenantID, columnID)
	if err != nil {
		return nil, err
	}
	cascaded := decodeTaskIDs(ent.TaskIDs)
	for _, taskID := range cascaded {
		if _, err := s.boardTable.DeleteEntity(ctx, tenantID, taskID, nil); err != nil && !isNotFound(err) {
			return nil, err
		}
	}
	if _, err := s.boardTable.DeleteEntity(ctx, tenantID, columnID, nil); err != nil && !isNotFound(err) {
		return nil, err
	}
	return cascaded, nil
}

// CreateTask inserts a task row and prepends its id to the owning column.
func (s *Storage) CreateTask(ctx context.Context, tenantID, columnID string, t domain.Task) (domain.Task, error) {
	col, err := s.getColumn(ctx, tenantID, columnID)
	if err != nil {
		return domain.Task{}, err
	}
	ent := taskEntity{
		Entity:        aztables.Entity{PartitionKey: tenantID, RowKey: uuid.NewString()},
		Kind:          kindTask,
		Title:         t.Title,
		Description:   t.Description,
		ClientID:      t.ClientID,
		ClientName:    t.ClientName,
		ClientCompany: t.ClientCompany,
		StartDate:     t.StartDate,
		DueDate:       t.DueDate,
		Extra:         string(t.Extra),
		Created:       createdStamp(),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.boardTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}

	ids := append([]string{ent.RowKey}, decodeTaskIDs(col.TaskIDs)...)
	if err := s.merge(ctx, map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       columnID,
		"TaskIDs":      encodeTaskIDs(ids),
	}); err != nil {
		return domain.Task{}, err
	}
	return taskFromEntity(ent), nil
}

// UpdateTask replaces a task row's fields.
func (s *Storage) UpdateTask(ctx context.Context, tenantID string, t domain.Task) error {
	err := s.merge(ctx, map[string]any{
		"PartitionKey":  tenantID,
		"RowKey":        t.ID,
		"Title":         t.Title,
		"Description":   t.Description,
		"ClientID":      t.ClientID,
		"ClientName":    t.ClientName,
		"ClientCompany": t.ClientCompany,
		"StartDate":     t.StartDate,
		"DueDate":       t.DueDate,
		"Extra":         string(t.Extra),
	})
	if isNotFound(err) {
		return NotFoundError{Entity: kindTask, ID: t.ID}
	}
	return err
}

// MoveTask relocates a task reference between column id lists.
func (s *Storage) MoveTask(ctx context.Context, tenantID, taskID, from, to string, pos int) error {
	src, err := s.getColumn(ctx, tenantID, from)
	if err != nil {
		return err
	}
	srcIDs := decodeTaskIDs(src.TaskIDs)
	srcIDs = removeID(srcIDs, taskID)

	if from == to {
		srcIDs = insertID(srcIDs, taskID, pos)
		return s.merge(ctx, map[string]any{
			"PartitionKey": tenantID,
			"RowKey":       from,
			"TaskIDs":      encodeTaskIDs(srcIDs),
		})
	}

	dst, err := s.getColumn(ctx, tenantID, to)
	if err != nil {
		return err
	}
	dstIDs := insertID(decodeTaskIDs(dst.TaskIDs), taskID, pos)

	if err := s.merge(ctx, map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       from,
		"TaskIDs":      encodeTaskIDs(srcIDs),
	}); err != nil {
		return err
	}
	return s.merge(ctx, map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       to,
		"TaskIDs":      encodeTaskIDs(dstIDs),
	})
}

// DeleteTask removes a task row and drops its reference from any column.
func (s *Storage) DeleteTask(ctx context.Context, tenantID, taskID string) error {
	if _, err := s.boardTable.DeleteEntity(ctx, tenantID, taskID, nil); err != nil {
		if isNotFound(err) {
			return NotFoundError{Entity: kindTask, ID: taskID}
		}
		return err
	}
	cols, err := s.fetchColumns(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, col := range cols {
		ids := decodeTaskIDs(col.TaskIDs)
		kept := removeID(ids, taskID)
		if len(kept) == len(ids) {
			continue
		}
		if err := s.merge(ctx, map[string]any{
			"PartitionKey": tenantID,
			"RowKey":       col.RowKey,
			"TaskIDs":      encodeTaskIDs(kept),
		}); err != nil {
			return err
		}
	}
	return nil
}

// RescheduleTask rewrites only the task's dates.
func (s *Storage) RescheduleTask(ctx context.Context, tenantID, taskID, start, due string) error {
	err := s.merge(ctx, map[string]any{
		"PartitionKey": tenantID,
		"RowKey":       taskID,
		"StartDate":    start,
		"DueDate":      due,
	})
	if isNotFound(err) {
		return NotFoundError{Entity: kindTask, ID: taskID}
	}
	return err
}

// PublishChange sends a change event to the change queue.
func (s *Storage) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.changeQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func (s *Storage) merge(ctx context.Context, props map[string]any) error {
	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.boardTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func removeID(ids []string, id string) []string {
	kept := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}

func insertID(ids []string, id string, pos int) []string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(ids) {
		pos = len(ids)
	}
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}
