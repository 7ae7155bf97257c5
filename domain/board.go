package domain

import "github.com/bytedance/sonic"

// Task represents a single board item in the normalized server payload.
type Task struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description,omitempty"`
	ClientID      string                 `json:"clientId,omitempty"`
	ClientName    string                 `json:"clientName,omitempty"`
	ClientCompany string                 `json:"clientCompany,omitempty"`
	StartDate     string                 `json:"startDate,omitempty"`
	DueDate       string                 `json:"dueDate,omitempty"`
	Extra         sonic.NoCopyRawMessage `json:"extra,omitempty"`
}

// Scheduled reports whether the task carries at least one date and so
// belongs on the calendar view.
func (t Task) Scheduled() bool {
	return t.StartDate != "" || t.DueDate != ""
}

// Column is a named bucket holding an ordered list of task references.
type Column struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	TaskIDs []string `json:"taskIds"`
}

// BoardPayload is the normalized shape the server returns: a flat task list
// plus columns holding ordered task-id references.
type BoardPayload struct {
	Tasks   []Task   `json:"tasks"`
	Columns []Column `json:"columns"`
}

// Empty reports whether the payload holds no columns and no tasks.
func (p BoardPayload) Empty() bool {
	return len(p.Columns) == 0 && len(p.Tasks) == 0
}

// Clone returns a deep copy. Mutations operate copy-on-write so cached
// payloads are never aliased.
func (p BoardPayload) Clone() BoardPayload {
	out := BoardPayload{}
	if p.Tasks != nil {
		out.Tasks = make([]Task, len(p.Tasks))
		copy(out.Tasks, p.Tasks)
	}
	if p.Columns != nil {
		out.Columns = make([]Column, len(p.Columns))
		for i, c := range p.Columns {
			out.Columns[i] = c
			if c.TaskIDs != nil {
				out.Columns[i].TaskIDs = make([]string, len(c.TaskIDs))
				copy(out.Columns[i].TaskIDs, c.TaskIDs)
			}
		}
	}
	return out
}

// ColumnView is the denormalized column header the board view renders.
type ColumnView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Board is the denormalized view: column headers plus a task bucket per
// column. Derived, never persisted.
type Board struct {
	Columns []ColumnView      `json:"columns"`
	Tasks   map[string][]Task `json:"tasks"`
}

// BuildBoard converts the normalized payload into the denormalized board.
// Each bucket holds the flat task list filtered to the column's TaskIDs,
// preserving the flat list's relative order. Tasks referenced by no column
// are dropped; dangling TaskIDs entries are ignored.
func BuildBoard(p BoardPayload) Board {
	board := Board{
		Columns: make([]ColumnView, 0, len(p.Columns)),
		Tasks:   make(map[string][]Task, len(p.Columns)),
	}
	for _, col := range p.Columns {
		board.Columns = append(board.Columns, ColumnView{ID: col.ID, Name: col.Title})
		members := make(map[string]struct{}, len(col.TaskIDs))
		for _, id := range col.TaskIDs {
			members[id] = struct{}{}
		}
		bucket := make([]Task, 0, len(col.TaskIDs))
		for _, t := range p.Tasks {
			if _, ok := members[t.ID]; ok {
				bucket = append(bucket, t)
			}
		}
		board.Tasks[col.ID] = bucket
	}
	return board
}
