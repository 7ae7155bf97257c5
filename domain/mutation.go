package domain

// Mutation is an optimistic rewrite paired with its exact inverse. A
// dispatcher constructs one per cache key from that key's current payload, so
// Rollback restores precisely what Apply displaced. Both transforms are pure:
// the input payload is cloned, never modified in place.
type Mutation interface {
	Apply(BoardPayload) BoardPayload
	Rollback(BoardPayload) BoardPayload
}

type columnInsert struct {
	column Column
}

// InsertColumn appends a new column with an empty task list.
func InsertColumn(c Column) Mutation {
	if c.TaskIDs == nil {
		c.TaskIDs = []string{}
	}
	return columnInsert{column: c}
}

func (m columnInsert) Apply(p BoardPayload) BoardPayload {
	out := p.Clone()
	out.Columns = append(out.Columns, m.column)
	return out
}

func (m columnInsert) Rollback(p BoardPayload) BoardPayload {
	out := p.Clone()
	out.Columns = dropColumn(out.Columns, m.column.ID)
	return out
}

type columnRename struct {
	id, title, prev string
}

// RenameColumn changes a column's display title. The prior title is captured
// from p for rollback.
func RenameColumn(p BoardPayload, id, title string) Mutation {
	prev := title
	if i := columnIndex(p.Columns, id); i >= 0 {
		prev = p.Columns[i].Title
	}
	return columnRename{id: id, title: title, prev: prev}
}

func (m columnRename) Apply(p BoardPayload) BoardPayload {
	return retitle(p, m.id, m.title)
}

func (m columnRename) Rollback(p BoardPayload) BoardPayload {
	return retitle(p, m.id, m.prev)
}

func retitle(p BoardPayload, id, title string) BoardPayload {
	out := p.Clone()
	if i := columnIndex(out.Columns, id); i >= 0 {
		out.Columns[i].Title = title
	}
	return out
}

type columnReorder struct {
	order, prev []string
}

// ReorderColumns rewrites the column sequence to the supplied id order
// without touching tasks. Ids absent from the payload are skipped; columns
// absent from the order keep their relative position at the tail.
func ReorderColumns(p BoardPayload, order []string) Mutation {
	prev := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		prev = append(prev, c.ID)
	}
	return columnReorder{order: append([]string(nil), order...), prev: prev}
}

func (m columnReorder) Apply(p BoardPayload) BoardPayload {
	return reorder(p, m.order)
}

func (m columnReorder) Rollback(p BoardPayload) BoardPayload {
	return reorder(p, m.prev)
}

func reorder(p BoardPayload, order []string) BoardPayload {
	out := p.Clone()
	byID := make(map[string]Column, len(out.Columns))
	for _, c := range out.Columns {
		byID[c.ID] = c
	}
	cols := make([]Column, 0, len(out.Columns))
	seen := make(map[string]struct{}, len(order))
	for _, id := range order {
		if c, ok := byID[id]; ok {
			cols = append(cols, c)
			seen[id] = struct{}{}
		}
	}
	for _, c := range out.Columns {
		if _, ok := seen[c.ID]; !ok {
			cols = append(cols, c)
		}
	}
	out.Columns = cols
	return out
}

type columnDelete struct {
	id       string
	index    int
	removed  Column
	tasks    []Task
	taskPoss []int
}

// DeleteColumn removes a column together with the task rows it references,
// mirroring the server's authoritative cascade. Rollback restores the column
// at its original position and reinstates the cascaded tasks.
func DeleteColumn(p BoardPayload, id string) Mutation {
	m := columnDelete{id: id, index: -1}
	if i := columnIndex(p.Columns, id); i >= 0 {
		m.index = i
		m.removed = p.Columns[i]
		m.removed.TaskIDs = append([]string(nil), p.Columns[i].TaskIDs...)
		owned := make(map[string]struct{}, len(m.removed.TaskIDs))
		for _, tid := range m.removed.TaskIDs {
			owned[tid] = struct{}{}
		}
		for pos, t := range p.Tasks {
			if _, ok := owned[t.ID]; ok {
				m.tasks = append(m.tasks, t)
				m.taskPoss = append(m.taskPoss, pos)
			}
		}
	}
	return m
}

func (m columnDelete) Apply(p BoardPayload) BoardPayload {
	out := p.Clone()
	out.Columns = dropColumn(out.Columns, m.id)
	if len(m.tasks) > 0 {
		gone := make(map[string]struct{}, len(m.tasks))
		for _, t := range m.tasks {
			gone[t.ID] = struct{}{}
		}
		kept := out.Tasks[:0]
		for _, t := range out.Tasks {
			if _, ok := gone[t.ID]; !ok {
				kept = append(kept, t)
			}
		}
		out.Tasks = kept
	}
	return out
}

func (m columnDelete) Rollback(p BoardPayload) BoardPayload {
	if m.index < 0 {
		return p.Clone()
	}
	out := p.Clone()
	out.Columns = insertColumnAt(out.Columns, m.removed, m.index)
	// Reinsert cascaded tasks at their captured flat-list positions so the
	// reverted payload matches the pre-dispatch one exactly.
	for i, task := range m.tasks {
		pos := m.taskPoss[i]
		if pos > len(out.Tasks) {
			pos = len(out.Tasks)
		}
		out.Tasks = append(out.Tasks, Task{})
		copy(out.Tasks[pos+1:], out.Tasks[pos:])
		out.Tasks[pos] = task
	}
	return out
}

type taskInsert struct {
	columnID string
	task     Task
}

// InsertTask places a task at the head of the flat list and at the head of
// the owning column's TaskIDs. Used for optimistic creates with a temporary
// id; the inverse filters that id back out of both structures.
func InsertTask(columnID string, t Task) Mutation {
	return taskInsert{columnID: columnID, task: t}
}

func (m taskInsert) Apply(p BoardPayload) BoardPayload {
	out := p.Clone()
	out.Tasks = append([]Task{m.task}, out.Tasks...)
	if i := columnIndex(out.Columns, m.columnID); i >= 0 {
		out.Columns[i].TaskIDs = append([]string{m.task.ID}, out.Columns[i].TaskIDs...)
	}
	return out
}

func (m taskInsert) Rollback(p BoardPayload) BoardPayload {
	out := p.Clone()
	kept := out.Tasks[:0]
	for _, t := range out.Tasks {
		if t.ID != m.task.ID {
			kept = append(kept, t)
		}
	}
	out.Tasks = kept
	for i := range out.Columns {
		out.Columns[i].TaskIDs = dropString(out.Columns[i].TaskIDs, m.task.ID)
	}
	return out
}

type taskUpdate struct {
	task Task
	prev Task
	had  bool
}

// UpdateTask replaces a task's fields in the flat list, capturing the prior
// record for rollback. A task missing from p makes both transforms no-ops.
func UpdateTask(p BoardPayload, t Task) Mutation {
	m := taskUpdate{task: t}
	for _, cur := range p.Tasks {
		if cur.ID == t.ID {
			m.prev = cur
			m.had = true
			break
		}
	}
	return m
}

func (m taskUpdate) Apply(p BoardPayload) BoardPayload {
	if !m.had {
		return p.Clone()
	}
	return replaceTask(p, m.task)
}

func (m taskUpdate) Rollback(p BoardPayload) BoardPayload {
	if !m.had {
		return p.Clone()
	}
	return replaceTask(p, m.prev)
}

// RescheduleTask rewrites only a task's start and due dates. The calendar
// view shares this data, so dispatchers pair it with a calendar invalidation.
func RescheduleTask(p BoardPayload, id, start, due string) Mutation {
	m := taskUpdate{}
	for _, cur := range p.Tasks {
		if cur.ID == id {
			m.prev = cur
			m.task = cur
			m.task.StartDate = start
			m.task.DueDate = due
			m.had = true
			break
		}
	}
	return m
}

type taskMove struct {
	id       string
	from, to string
	pos      int
	fromPos  int
}

// MoveTask relocates a task reference from one column's id list into another
// (or the same) at the given position. The source index is captured so the
// inverse restores the exact prior placement.
func MoveTask(p BoardPayload, id, from, to string, pos int) Mutation {
	m := taskMove{id: id, from: from, to: to, pos: pos}
	if i := columnIndex(p.Columns, from); i >= 0 {
		m.fromPos = stringIndex(p.Columns[i].TaskIDs, id)
	}
	return m
}

func (m taskMove) Apply(p BoardPayload) BoardPayload {
	return shift(p, m.id, m.from, m.to, m.pos)
}

func (m taskMove) Rollback(p BoardPayload) BoardPayload {
	pos := m.fromPos
	if pos < 0 {
		pos = 0
	}
	return shift(p, m.id, m.to, m.from, pos)
}

func shift(p BoardPayload, id, from, to string, pos int) BoardPayload {
	out := p.Clone()
	if i := columnIndex(out.Columns, from); i >= 0 {
		out.Columns[i].TaskIDs = dropString(out.Columns[i].TaskIDs, id)
	}
	if i := columnIndex(out.Columns, to); i >= 0 {
		ids := out.Columns[i].TaskIDs
		if pos < 0 {
			pos = 0
		}
		if pos > len(ids) {
			pos = len(ids)
		}
		ids = append(ids, "")
		copy(ids[pos+1:], ids[pos:])
		ids[pos] = id
		out.Columns[i].TaskIDs = ids
	}
	return out
}

type taskDelete struct {
	id       string
	task     Task
	taskPos  int
	columnID string
	colPos   int
}

// DeleteTask removes a task from the flat list and from its containing
// column's id list, capturing both positions for rollback.
func DeleteTask(p BoardPayload, id string) Mutation {
	m := taskDelete{id: id, taskPos: -1, colPos: -1}
	for i, t := range p.Tasks {
		if t.ID == id {
			m.task = t
			m.taskPos = i
			break
		}
	}
	for _, c := range p.Columns {
		if i := stringIndex(c.TaskIDs, id); i >= 0 {
			m.columnID = c.ID
			m.colPos = i
			break
		}
	}
	return m
}

func (m taskDelete) Apply(p BoardPayload) BoardPayload {
	out := p.Clone()
	kept := out.Tasks[:0]
	for _, t := range out.Tasks {
		if t.ID != m.id {
			kept = append(kept, t)
		}
	}
	out.Tasks = kept
	for i := range out.Columns {
		out.Columns[i].TaskIDs = dropString(out.Columns[i].TaskIDs, m.id)
	}
	return out
}

func (m taskDelete) Rollback(p BoardPayload) BoardPayload {
	out := p.Clone()
	if m.taskPos >= 0 {
		pos := m.taskPos
		if pos > len(out.Tasks) {
			pos = len(out.Tasks)
		}
		out.Tasks = append(out.Tasks, Task{})
		copy(out.Tasks[pos+1:], out.Tasks[pos:])
		out.Tasks[pos] = m.task
	}
	if m.colPos >= 0 {
		if i := columnIndex(out.Columns, m.columnID); i >= 0 {
			ids := out.Columns[i].TaskIDs
			pos := m.colPos
			if pos > len(ids) {
				pos = len(ids)
			}
			ids = append(ids, "")
			copy(ids[pos+1:], ids[pos:])
			ids[pos] = m.id
			out.Columns[i].TaskIDs = ids
		}
	}
	return out
}

func replaceTask(p BoardPayload, t Task) BoardPayload {
	out := p.Clone()
	for i := range out.Tasks {
		if out.Tasks[i].ID == t.ID {
			out.Tasks[i] = t
			break
		}
	}
	return out
}

func columnIndex(cols []Column, id string) int {
	for i, c := range cols {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func stringIndex(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func dropString(ids []string, id string) []string {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}

func dropColumn(cols []Column, id string) []Column {
	kept := cols[:0]
	for _, c := range cols {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	return kept
}

func insertColumnAt(cols []Column, c Column, pos int) []Column {
	if pos < 0 {
		pos = 0
	}
	if pos > len(cols) {
		pos = len(cols)
	}
	cols = append(cols, Column{})
	copy(cols[pos+1:], cols[pos:])
	cols[pos] = c
	return cols
}
