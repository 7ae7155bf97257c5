package domain

import (
	"reflect"
	"testing"
)

func samplePayload() BoardPayload {
	return BoardPayload{
		Tasks: []Task{
			{ID: "t3", Title: "Order filters"},
			{ID: "t2", Title: "Replace valve", ClientID: "cl-1"},
			{ID: "t1", Title: "Inspect boiler", ClientID: "cl-1"},
		},
		Columns: []Column{
			{ID: "c1", Title: "Todo", TaskIDs: []string{"t1", "t3"}},
			{ID: "c2", Title: "In Progress", TaskIDs: []string{"t2"}},
		},
	}
}

func TestBuildBoardPreservesFlatOrder(t *testing.T) {
	board := BuildBoard(samplePayload())

	if len(board.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(board.Columns))
	}
	if board.Columns[0].Name != "Todo" || board.Columns[1].Name != "In Progress" {
		t.Fatalf("unexpected column names: %#v", board.Columns)
	}

	got := board.Tasks["c1"]
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks in c1, got %d", len(got))
	}
	// t3 precedes t1 in the flat list, so the bucket keeps that order even
	// though the column lists t1 first.
	if got[0].ID != "t3" || got[1].ID != "t1" {
		t.Fatalf("bucket order not taken from flat list: %#v", got)
	}
}

func TestBuildBoardIdempotent(t *testing.T) {
	p := samplePayload()
	first := BuildBoard(p)
	second := BuildBoard(p)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("transformer not idempotent:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestBuildBoardBucketMembership(t *testing.T) {
	p := samplePayload()
	board := BuildBoard(p)

	for _, col := range p.Columns {
		members := map[string]struct{}{}
		for _, id := range col.TaskIDs {
			members[id] = struct{}{}
		}
		for _, task := range board.Tasks[col.ID] {
			if _, ok := members[task.ID]; !ok {
				t.Fatalf("task %s in bucket %s but not in TaskIDs", task.ID, col.ID)
			}
		}
	}
}

func TestBuildBoardDropsUnreferencedTasks(t *testing.T) {
	p := samplePayload()
	p.Tasks = append(p.Tasks, Task{ID: "orphan", Title: "No column"})
	board := BuildBoard(p)

	for colID, bucket := range board.Tasks {
		for _, task := range bucket {
			if task.ID == "orphan" {
				t.Fatalf("orphan task surfaced in bucket %s", colID)
			}
		}
	}
}

func TestBuildBoardIgnoresDanglingTaskIDs(t *testing.T) {
	p := samplePayload()
	p.Columns[0].TaskIDs = append(p.Columns[0].TaskIDs, "missing")
	board := BuildBoard(p)

	if len(board.Tasks["c1"]) != 2 {
		t.Fatalf("dangling id changed bucket size: %#v", board.Tasks["c1"])
	}
}

func TestBuildBoardEmptyPayload(t *testing.T) {
	board := BuildBoard(BoardPayload{})
	if len(board.Columns) != 0 {
		t.Fatalf("expected no columns, got %#v", board.Columns)
	}
	if len(board.Tasks) != 0 {
		t.Fatalf("expected no buckets, got %#v", board.Tasks)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := samplePayload()
	clone := p.Clone()

	clone.Tasks[0].Title = "changed"
	clone.Columns[0].TaskIDs[0] = "changed"

	if p.Tasks[0].Title == "changed" {
		t.Fatal("clone aliases the task slice")
	}
	if p.Columns[0].TaskIDs[0] == "changed" {
		t.Fatal("clone aliases a column's TaskIDs")
	}
}

func TestScheduled(t *testing.T) {
	if (Task{}).Scheduled() {
		t.Fatal("task without dates reported as scheduled")
	}
	if !(Task{StartDate: "2026-09-01"}).Scheduled() {
		t.Fatal("task with start date not reported as scheduled")
	}
	if !(Task{DueDate: "2026-09-02"}).Scheduled() {
		t.Fatal("task with due date not reported as scheduled")
	}
}
