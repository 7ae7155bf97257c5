package cache

import (
	"reflect"
	"strings"
	"testing"

	"fieldboard-api/domain"
)

func payloadWith(taskIDs ...string) domain.BoardPayload {
	tasks := make([]domain.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		tasks = append(tasks, domain.Task{ID: id, Title: "task " + id})
	}
	return domain.BoardPayload{
		Tasks:   tasks,
		Columns: []domain.Column{{ID: "c1", Title: "Todo", TaskIDs: append([]string{}, taskIDs...)}},
	}
}

func TestReadMissingKey(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Read("nope"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestPutThenRead(t *testing.T) {
	s := NewMemoryStore()
	p := payloadWith("t1")
	s.Put("k", p, "board")

	got, ok := s.Read("k")
	if !ok {
		t.Fatal("expected hit")
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("unexpected payload: %#v", got)
	}
	if s.Stale("k") {
		t.Fatal("fresh entry must not be stale")
	}
}

func TestReadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	s.Put("k", payloadWith("t1"))

	got, _ := s.Read("k")
	got.Tasks[0].Title = "mutated"
	got.Columns[0].TaskIDs[0] = "mutated"

	again, _ := s.Read("k")
	if again.Tasks[0].Title == "mutated" || again.Columns[0].TaskIDs[0] == "mutated" {
		t.Fatal("Read leaked a reference to cached state")
	}
}

func TestWriteSkipsUnknownKey(t *testing.T) {
	s := NewMemoryStore()
	called := false
	s.Write("never-fetched", func(p domain.BoardPayload) domain.BoardPayload {
		called = true
		return p
	}, false)
	if called {
		t.Fatal("update ran for a key that was never fetched")
	}
}

func TestWriteAppliesUpdate(t *testing.T) {
	s := NewMemoryStore()
	s.Put("k", payloadWith("t1"))

	s.Write("k", func(p domain.BoardPayload) domain.BoardPayload {
		p.Columns[0].Title = "Renamed"
		return p
	}, false)

	got, _ := s.Read("k")
	if got.Columns[0].Title != "Renamed" {
		t.Fatalf("update not applied: %#v", got.Columns[0])
	}
	if s.Stale("k") {
		t.Fatal("write without revalidate must not mark stale")
	}
}

func TestWriteWithRevalidateMarksStale(t *testing.T) {
	s := NewMemoryStore()
	s.Put("k", payloadWith("t1"))
	s.Write("k", func(p domain.BoardPayload) domain.BoardPayload { return p }, true)
	if !s.Stale("k") {
		t.Fatal("expected entry to be stale")
	}
}

func TestInvalidatePredicate(t *testing.T) {
	s := NewMemoryStore()
	s.Put("/kanban?endpoint=board", payloadWith("t1"))
	s.Put("/kanban?endpoint=board&clientId=cl-1", payloadWith("t1"))
	s.Put("/calendar", payloadWith("t1"))

	s.Invalidate(func(key string) bool { return strings.HasPrefix(key, "/kanban") })

	if !s.Stale("/kanban?endpoint=board") || !s.Stale("/kanban?endpoint=board&clientId=cl-1") {
		t.Fatal("matching keys not marked stale")
	}
	if s.Stale("/calendar") {
		t.Fatal("non-matching key marked stale")
	}
}

func TestInvalidateKeepsValueServing(t *testing.T) {
	s := NewMemoryStore()
	p := payloadWith("t1")
	s.Put("k", p)
	s.Invalidate(func(string) bool { return true })

	got, ok := s.Read("k")
	if !ok || !reflect.DeepEqual(got, p) {
		t.Fatal("stale entry must keep serving its value")
	}
}

func TestInvalidateTags(t *testing.T) {
	s := NewMemoryStore()
	s.Put("board", payloadWith("t1"), "board")
	s.Put("board-filtered", payloadWith("t1"), "board")
	s.Put("calendar", payloadWith("t1"), "calendar")

	s.InvalidateTags("calendar")

	if s.Stale("board") || s.Stale("board-filtered") {
		t.Fatal("board entries marked stale by calendar tag")
	}
	if !s.Stale("calendar") {
		t.Fatal("calendar entry not marked stale")
	}
}

func TestPutClearsStale(t *testing.T) {
	s := NewMemoryStore()
	s.Put("k", payloadWith("t1"), "board")
	s.InvalidateTags("board")
	s.Put("k", payloadWith("t1", "t2"), "board")
	if s.Stale("k") {
		t.Fatal("Put must clear the stale mark")
	}
}

func TestKeys(t *testing.T) {
	s := NewMemoryStore()
	s.Put("a", payloadWith())
	s.Put("ab", payloadWith())
	s.Put("b", payloadWith())

	keys := s.Keys(func(key string) bool { return strings.HasPrefix(key, "a") })
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	all := s.Keys(nil)
	if len(all) != 3 {
		t.Fatalf("expected 3 keys, got %v", all)
	}
}
