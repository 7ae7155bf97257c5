package storage

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"fieldboard-api/api"
)

func TestDecodeColumnEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"tenant-1","RowKey":"c1","Kind":"column","Title":"Todo","TaskIDs":"[\"t1\",\"t2\"]","Position":3}`)
	var ent columnEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	col := columnFromEntity(ent)
	if col.ID != "c1" || col.Title != "Todo" {
		t.Fatalf("unexpected column: %+v", col)
	}
	if !reflect.DeepEqual(col.TaskIDs, []string{"t1", "t2"}) {
		t.Fatalf("unexpected task ids: %#v", col.TaskIDs)
	}
	if ent.Position != 3 {
		t.Fatalf("unexpected position: %d", ent.Position)
	}
}

func TestDecodeTaskEntity(t *testing.T) {
	data := []byte(`{"PartitionKey":"tenant-1","RowKey":"t1","Kind":"task","Title":"Inspect boiler","ClientID":"cl-1","StartDate":"2026-09-01","Extra":"{\"priority\":2}"}`)
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		t.Fatalf("decode: %v", err)
	}
	task := taskFromEntity(ent)
	if task.ID != "t1" || task.Title != "Inspect boiler" || task.ClientID != "cl-1" {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.StartDate != "2026-09-01" {
		t.Fatalf("unexpected start date: %q", task.StartDate)
	}
	if string(task.Extra) != `{"priority":2}` {
		t.Fatalf("unexpected extra payload: %q", task.Extra)
	}
}

func TestTaskIDsRoundTrip(t *testing.T) {
	if got := encodeTaskIDs(nil); got != "[]" {
		t.Fatalf("nil ids must encode as empty list, got %q", got)
	}
	if got := decodeTaskIDs(""); len(got) != 0 {
		t.Fatalf("empty string must decode as no ids, got %#v", got)
	}
	if got := decodeTaskIDs("not json"); len(got) != 0 {
		t.Fatalf("garbage must decode as no ids, got %#v", got)
	}
	ids := []string{"t1", "t2"}
	if got := decodeTaskIDs(encodeTaskIDs(ids)); !reflect.DeepEqual(got, ids) {
		t.Fatalf("round trip mismatch: %#v", got)
	}
}

func TestRemoveID(t *testing.T) {
	ids := []string{"t1", "t2", "t3"}
	if got := removeID(ids, "t2"); !reflect.DeepEqual(got, []string{"t1", "t3"}) {
		t.Fatalf("unexpected result: %#v", got)
	}
	if got := removeID(ids, "ghost"); !reflect.DeepEqual(got, ids) {
		t.Fatalf("removing an absent id must be a no-op: %#v", got)
	}
}

func TestInsertIDClampsPosition(t *testing.T) {
	ids := []string{"t1", "t2"}
	if got := insertID(append([]string(nil), ids...), "x", 1); !reflect.DeepEqual(got, []string{"t1", "x", "t2"}) {
		t.Fatalf("unexpected result: %#v", got)
	}
	if got := insertID(append([]string(nil), ids...), "x", -5); got[0] != "x" {
		t.Fatalf("negative position must clamp to head: %#v", got)
	}
	if got := insertID(append([]string(nil), ids...), "x", 99); got[len(got)-1] != "x" {
		t.Fatalf("out-of-range position must clamp to tail: %#v", got)
	}
}

func TestCreatedStampOrdering(t *testing.T) {
	first := createdStamp()
	second := createdStamp()
	if len(first) != 20 || len(second) != 20 {
		t.Fatalf("stamps must be fixed width: %q %q", first, second)
	}
	if second < first {
		t.Fatalf("later stamp sorts before earlier one: %q < %q", second, first)
	}
}

func TestNotFoundErrorSatisfiesHandlerContract(t *testing.T) {
	err := error(NotFoundError{Entity: "task", ID: "t9"})
	var nf api.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatal("NotFoundError must satisfy the handler's not-found contract")
	}
	if err.Error() != "task t9 not found" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
