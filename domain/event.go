package domain

// ChangeOp identifies the kind of board mutation a change event records.
type ChangeOp string

const (
	ChangeOpCreate  ChangeOp = "create"
	ChangeOpUpdate  ChangeOp = "update"
	ChangeOpMove    ChangeOp = "move"
	ChangeOpReorder ChangeOp = "reorder"
	ChangeOpDelete  ChangeOp = "delete"
)

// ChangeEvent describes one applied board mutation. Events are published to
// the change queue after the write succeeds so downstream consumers can react;
// they are advisory and never part of the write path itself.
type ChangeEvent struct {
	TenantID   string   `json:"tenantId"`
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Op         ChangeOp `json:"op"`
	// CascadeIDs lists task ids removed by a column delete so consumers do
	// not have to re-read the board to learn what disappeared.
	CascadeIDs []string `json:"cascadeIds,omitempty"`
	Timestamp  int64    `json:"timestamp"`
}
