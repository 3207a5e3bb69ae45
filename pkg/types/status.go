package types

import "time"

// ActionState is the lifecycle state of a target from the manager's perspective.
type ActionState string

const (
	StateIdle         ActionState = "idle"
	StateUnshelving   ActionState = "unshelving"
	StateBooting      ActionState = "booting"
	StateShelving     ActionState = "shelving"
	StateCheckingHTTP ActionState = "checking_http"
	StateActive       ActionState = "active"
	StateReady        ActionState = "ready"
	StateShelved      ActionState = "shelved"
	StateError        ActionState = "error"
)

// TargetStatus pairs a target's configured identity with its live snapshot,
// as served by the HTTP API.
type TargetStatus struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Description string       `json:"description,omitempty"`
	Status      StatusRecord `json:"status"`
}

// StatusRecord is the published status snapshot for one target.
// Records are immutable once published; the manager replaces the whole
// record on every update so readers never observe a half-written one.
type StatusRecord struct {
	TargetID     string      `json:"target_id"`
	InstanceName string      `json:"instance_name"`
	State        ActionState `json:"state"`
	Message      string      `json:"message"`
	Running      bool        `json:"running"`
	URL          *string     `json:"url"`
	HTTPReady    bool        `json:"http_ready"`
	Error        *string     `json:"error"`
	LastUpdated  time.Time   `json:"last_updated"`
}
