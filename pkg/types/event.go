package types

import "time"

// Audit actions recorded by the event recorder.
const (
	EventUnshelveRequested  = "unshelve_requested"
	EventUnshelveComplete   = "unshelve_complete"
	EventUnshelveIncomplete = "unshelve_incomplete"
	EventShelveRequested    = "shelve_requested"
	EventShelveComplete     = "shelve_complete"
	EventWorkflowFailed     = "workflow_failed"
)

// Event is one newline-delimited audit record.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	Actor        string    `json:"actor"`
	InstanceName string    `json:"instance_name"`
	Detail       *string   `json:"detail"`
}
