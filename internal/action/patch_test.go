package action

import (
	"testing"
	"time"

	"github.com/openwake/openwake/pkg/types"
)

func TestPatchLeavesUnsetFieldsAlone(t *testing.T) {
	url := "http://10.0.0.5/"
	detail := "boom"
	rec := types.StatusRecord{
		TargetID:  "chatbox",
		State:     types.StateActive,
		Message:   "old message",
		Running:   true,
		URL:       &url,
		HTTPReady: true,
		Error:     &detail,
	}

	p := Patch{Message: "new message"}
	got := p.apply(rec)

	if got.State != types.StateActive {
		t.Errorf("state changed to %s", got.State)
	}
	if got.Message != "new message" {
		t.Errorf("message = %q", got.Message)
	}
	if !got.Running || !got.HTTPReady {
		t.Error("running/http_ready flipped by an empty patch")
	}
	if got.URL != &url || got.Error != &detail {
		t.Error("url/error replaced without SetURL/SetError")
	}
}

func TestPatchDistinguishesUnsetFromCleared(t *testing.T) {
	url := "http://10.0.0.5/"
	detail := "boom"
	rec := types.StatusRecord{URL: &url, Error: &detail}

	// SetError(nil) is an explicit clear; URL is untouched.
	p := Patch{}
	got := p.SetError(nil).apply(rec)
	if got.Error != nil {
		t.Errorf("expected error cleared, got %q", *got.Error)
	}
	if got.URL == nil || *got.URL != url {
		t.Error("url must survive a patch that never set it")
	}
}

func TestPatchStampsLastUpdated(t *testing.T) {
	rec := types.StatusRecord{LastUpdated: time.Now().Add(-time.Hour)}
	p := Patch{Message: "tick"}
	got := p.apply(rec)
	if !got.LastUpdated.After(rec.LastUpdated) {
		t.Error("expected last_updated to advance")
	}
}

func TestPatchDoesNotMutateInput(t *testing.T) {
	rec := types.StatusRecord{State: types.StateIdle, Message: "before"}
	p := Patch{State: types.StateReady, Message: "after", Running: boolPtr(true)}
	p.apply(rec)
	if rec.State != types.StateIdle || rec.Message != "before" || rec.Running {
		t.Errorf("input record mutated: %+v", rec)
	}
}
