package action

import (
	"time"

	"github.com/openwake/openwake/pkg/types"
)

// Patch is a partial status update. Zero-value State and Message leave the
// field untouched; Running and HTTPReady are pointers for the same reason.
// URL and Error go through SetURL/SetError so that "not provided" stays
// distinguishable from "explicitly cleared".
type Patch struct {
	State     types.ActionState
	Message   string
	Running   *bool
	HTTPReady *bool

	url    *string
	urlSet bool
	errMsg *string
	errSet bool
}

// SetURL marks the URL field for replacement, including clearing it with nil.
func (p *Patch) SetURL(u *string) *Patch {
	p.url = u
	p.urlSet = true
	return p
}

// SetError marks the error field for replacement, including clearing it with nil.
func (p *Patch) SetError(e *string) *Patch {
	p.errMsg = e
	p.errSet = true
	return p
}

// apply returns a new record with the patch folded in. The input record is
// never mutated; callers publish the returned value as the next snapshot.
func (p *Patch) apply(rec types.StatusRecord) types.StatusRecord {
	if p.State != "" {
		rec.State = p.State
	}
	if p.Message != "" {
		rec.Message = p.Message
	}
	if p.Running != nil {
		rec.Running = *p.Running
	}
	if p.HTTPReady != nil {
		rec.HTTPReady = *p.HTTPReady
	}
	if p.urlSet {
		rec.URL = p.url
	}
	if p.errSet {
		rec.Error = p.errMsg
	}
	rec.LastUpdated = time.Now().UTC()
	return rec
}
