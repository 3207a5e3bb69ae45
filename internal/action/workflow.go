package action

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/openwake/openwake/internal/compute"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/internal/metrics"
	"github.com/openwake/openwake/pkg/types"
)

// Transitional provider statuses tolerated while an instance is leaving its
// shelf. Anything else that is not ACTIVE fails the unshelve workflow.
var unshelveTransitional = map[string]bool{
	compute.StatusShelved:          true,
	compute.StatusShelvedOffloaded: true,
	"UNSHELVING":                   true,
	"BUILD":                        true,
}

func (m *Manager) runUnshelve(target config.Target, actor, reason string) {
	defer m.wg.Done()
	defer m.finish(target.ID)
	ctx := m.baseCtx

	start := time.Now()
	metrics.WorkflowsStartedTotal.WithLabelValues(target.ID, "unshelve").Inc()
	defer m.observeWorkflow(target.ID, "unshelve", start)

	m.audit(ctx, types.EventUnshelveRequested, actor, target.InstanceName, optional(reason))

	if err := m.unshelve(ctx, target, actor); err != nil {
		detail := err.Error()
		log.Printf("action: unshelve %s failed: %v", target.ID, err)
		p := Patch{State: types.StateError, Message: "Unshelve failed"}
		m.applyPatch(target.ID, p.SetError(&detail))
		m.audit(ctx, types.EventWorkflowFailed, actor, target.InstanceName, &detail)
	}
}

func (m *Manager) runShelve(target config.Target, actor, reason string) {
	defer m.wg.Done()
	defer m.finish(target.ID)
	ctx := m.baseCtx

	start := time.Now()
	metrics.WorkflowsStartedTotal.WithLabelValues(target.ID, "shelve").Inc()
	defer m.observeWorkflow(target.ID, "shelve", start)

	m.audit(ctx, types.EventShelveRequested, actor, target.InstanceName, optional(reason))

	if err := m.shelve(ctx, target, actor); err != nil {
		detail := err.Error()
		log.Printf("action: shelve %s failed: %v", target.ID, err)
		p := Patch{State: types.StateError, Message: "Shelve failed"}
		m.applyPatch(target.ID, p.SetError(&detail))
		m.audit(ctx, types.EventWorkflowFailed, actor, target.InstanceName, &detail)
	}
}

// unshelve drives one target from shelved to ready. Soft outcomes (no
// resolvable address, probe exhaustion) are folded into the status record
// and return nil; only fatal failures return an error.
func (m *Manager) unshelve(ctx context.Context, target config.Target, actor string) error {
	inst, err := m.gateway.FindByName(ctx, target.InstanceName)
	if err != nil {
		return fmt.Errorf("look up instance %q: %w", target.InstanceName, err)
	}
	if inst == nil {
		return fmt.Errorf("instance %q not found", target.InstanceName)
	}

	if compute.IsShelved(inst.Status) {
		m.applyPatch(target.ID, &Patch{State: types.StateUnshelving, Message: "Requesting unshelve"})
		if err := m.gateway.Unshelve(ctx, inst.ID); err != nil {
			return err
		}
	} else {
		// Already booting (or running); polling alone will converge.
		log.Printf("action: %s is %s, skipping unshelve request", target.InstanceName, inst.Status)
	}
	m.applyPatch(target.ID, &Patch{State: types.StateBooting, Message: "Waiting for the instance to become active"})

	inst, err = m.waitUntilActive(ctx, target, inst.ID)
	if err != nil {
		return err
	}

	endpoint := compute.ResolveEndpoint(inst, target)
	if endpoint == nil {
		log.Printf("action: %s is active but no reachable address resolved", target.InstanceName)
		p := Patch{State: types.StateActive, Message: "Instance is active but no reachable address was found"}
		m.applyPatch(target.ID, p.SetURL(nil))
		return nil
	}

	url := endpoint.LaunchURL()
	p := Patch{State: types.StateCheckingHTTP, Message: "Checking the application over HTTP"}
	m.applyPatch(target.ID, p.SetURL(&url))

	if detail, ok := m.probeHTTP(ctx, target, *endpoint); !ok {
		p := Patch{State: types.StateActive, Message: "Instance is active but the application is not responding", HTTPReady: boolPtr(false)}
		m.applyPatch(target.ID, p.SetError(&detail))
		m.audit(ctx, types.EventUnshelveIncomplete, actor, target.InstanceName, &detail)
		return nil
	}

	p = Patch{State: types.StateReady, Message: "Ready", HTTPReady: boolPtr(true)}
	m.applyPatch(target.ID, p.SetError(nil))
	m.audit(ctx, types.EventUnshelveComplete, actor, target.InstanceName, &url)
	return nil
}

// shelve drives one target to the shelved state, short-circuiting when the
// provider already reports it shelved.
func (m *Manager) shelve(ctx context.Context, target config.Target, actor string) error {
	inst, err := m.gateway.FindByName(ctx, target.InstanceName)
	if err != nil {
		return fmt.Errorf("look up instance %q: %w", target.InstanceName, err)
	}
	if inst == nil {
		return fmt.Errorf("instance %q not found", target.InstanceName)
	}

	if compute.IsShelved(inst.Status) {
		p := Patch{State: types.StateShelved, Message: "Instance is already shelved", HTTPReady: boolPtr(false)}
		m.applyPatch(target.ID, p.SetURL(nil).SetError(nil))
		detail := "already shelved"
		m.audit(ctx, types.EventShelveComplete, actor, target.InstanceName, &detail)
		return nil
	}

	m.applyPatch(target.ID, &Patch{State: types.StateShelving, Message: "Requesting shelve"})
	if err := m.gateway.Shelve(ctx, inst.ID); err != nil {
		return err
	}
	if err := m.waitUntilShelved(ctx, target, inst.ID); err != nil {
		return err
	}

	p := Patch{State: types.StateShelved, Message: "Shelved", HTTPReady: boolPtr(false)}
	m.applyPatch(target.ID, p.SetURL(nil).SetError(nil))
	m.audit(ctx, types.EventShelveComplete, actor, target.InstanceName, nil)
	return nil
}

func (m *Manager) waitUntilActive(ctx context.Context, target config.Target, instanceID string) (*compute.Instance, error) {
	for {
		inst, err := m.gateway.Get(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("poll instance status: %w", err)
		}
		switch {
		case inst.Status == compute.StatusActive:
			return inst, nil
		case inst.Status == compute.StatusError:
			return nil, fmt.Errorf("instance %q entered ERROR while unshelving", target.InstanceName)
		case !unshelveTransitional[inst.Status]:
			return nil, fmt.Errorf("instance %q reported unexpected status %s while unshelving", target.InstanceName, inst.Status)
		}
		m.applyPatch(target.ID, &Patch{Message: "Instance status: " + compute.FormatStatus(inst.Status)})
		if err := sleep(ctx, m.app.PollInterval()); err != nil {
			return nil, err
		}
	}
}

// waitUntilShelved polls until the provider reports the instance shelved.
// ERROR fails the workflow when app.fail_shelve_on_error is set (the
// default); otherwise polling continues until shutdown.
func (m *Manager) waitUntilShelved(ctx context.Context, target config.Target, instanceID string) error {
	for {
		inst, err := m.gateway.Get(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("poll instance status: %w", err)
		}
		if compute.IsShelved(inst.Status) {
			return nil
		}
		if inst.Status == compute.StatusError && m.app.ShelveFailsOnError() {
			return fmt.Errorf("instance %q entered ERROR while shelving", target.InstanceName)
		}
		m.applyPatch(target.ID, &Patch{Message: "Instance status: " + compute.FormatStatus(inst.Status)})
		if err := sleep(ctx, m.app.PollInterval()); err != nil {
			return err
		}
	}
}

// probeHTTP issues up to N GET requests against the healthcheck URL. Any
// response below 400 counts as ready. On exhaustion it returns the last
// failure detail.
func (m *Manager) probeHTTP(ctx context.Context, target config.Target, endpoint compute.Endpoint) (string, bool) {
	client := &http.Client{Timeout: m.app.ProbeTimeout()}
	if !endpoint.VerifyTLS {
		client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	attempts := target.ProbeAttempts(m.app)
	interval := target.ProbeInterval(m.app)
	url := endpoint.HealthcheckURL()

	var detail string
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err.Error(), false
		}
		resp, err := client.Do(req)
		switch {
		case err != nil:
			detail = err.Error()
		case resp.StatusCode < 400:
			resp.Body.Close()
			metrics.ProbeAttemptsTotal.WithLabelValues(target.ID, "success").Inc()
			return "", true
		default:
			resp.Body.Close()
			detail = fmt.Sprintf("healthcheck returned HTTP %d", resp.StatusCode)
		}
		metrics.ProbeAttemptsTotal.WithLabelValues(target.ID, "failure").Inc()
		m.applyPatch(target.ID, &Patch{Message: fmt.Sprintf("Waiting for the application (attempt %d/%d)", attempt, attempts)})
		if attempt < attempts {
			if err := sleep(ctx, interval); err != nil {
				return detail, false
			}
		}
	}
	return detail, false
}

// observeWorkflow records the workflow duration labeled with the final state.
func (m *Manager) observeWorkflow(targetID, action string, start time.Time) {
	rec, err := m.Status(targetID)
	if err != nil {
		return
	}
	metrics.WorkflowDuration.WithLabelValues(targetID, action, string(rec.State)).Observe(time.Since(start).Seconds())
}

// sleep waits for d or until ctx is canceled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
