// Package action owns the per-target lifecycle state machine: it serializes
// start requests into at most one background workflow per target, drives
// shelve/unshelve transitions with polling and HTTP readiness probing, and
// publishes immutable status snapshots to concurrent readers.
package action

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/openwake/openwake/internal/compute"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/pkg/types"
)

// ErrNotFound is returned for target ids that are not configured.
var ErrNotFound = errors.New("action: unknown target")

// Auditor records one audit event per lifecycle action. *events.Recorder
// satisfies it; a nil Auditor disables auditing.
type Auditor interface {
	Record(ctx context.Context, action, actor, instanceName string, detail *string)
}

// Manager holds one status record and at most one running workflow per
// target. All record mutations are read-modify-write under a single mutex,
// and each update replaces the whole snapshot so readers never observe a
// half-written record.
type Manager struct {
	gateway  compute.Gateway
	recorder Auditor
	app      config.App

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	targets  map[string]config.Target
	order    []string
	statuses map[string]types.StatusRecord
	tasks    map[string]struct{}
}

// NewManager creates a manager with one idle status record per target.
// Call PrimeStatuses afterwards to seed the records with live provider state.
func NewManager(gateway compute.Gateway, recorder Auditor, app config.App, targets []config.Target) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		gateway:  gateway,
		recorder: recorder,
		app:      app,
		baseCtx:  ctx,
		cancel:   cancel,
		targets:  make(map[string]config.Target, len(targets)),
		statuses: make(map[string]types.StatusRecord, len(targets)),
		tasks:    make(map[string]struct{}),
	}
	for _, t := range targets {
		m.targets[t.ID] = t
		m.order = append(m.order, t.ID)
		m.statuses[t.ID] = types.StatusRecord{
			TargetID:     t.ID,
			InstanceName: t.InstanceName,
			State:        types.StateIdle,
			Message:      "Status not yet checked",
			LastUpdated:  time.Now().UTC(),
		}
	}
	return m
}

// Close stops all background workflows and waits for them to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Status returns the current snapshot for the target.
func (m *Manager) Status(targetID string) (types.StatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.statuses[targetID]
	if !ok {
		return types.StatusRecord{}, ErrNotFound
	}
	return rec, nil
}

// Statuses returns all snapshots in configuration order.
func (m *Manager) Statuses() []types.StatusRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.StatusRecord, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.statuses[id])
	}
	return out
}

// RefreshStatus re-reads the live provider status and folds it into the
// record's message. When a workflow is running the current snapshot is
// returned unchanged so the refresh never collides with the workflow's own
// updates. A provider read failure degrades the message without setting the
// error field.
func (m *Manager) RefreshStatus(ctx context.Context, targetID string) (types.StatusRecord, error) {
	m.mu.Lock()
	target, ok := m.targets[targetID]
	if !ok {
		m.mu.Unlock()
		return types.StatusRecord{}, ErrNotFound
	}
	if _, running := m.tasks[targetID]; running {
		rec := m.statuses[targetID]
		m.mu.Unlock()
		return rec, nil
	}
	m.mu.Unlock()

	var message string
	inst, err := m.gateway.FindByName(ctx, target.InstanceName)
	switch {
	case err != nil:
		log.Printf("action: refresh %s: %v", targetID, err)
		message = "Status temporarily unavailable"
	case inst == nil:
		message = "Instance not found"
	default:
		message = "Instance status: " + compute.FormatStatus(inst.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// A workflow may have started while the provider call was in flight;
	// leave its record alone.
	if _, running := m.tasks[targetID]; !running {
		p := Patch{Message: message}
		m.statuses[targetID] = p.apply(m.statuses[targetID])
	}
	return m.statuses[targetID], nil
}

// PrimeStatuses seeds each record with a best-effort provider status read.
func (m *Manager) PrimeStatuses(ctx context.Context) {
	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()
	for _, id := range ids {
		if _, err := m.RefreshStatus(ctx, id); err != nil {
			log.Printf("action: prime %s: %v", id, err)
		}
	}
}

// StartUnshelve begins the unshelve workflow for the target and returns the
// updated snapshot. When a workflow is already running the current snapshot
// is returned unchanged and no second workflow starts.
func (m *Manager) StartUnshelve(targetID, actor, reason string) (types.StatusRecord, error) {
	p := Patch{
		State:     types.StateUnshelving,
		Message:   "Starting unshelve",
		Running:   boolPtr(true),
		HTTPReady: boolPtr(false),
	}
	p.SetURL(nil).SetError(nil)
	return m.start(targetID, actor, reason, &p, m.runUnshelve)
}

// StartShelve begins the shelve workflow for the target, with the same
// de-duplication guarantee as StartUnshelve.
func (m *Manager) StartShelve(targetID, actor, reason string) (types.StatusRecord, error) {
	p := Patch{
		State:     types.StateShelving,
		Message:   "Starting shelve",
		Running:   boolPtr(true),
		HTTPReady: boolPtr(false),
	}
	p.SetError(nil)
	return m.start(targetID, actor, reason, &p, m.runShelve)
}

func (m *Manager) start(targetID, actor, reason string, p *Patch, run func(config.Target, string, string)) (types.StatusRecord, error) {
	m.mu.Lock()
	target, ok := m.targets[targetID]
	if !ok {
		m.mu.Unlock()
		return types.StatusRecord{}, ErrNotFound
	}
	if _, running := m.tasks[targetID]; running {
		rec := m.statuses[targetID]
		m.mu.Unlock()
		return rec, nil
	}
	m.tasks[targetID] = struct{}{}
	rec := p.apply(m.statuses[targetID])
	m.statuses[targetID] = rec
	m.mu.Unlock()

	m.wg.Add(1)
	go run(target, actor, reason)
	return rec, nil
}

// finish removes the target's task registry entry and clears running.
// Deferred by every workflow so the flag is cleared on all exit paths.
func (m *Manager) finish(targetID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, targetID)
	p := Patch{Running: boolPtr(false)}
	m.statuses[targetID] = p.apply(m.statuses[targetID])
}

// applyPatch publishes a new snapshot for the target.
func (m *Manager) applyPatch(targetID string, p *Patch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[targetID] = p.apply(m.statuses[targetID])
}

func (m *Manager) audit(ctx context.Context, action, actor, instanceName string, detail *string) {
	if m.recorder == nil {
		return
	}
	m.recorder.Record(ctx, action, actor, instanceName, detail)
}

func boolPtr(b bool) *bool { return &b }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
