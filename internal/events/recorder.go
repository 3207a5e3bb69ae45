// Package events appends structured audit records for every lifecycle action,
// locally and optionally to S3-compatible object storage.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openwake/openwake/internal/metrics"
	"github.com/openwake/openwake/pkg/types"
)

// Sink persists one serialized audit record.
type Sink interface {
	Write(ctx context.Context, ev types.Event, line []byte) error
	Name() string
}

// Recorder fans each event out to all configured sinks. Sink writes for a
// single event run concurrently and are awaited together; failures are
// logged, never propagated into workflows.
type Recorder struct {
	sinks []Sink
}

// NewRecorder creates a recorder over the given sinks.
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// Record writes one audit event to every sink. Safe to call on a nil receiver.
func (r *Recorder) Record(ctx context.Context, action, actor, instanceName string, detail *string) {
	if r == nil || len(r.sinks) == 0 {
		return
	}

	ev := types.Event{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Action:       action,
		Actor:        actor,
		InstanceName: instanceName,
		Detail:       detail,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		log.Printf("events: marshal %s event: %v", action, err)
		return
	}

	var wg sync.WaitGroup
	for _, sink := range r.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := s.Write(ctx, ev, line); err != nil {
				log.Printf("events: %s sink failed for %s: %v", s.Name(), action, err)
				metrics.EventWritesTotal.WithLabelValues(s.Name(), "error").Inc()
				return
			}
			metrics.EventWritesTotal.WithLabelValues(s.Name(), "ok").Inc()
		}(sink)
	}
	wg.Wait()
}

// FileSink appends newline-delimited JSON records to a local file.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a local JSONL sink at path, creating parent directories
// on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "local" }

func (s *FileSink) Write(_ context.Context, _ types.Event, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create event log directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("append event: %w", werr)
	}
	return cerr
}

// Path returns the local event log path.
func (s *FileSink) Path() string { return s.path }
