// Package activity watches a Caddy JSON access log for traffic to the
// protected instance and fires a callback when it has been idle too long.
package activity

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openwake/openwake/internal/metrics"
)

// accessRecord is the subset of a Caddy access-log line the monitor reads.
type accessRecord struct {
	Upstream struct {
		Name string `json:"name"`
	} `json:"upstream"`
}

// Monitor tails the access log by byte offset and runs an independent
// idle-check loop. Both loops tolerate per-iteration failures and exit
// together on Stop.
type Monitor struct {
	logPath       string
	upstreamLabel string
	idleTimeout   time.Duration
	pollInterval  time.Duration
	onIdle        func(context.Context) error

	mu           sync.Mutex
	lastActivity time.Time
	offset       int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a monitor. lastActivity is seeded to now so a freshly started
// process never counts downtime it did not observe.
func New(logPath, upstreamLabel string, idleTimeout, pollInterval time.Duration, onIdle func(context.Context) error) *Monitor {
	return &Monitor{
		logPath:       logPath,
		upstreamLabel: upstreamLabel,
		idleTimeout:   idleTimeout,
		pollInterval:  pollInterval,
		onIdle:        onIdle,
		lastActivity:  time.Now(),
		stop:          make(chan struct{}),
	}
}

// LastActivity returns the time traffic was last seen (or the callback last fired).
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// Start launches the tail and idle-check loops. ctx is handed to the idle callback.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(2)
	go m.tailLoop()
	go m.idleLoop(ctx)
	log.Printf("activity: monitoring %s for upstream %q (idle timeout %s)", m.logPath, m.upstreamLabel, m.idleTimeout)
}

// Stop signals both loops to exit and waits for them to finish.
func (m *Monitor) Stop() {
	close(m.stop)
	m.wg.Wait()
	log.Println("activity: stopped")
}

func (m *Monitor) tailLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.scanOnce(); err != nil {
				log.Printf("activity: scan of %s failed: %v", m.logPath, err)
			}
		case <-m.stop:
			return
		}
	}
}

// scanOnce reads only bytes appended since the previous scan. The offset
// resets to zero when the file shrinks (rotation or truncation). Only
// complete lines are consumed; a trailing partial line waits for the
// next scan.
func (m *Monitor) scanOnce() error {
	info, err := os.Stat(m.logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < m.offset {
		m.offset = 0
	}
	if info.Size() == m.offset {
		return nil
	}

	f, err := os.Open(m.logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(m.offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			m.offset += int64(len(line))
			m.processLine(line)
			continue
		}
		if err == io.EOF {
			return nil
		}
		return err
	}
}

func (m *Monitor) processLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var rec accessRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return
	}
	if rec.Upstream.Name != m.upstreamLabel {
		return
	}
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}

func (m *Monitor) idleLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkIdle(ctx)
		case <-m.stop:
			return
		}
	}
}

// checkIdle fires the callback once the idle timeout has elapsed, then
// resets lastActivity so the callback is not re-triggered in a tight loop.
// A failed callback leaves lastActivity alone and retries next tick.
func (m *Monitor) checkIdle(ctx context.Context) {
	m.mu.Lock()
	idleFor := time.Since(m.lastActivity)
	m.mu.Unlock()

	if idleFor < m.idleTimeout {
		return
	}

	metrics.IdleTriggersTotal.Inc()
	if err := m.onIdle(ctx); err != nil {
		log.Printf("activity: idle callback failed: %v", err)
		return
	}

	m.mu.Lock()
	m.lastActivity = time.Now()
	m.mu.Unlock()
}
