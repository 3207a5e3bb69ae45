package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openwake/openwake/internal/action"
	"github.com/openwake/openwake/internal/activity"
	"github.com/openwake/openwake/internal/api"
	"github.com/openwake/openwake/internal/compute"
	"github.com/openwake/openwake/internal/config"
	"github.com/openwake/openwake/internal/events"
	"github.com/openwake/openwake/pkg/types"
)

// idleShelve builds the monitor callback. It skips when a workflow is
// running, when the instance is already shelved (or on its way there), and
// when the target still sits in its untouched idle state, so the monitor
// never shelves an instance nobody woke through the app.
func idleShelve(mgr *action.Manager, targetID string) func(context.Context) error {
	return func(context.Context) error {
		rec, err := mgr.Status(targetID)
		if err != nil {
			return err
		}
		switch {
		case rec.Running:
			return nil
		case rec.State == types.StateIdle, rec.State == types.StateShelved, rec.State == types.StateShelving:
			return nil
		}
		_, err = mgr.StartShelve(targetID, "idle-monitor", "idle-timeout")
		return err
	}
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	gateway, err := compute.NewNovaGateway(cfg.OpenStack)
	if err != nil {
		log.Fatalf("failed to connect to the compute provider: %v", err)
	}

	// Audit sinks: local JSONL always, S3 when configured
	sinks := []events.Sink{events.NewFileSink(cfg.Events.LocalPath)}
	if cfg.Events.S3 != nil {
		s3Sink, err := events.NewS3Sink(*cfg.Events.S3)
		if err != nil {
			log.Printf("openwake: S3 audit sink unavailable: %v (continuing with local log only)", err)
		} else {
			sinks = append(sinks, s3Sink)
			log.Printf("openwake: S3 audit sink configured (bucket=%s)", cfg.Events.S3.Bucket)
		}
	}
	recorder := events.NewRecorder(sinks...)

	mgr := action.NewManager(gateway, recorder, cfg.App, cfg.Targets)

	primeCtx, cancelPrime := context.WithTimeout(context.Background(), 30*time.Second)
	mgr.PrimeStatuses(primeCtx)
	cancelPrime()

	// Idle monitor: re-shelve the watched target after a quiet period
	var monitor *activity.Monitor
	if cfg.Activity != nil {
		act := cfg.Activity
		monitor = activity.New(act.LogPath, act.UpstreamLabel, act.IdleTimeout(), act.PollInterval(),
			idleShelve(mgr, act.TargetID))
		monitor.Start(context.Background())
	}

	server := api.NewServer(mgr, cfg)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	log.Printf("openwake: starting server on %s (%d targets)", addr, len(cfg.Targets))

	go func() {
		if err := server.Start(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("openwake: shutting down...")
	if monitor != nil {
		monitor.Stop()
	}
	if err := server.Close(); err != nil {
		log.Printf("error closing server: %v", err)
	}
	mgr.Close()
}
