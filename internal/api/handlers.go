package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/openwake/openwake/internal/action"
	"github.com/openwake/openwake/internal/auth"
	"github.com/openwake/openwake/pkg/types"
)

var errUnknownTarget = map[string]string{"error": "unknown target"}

type actionRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (s *Server) listTargets(c echo.Context) error {
	statuses := s.manager.Statuses()
	views := make([]types.TargetStatus, 0, len(statuses))
	for _, rec := range statuses {
		target, ok := s.cfg.TargetByID(rec.TargetID)
		if !ok {
			continue
		}
		views = append(views, types.TargetStatus{
			ID:          target.ID,
			Label:       target.Label,
			Description: target.Description,
			Status:      rec,
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) getTarget(c echo.Context) error {
	id := c.Param("id")

	rec, err := s.manager.RefreshStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, action.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errUnknownTarget)
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	target, _ := s.cfg.TargetByID(id)
	return c.JSON(http.StatusOK, types.TargetStatus{
		ID:          target.ID,
		Label:       target.Label,
		Description: target.Description,
		Status:      rec,
	})
}

func (s *Server) unshelveTarget(c echo.Context) error {
	return s.startAction(c, s.manager.StartUnshelve)
}

func (s *Server) shelveTarget(c echo.Context) error {
	return s.startAction(c, s.manager.StartShelve)
}

// startAction shares the request plumbing for both lifecycle verbs. Internal
// workflow failures never surface here; they land in the status record.
func (s *Server) startAction(c echo.Context, start func(id, actor, reason string) (types.StatusRecord, error)) error {
	id := c.Param("id")

	var req actionRequest
	_ = c.Bind(&req)
	if req.Actor == "" {
		req.Actor = auth.Actor(c)
	}
	if req.Reason == "" {
		req.Reason = "web-request"
	}

	rec, err := start(id, req.Actor, req.Reason)
	if err != nil {
		if errors.Is(err, action.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errUnknownTarget)
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, rec)
}

// listEvents returns the newest audit records from the local event log,
// most recent first.
func (s *Server) listEvents(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
		}
		if n > 1000 {
			n = 1000
		}
		limit = n
	}

	f, err := os.Open(s.cfg.Events.LocalPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusOK, []types.Event{})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "read event log: " + err.Error(),
		})
	}
	defer f.Close()

	var events []types.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev types.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "scan event log: " + err.Error(),
		})
	}

	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return c.JSON(http.StatusOK, events)
}
