package handlers

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-scheduler/internal/api/dto"
	"github.com/spec-kit/ticket-scheduler/internal/observability"
	"github.com/spec-kit/ticket-scheduler/internal/worker"
	apperrors "github.com/spec-kit/ticket-scheduler/pkg/util/errorutil"
)

// Runner is a scheduler that can be ticked on demand. *worker.Periodic
// satisfies it.
type Runner interface {
	Name() string
	Interval() time.Duration
	RunOnce(ctx context.Context) (worker.TickReport, error)
}

// SchedulersHandler lists schedulers, triggers ticks and serves metrics.
type SchedulersHandler struct {
	runners map[string]Runner
	metrics *observability.Metrics
}

// NewSchedulersHandler constructs handler.
func NewSchedulersHandler(metrics *observability.Metrics, runners ...Runner) *SchedulersHandler {
	byName := make(map[string]Runner, len(runners))
	for _, r := range runners {
		byName[r.Name()] = r
	}
	return &SchedulersHandler{runners: byName, metrics: metrics}
}

// List GET /schedulers.
func (h *SchedulersHandler) List(c *fiber.Ctx) error {
	items := make([]dto.SchedulerInfo, 0, len(h.runners))
	for name, r := range h.runners {
		items = append(items, dto.SchedulerInfo{Name: name, Interval: r.Interval().String()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return c.JSON(fiber.Map{"data": items})
}

// Run POST /schedulers/:name/run executes one tick synchronously.
func (h *SchedulersHandler) Run(c *fiber.Ctx) error {
	name := c.Params("name")
	runner, ok := h.runners[name]
	if !ok {
		return apperrors.NewNotFound("scheduler", map[string]any{"name": name})
	}
	report, err := runner.RunOnce(c.UserContext())
	switch {
	case errors.Is(err, worker.ErrTickInProgress), errors.Is(err, worker.ErrLeaseHeld):
		return apperrors.NewConflict(err.Error(), map[string]any{"name": name})
	case err != nil:
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"scheduler": name, "report": report}})
}

// Metrics GET /metrics.
func (h *SchedulersHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
