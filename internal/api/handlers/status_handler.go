package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/pkg/logger"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type StatusHandler struct {
	profiles   ProfileReader
	db         Pinger
	components map[string]bool
	startedAt  time.Time
	now        func() time.Time
}

func NewStatusHandler(profiles ProfileReader, db Pinger, components map[string]bool) *StatusHandler {
	return &StatusHandler{
		profiles:   profiles,
		db:         db,
		components: components,
		startedAt:  time.Now(),
		now:        time.Now,
	}
}

func (h *StatusHandler) Health(c *fiber.Ctx) error {
	if h.db != nil {
		if err := h.db.Ping(c.UserContext()); err != nil {
			logger.Warn("Health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  "profile store unreachable",
			})
		}
	}

	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   h.now().Unix(),
	})
}

func (h *StatusHandler) Status(c *fiber.Ctx) error {
	stats, err := h.profiles.Stats(c.UserContext())
	if err != nil {
		logger.Error("Failed to read store stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read status",
		})
	}

	return c.JSON(fiber.Map{
		"status":         "running",
		"uptime_seconds": int64(h.now().Sub(h.startedAt).Seconds()),
		"store":          stats,
		"components":     h.components,
	})
}
