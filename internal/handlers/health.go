package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Noptus/btp4ai-wire/internal/config"
	"github.com/Noptus/btp4ai-wire/internal/jobs"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	cfg        *config.Config
	scheduler  *jobs.JobScheduler
	instanceID string
}

// NewHealthHandler creates a new health handler. scheduler may be nil when
// the background loop is disabled.
func NewHealthHandler(cfg *config.Config, scheduler *jobs.JobScheduler, instanceID string) *HealthHandler {
	return &HealthHandler{cfg: cfg, scheduler: scheduler, instanceID: instanceID}
}

// Handle responds with liveness plus the effective publication configuration
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	resp := fiber.Map{
		"ok":          true,
		"tz":          h.cfg.LocalTZ,
		"run_time":    h.cfg.RunTime(),
		"cadence":     string(h.cfg.Cadence),
		"site_url":    h.cfg.SiteURL,
		"repo":        fmt.Sprintf("%s/%s", h.cfg.GitHubOwner, h.cfg.GitHubRepo),
		"instance_id": h.instanceID,
		"timestamp":   time.Now().Format(time.RFC3339),
	}

	if h.scheduler != nil {
		if status, ok := h.scheduler.GetStatus()["publish-card"]; ok && !status.NextRunTime.IsZero() {
			resp["next_run"] = status.NextRunTime.Format(time.RFC3339)
		}
	}

	return c.JSON(resp)
}
