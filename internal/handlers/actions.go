package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/Noptus/btp4ai-wire/internal/publisher"
)

// PublishService is the slice of the publisher the action handlers need.
type PublishService interface {
	PublishOnce(ctx context.Context) (string, error)
	RebuildFeed(ctx context.Context) error
}

// ActionHandler serves the manual publication triggers
type ActionHandler struct {
	publisher PublishService
}

// NewActionHandler creates a new action handler
func NewActionHandler(pub PublishService) *ActionHandler {
	return &ActionHandler{publisher: pub}
}

// RunNow synchronously invokes the publish pipeline. Useful for testing
// without waiting for the schedule; a run for an already-published slug is a
// no-op and still reports ok.
func (h *ActionHandler) RunNow(c *fiber.Ctx) error {
	slug, err := h.publisher.PublishOnce(c.Context())
	if err != nil {
		log.Printf("[ACTIONS] run-now failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"ok":   true,
		"slug": slug,
	})
}

// RebuildFeed regenerates the feed from the cards already in the store. This
// heals a feed left stale by a partial commit without re-publishing anything.
func (h *ActionHandler) RebuildFeed(c *fiber.Ctx) error {
	if err := h.publisher.RebuildFeed(c.Context()); err != nil {
		log.Printf("[ACTIONS] rebuild-feed failed: %v", err)
		status := fiber.StatusInternalServerError
		if errors.Is(err, publisher.ErrMissingCredential) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"ok":    false,
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}
