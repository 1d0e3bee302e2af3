package track

import (
	"errors"

	"backend-broadhead/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the track lifecycle and query routes. Mutations
// require authentication; the two read routes accept anonymous callers and
// answer them with empty results so UI polling never errors.
func RegisterRoutes(r fiber.Router, svc *Service, authRequired, authOptional fiber.Handler) {
	r.Post("/", authRequired, func(c *fiber.Ctx) error {
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		t, err := svc.Start(c.Context(), auth.UserID(c), req.Name, req.Description)
		if err != nil {
			return trackError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	r.Get("/", authOptional, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return c.JSON([]Track{})
		}
		tracks, err := svc.ListByOwner(c.Context(), userID)
		if err != nil {
			return trackError(err)
		}
		return c.JSON(tracks)
	})

	r.Get("/active", authOptional, func(c *fiber.Ctx) error {
		userID := auth.UserID(c)
		if userID == "" {
			return c.JSON(nil)
		}
		t, err := svc.Active(c.Context(), userID)
		if err != nil {
			return trackError(err)
		}
		return c.JSON(t)
	})

	r.Post("/:id/points", authRequired, func(c *fiber.Ctx) error {
		var req TrackPoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
			return fiber.NewError(fiber.StatusBadRequest, "lat/lng out of range")
		}
		t, err := svc.AddPoint(c.Context(), auth.UserID(c), c.Params("id"), req)
		if err != nil {
			return trackError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(t)
	})

	r.Post("/:id/stop", authRequired, func(c *fiber.Ctx) error {
		t, err := svc.Stop(c.Context(), auth.UserID(c), c.Params("id"))
		if err != nil {
			return trackError(err)
		}
		return c.JSON(t)
	})

	r.Delete("/:id", authRequired, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return trackError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func trackError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotActive), errors.Is(err, ErrActiveExists):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
