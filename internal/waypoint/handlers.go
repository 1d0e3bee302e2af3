package waypoint

import (
	"errors"
	"strconv"

	"backend-broadhead/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req Waypoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name required")
		}
		if !ValidKind(req.Kind) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown waypoint kind")
		}
		req.OwnerID = auth.UserID(c)
		wp, err := svc.Create(c.Context(), req)
		if err != nil {
			return waypointError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(wp)
	})

	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		results, err := svc.ListByOwner(c.Context(), auth.UserID(c))
		if err != nil {
			return waypointError(err)
		}
		return c.JSON(results)
	})

	r.Get("/nearby", authMiddleware, func(c *fiber.Ctx) error {
		lat, _ := strconv.ParseFloat(c.Query("lat"), 64)
		lng, _ := strconv.ParseFloat(c.Query("lng"), 64)
		radius, _ := strconv.ParseFloat(c.Query("radius_km"), 64)
		if radius == 0 {
			radius = 5
		}
		results, err := svc.Nearby(c.Context(), auth.UserID(c), lat, lng, radius)
		if err != nil {
			return waypointError(err)
		}
		return c.JSON(results)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		wp, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return waypointError(err)
		}
		return c.JSON(wp)
	})

	r.Put("/:id", authMiddleware, func(c *fiber.Ctx) error {
		var req Waypoint
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Kind != "" && !ValidKind(req.Kind) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown waypoint kind")
		}
		wp, err := svc.Update(c.Context(), auth.UserID(c), c.Params("id"), req)
		if err != nil {
			return waypointError(err)
		}
		return c.JSON(wp)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), auth.UserID(c), c.Params("id")); err != nil {
			return waypointError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func waypointError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
