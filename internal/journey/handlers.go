package journey

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes wires the journey store's read and delete surface. Reads
// are public; deletes require auth, matching the rest of the API.
func RegisterRoutes(r fiber.Router, svc *Service, th Thresholds, authMiddleware fiber.Handler) {
	r.Get("/", func(c *fiber.Ctx) error {
		journeys, err := svc.GetAll(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if journeys == nil {
			journeys = []Journey{}
		}
		return c.JSON(journeys)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		j, found, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return statusForStoreError(err)
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "journey not found")
		}
		return c.JSON(j)
	})

	r.Get("/:id/stats", func(c *fiber.Ctx) error {
		j, found, err := svc.Get(c.Context(), c.Params("id"))
		if err != nil {
			return statusForStoreError(err)
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "journey not found")
		}
		return c.JSON(j.Stats(th))
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.Delete(c.Context(), c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/", authMiddleware, func(c *fiber.Ctx) error {
		if err := svc.ClearAll(c.Context()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func statusForStoreError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		// Stored record failed re-validation: report it as corrupt data,
		// not as a missing journey.
		return fiber.NewError(fiber.StatusUnprocessableEntity, verr.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
