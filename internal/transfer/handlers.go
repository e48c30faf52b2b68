package transfer

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/AnthonyJS/SignalStrength/internal/journey"
)

// RegisterRoutes wires export/import on top of the journey store. Export is
// a plain read; import persists and therefore requires auth.
func RegisterRoutes(r fiber.Router, store *journey.Service, authMiddleware fiber.Handler) {
	r.Get("/:id/export", func(c *fiber.Ctx) error {
		j, found, err := store.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "journey not found")
		}

		now := time.Now()
		data, err := Export(j, now)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", Filename(j.Name, now)))
		return c.Send(data)
	})

	r.Post("/import", authMiddleware, func(c *fiber.Ctx) error {
		j, err := Import(c.Body())
		if err != nil {
			var ferr *FormatError
			var verr *journey.ValidationError
			if errors.As(err, &ferr) || errors.As(err, &verr) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if err := store.Put(c.Context(), j); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(j)
	})
}
