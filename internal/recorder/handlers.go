package recorder

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, ctrl *Controller, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Name string `json:"name"`
		}
		if err := c.BodyParser(&body); err != nil && len(c.Body()) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		j, err := ctrl.Start(c.Context(), body.Name)
		switch {
		case errors.Is(err, ErrAlreadyRecording):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, ErrPermissionRequired):
			return fiber.NewError(fiber.StatusForbidden, "position access is required to record; grant it and try again")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(j)
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		if err := ctrl.Stop(c.Context()); err != nil {
			// The session is over either way; the caller just learns the
			// final write did not land.
			return c.JSON(fiber.Map{"state": string(StateIdle), "warning": err.Error()})
		}
		return c.JSON(fiber.Map{"state": string(StateIdle)})
	})

	r.Get("/status", func(c *fiber.Ctx) error {
		state, current := ctrl.Status()
		return c.JSON(fiber.Map{"state": string(state), "journey": current})
	})
}
