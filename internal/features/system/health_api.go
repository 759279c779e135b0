package system

import (
	"go-dataport/internal/common/api"

	"github.com/gofiber/fiber/v2"
)

type HealthApi struct{}

func NewHealthApi() api.Route {
	return &HealthApi{}
}

func (h *HealthApi) Setup(app *fiber.App) {
	app.Get("/healthz", h.HealthCheck)
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Check if the server is up
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "OK"
// @Router       /healthz [get]
func (h *HealthApi) HealthCheck(c *fiber.Ctx) error {
	return c.SendString("OK")
}
