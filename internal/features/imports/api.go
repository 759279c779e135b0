package imports

import (
	"go-dataport/internal/common/api"
	"go-dataport/internal/config"
	"go-dataport/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ImportApi struct {
	Controller *ImportController
	Progress   *ProgressController
	Config     *config.Config
}

func NewImportApi(controller *ImportController, progress *ProgressController, cfg *config.Config) api.Route {
	return &ImportApi{
		Controller: controller,
		Progress:   progress,
		Config:     cfg,
	}
}

func (a *ImportApi) Setup(app *fiber.App) {
	group := app.Group("/api/import", middleware.AuthMiddleware(a.Config.SkipAuth))

	group.Post("/jobs", a.Controller.Upload)
	group.Get("/jobs", a.Controller.ListJobs)
	group.Get("/jobs/:id", a.Controller.GetJob)
	group.Get("/jobs/:id/preview", a.Controller.GetPreview)
	group.Post("/jobs/:id/duplicates", a.Controller.ResolveDuplicates)
	group.Post("/jobs/:id/approve", a.Controller.Approve)
	group.Post("/jobs/:id/retry", a.Controller.Retry)
	group.Post("/jobs/:id/cancel", a.Controller.Cancel)

	group.Use("/jobs/:id/progress", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	group.Get("/jobs/:id/progress", websocket.New(a.Progress.HandleProgress))
}
