package exports

import (
	"go-dataport/internal/common/api"
	"go-dataport/internal/config"
	"go-dataport/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportApi struct {
	Controller *ExportController
	Config     *config.Config
}

func NewExportApi(controller *ExportController, cfg *config.Config) api.Route {
	return &ExportApi{
		Controller: controller,
		Config:     cfg,
	}
}

func (a *ExportApi) Setup(app *fiber.App) {
	group := app.Group("/api/export", middleware.AuthMiddleware(a.Config.SkipAuth))

	group.Post("/jobs", a.Controller.Start)
	group.Get("/jobs", a.Controller.ListJobs)
	group.Get("/jobs/:id", a.Controller.GetJob)
	group.Get("/jobs/:id/download", a.Controller.DownloadByID)
	group.Get("/categories", a.Controller.ListCategories)

	// Token-addressed so a browser can follow the link without a header.
	app.Get("/api/export/download/:token", a.Controller.Download)
}
