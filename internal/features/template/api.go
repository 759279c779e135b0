package template

import (
	"go-dataport/internal/common/api"
	"go-dataport/internal/config"
	"go-dataport/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TemplateApi struct {
	Controller *TemplateController
	Config     *config.Config
}

func NewTemplateApi(controller *TemplateController, cfg *config.Config) api.Route {
	return &TemplateApi{
		Controller: controller,
		Config:     cfg,
	}
}

func (a *TemplateApi) Setup(app *fiber.App) {
	group := app.Group("/api/templates", middleware.AuthMiddleware(a.Config.SkipAuth))

	group.Post("/", a.Controller.Create)
	group.Get("/", a.Controller.List)
	group.Get("/:id", a.Controller.Get)
	group.Delete("/:id", a.Controller.Delete)
}
