package template

import (
	"go-dataport/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type TemplateController struct {
	Service TemplateService
}

func NewTemplateController(service TemplateService) *TemplateController {
	return &TemplateController{Service: service}
}

// Create godoc
// @Summary Create mapping template
// @Tags templates
// @Accept json
// @Produce json
// @Param template body MappingTemplate true "Mapping Template"
// @Success 201 {object} MappingTemplate
// @Failure 400 {object} map[string]interface{}
// @Router /api/templates [post]
func (c *TemplateController) Create(ctx *fiber.Ctx) error {
	var tpl MappingTemplate
	if err := ctx.BodyParser(&tpl); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if userID, ok := middleware.UserID(ctx); ok {
		tpl.CreatedBy = userID
	}

	if err := c.Service.CreateTemplate(ctx.UserContext(), &tpl); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(tpl)
}

// Get godoc
// @Summary Get mapping template
// @Tags templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} MappingTemplate
// @Failure 404 {object} map[string]interface{}
// @Router /api/templates/{id} [get]
func (c *TemplateController) Get(ctx *fiber.Ctx) error {
	tpl, err := c.Service.GetTemplate(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Template not found"})
	}

	return ctx.JSON(tpl)
}

// List godoc
// @Summary List mapping templates
// @Tags templates
// @Produce json
// @Param category query string false "Filter by record category"
// @Success 200 {array} MappingTemplate
// @Router /api/templates [get]
func (c *TemplateController) List(ctx *fiber.Ctx) error {
	templates, err := c.Service.ListTemplates(ctx.UserContext(), ctx.Query("category"))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(templates)
}

// Delete godoc
// @Summary Delete mapping template
// @Tags templates
// @Param id path string true "Template ID"
// @Success 204
// @Router /api/templates/{id} [delete]
func (c *TemplateController) Delete(ctx *fiber.Ctx) error {
	if err := c.Service.DeleteTemplate(ctx.UserContext(), ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.SendStatus(fiber.StatusNoContent)
}
