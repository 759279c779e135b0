package exports

import (
	"fmt"

	"go-dataport/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	Service ExportService
}

func NewExportController(service ExportService) *ExportController {
	return &ExportController{Service: service}
}

type startExportRequest struct {
	Categories []string      `json:"categories"`
	Privacy    ExportPrivacy `json:"privacy"`
}

// Start godoc
// @Summary Start an export job
// @Tags export
// @Accept json
// @Produce json
// @Param body body startExportRequest true "Categories and privacy options"
// @Success 201 {object} ExportJob
// @Failure 400 {object} map[string]interface{}
// @Router /api/export/jobs [post]
func (c *ExportController) Start(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	var req startExportRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	job := &ExportJob{
		UserID:     userID,
		Categories: req.Categories,
		Privacy:    req.Privacy,
	}

	if err := c.Service.StartExport(ctx.UserContext(), job); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(job)
}

// GetJob godoc
// @Summary Get export job status
// @Tags export
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ExportJob
// @Failure 404 {object} map[string]interface{}
// @Router /api/export/jobs/{id} [get]
func (c *ExportController) GetJob(ctx *fiber.Ctx) error {
	job, err := c.Service.GetJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}

	return ctx.JSON(job)
}

// ListJobs godoc
// @Summary List the caller's export jobs
// @Tags export
// @Produce json
// @Success 200 {array} ExportJob
// @Router /api/export/jobs [get]
func (c *ExportController) ListJobs(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	jobs, err := c.Service.GetUserJobs(ctx.UserContext(), userID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(jobs)
}

// ListCategories godoc
// @Summary List exportable categories
// @Tags export
// @Produce json
// @Success 200 {array} Category
// @Router /api/export/categories [get]
func (c *ExportController) ListCategories(ctx *fiber.Ctx) error {
	return ctx.JSON(Registry)
}

// DownloadByID godoc
// @Summary Download the caller's export archive by job id
// @Tags export
// @Produce application/zip
// @Param id path string true "Job ID"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /api/export/jobs/{id}/download [get]
func (c *ExportController) DownloadByID(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	job, err := c.Service.GetJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil || job.UserID != userID {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}
	if job.DownloadToken == "" {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "export is not ready"})
	}

	return c.streamArchive(ctx, job.DownloadToken)
}

// Download godoc
// @Summary Download a ready export archive
// @Tags export
// @Produce application/zip
// @Param token path string true "Download token"
// @Success 200 {file} binary
// @Failure 404 {object} map[string]interface{}
// @Router /api/export/download/{token} [get]
func (c *ExportController) Download(ctx *fiber.Ctx) error {
	return c.streamArchive(ctx, ctx.Params("token"))
}

func (c *ExportController) streamArchive(ctx *fiber.Ctx, token string) error {
	job, file, err := c.Service.OpenArchive(ctx.UserContext(), token)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}

	filename := fmt.Sprintf("export_%s.zip", job.CreatedAt.Format("20060102_150405"))
	ctx.Set(fiber.HeaderContentType, "application/zip")
	ctx.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))

	return ctx.SendStream(file)
}
