package imports

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-dataport/internal/config"
	"go-dataport/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ImportController struct {
	Service ImportService
	Config  *config.Config
}

func NewImportController(service ImportService, cfg *config.Config) *ImportController {
	if _, err := os.Stat(cfg.UploadPath); os.IsNotExist(err) {
		os.MkdirAll(cfg.UploadPath, 0755)
	}
	return &ImportController{
		Service: service,
		Config:  cfg,
	}
}

// Upload godoc
// @Summary Upload a spreadsheet and start validation
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "CSV or Excel file"
// @Param template_id formData string true "Mapping template ID"
// @Param options formData string false "Import options JSON"
// @Success 201 {object} ImportJob
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs [post]
func (c *ImportController) Upload(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	templateID := ctx.FormValue("template_id")
	if templateID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "template_id is required"})
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if err := CheckFile(fileHeader.Filename, mimeType, fileHeader.Size, c.Config.MaxUploadBytes); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var opts ImportOptions
	if raw := ctx.FormValue("options"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid options JSON"})
		}
	}

	originalName := filepath.Base(fileHeader.Filename)
	uniqueName := fmt.Sprintf("%d_%s", time.Now().UnixNano(), strings.ReplaceAll(originalName, " ", "_"))
	dstPath := filepath.Join(c.Config.UploadPath, uniqueName)

	if err := ctx.SaveFile(fileHeader, dstPath); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error saving file"})
	}

	job := &ImportJob{
		UserID:     userID,
		TemplateID: templateID,
		FileName:   originalName,
		FilePath:   dstPath,
		FileSize:   fileHeader.Size,
		MimeType:   mimeType,
		Options:    opts,
	}

	if err := c.Service.CreateJob(ctx.UserContext(), job); err != nil {
		os.Remove(dstPath)
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(job)
}

// GetJob godoc
// @Summary Get import job status
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ImportJob
// @Failure 404 {object} map[string]interface{}
// @Router /api/import/jobs/{id} [get]
func (c *ImportController) GetJob(ctx *fiber.Ctx) error {
	job, err := c.Service.GetJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}

	return ctx.JSON(job)
}

// ListJobs godoc
// @Summary List the caller's import jobs
// @Tags import
// @Produce json
// @Success 200 {array} ImportJob
// @Router /api/import/jobs [get]
func (c *ImportController) ListJobs(ctx *fiber.Ctx) error {
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

// GetPreview godoc
// @Summary Get the validation preview with issue filtering
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Param severity query string false "error|warning|info"
// @Param column query string false "Filter by source column"
// @Param q query string false "Free-text match on message, code or value"
// @Param offset query int false "Issue page offset"
// @Param limit query int false "Issue page size (default 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/preview [get]
func (c *ImportController) GetPreview(ctx *fiber.Ctx) error {
	job, err := c.Service.GetJob(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Job not found"})
	}
	if job.Preview == nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Preview not ready", "status": job.Status})
	}

	filter := IssueFilter{
		Column: ctx.Query("column"),
		Query:  ctx.Query("q"),
	}
	if raw := ctx.Query("severity"); raw != "" {
		sev := Severity(raw)
		if sev != SeverityError && sev != SeverityWarning && sev != SeverityInfo {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid severity"})
		}
		filter.Severity = &sev
	}

	filtered := job.Preview.Filter(filter)

	offset := ctx.QueryInt("offset", 0)
	limit := ctx.QueryInt("limit", 100)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}

	page := filtered
	if offset >= len(filtered) {
		page = nil
	} else if offset+limit < len(filtered) {
		page = filtered[offset : offset+limit]
	} else {
		page = filtered[offset:]
	}

	return ctx.JSON(fiber.Map{
		"preview":        job.Preview,
		"issues":         page,
		"filtered_count": len(filtered),
		"duplicates":     job.Duplicates,
	})
}

// ResolveDuplicates godoc
// @Summary Submit the duplicate resolution mapping
// @Tags import
// @Accept json
// @Param id path string true "Job ID"
// @Param resolutions body map[string]string true "import row -> skip|update|create_new"
// @Success 200 {object} ImportJob
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/duplicates [post]
func (c *ImportController) ResolveDuplicates(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	var resolutions map[string]Resolution
	if err := ctx.BodyParser(&resolutions); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid resolution mapping"})
	}

	job, err := c.Service.ResolveDuplicates(ctx.UserContext(), ctx.Params("id"), userID, resolutions)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(job)
}

type approveRequest struct {
	AcknowledgeWarnings bool `json:"acknowledge_warnings"`
}

// Approve godoc
// @Summary Approve a validated job and start the import
// @Tags import
// @Accept json
// @Param id path string true "Job ID"
// @Param body body approveRequest true "Approval"
// @Success 200 {object} ImportJob
// @Failure 409 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/approve [post]
func (c *ImportController) Approve(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	var req approveRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid approval body"})
	}

	job, err := c.Service.Approve(ctx.UserContext(), ctx.Params("id"), userID, req.AcknowledgeWarnings)
	if err != nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(job)
}

// Retry godoc
// @Summary Retry a failed or cancelled import
// @Tags import
// @Param id path string true "Job ID"
// @Success 200 {object} ImportJob
// @Failure 409 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/retry [post]
func (c *ImportController) Retry(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	job, err := c.Service.Retry(ctx.UserContext(), ctx.Params("id"), userID)
	if err != nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(job)
}

// Cancel godoc
// @Summary Cancel a pending or running import job
// @Tags import
// @Param id path string true "Job ID"
// @Success 200 {object} ImportJob
// @Failure 409 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/cancel [post]
func (c *ImportController) Cancel(ctx *fiber.Ctx) error {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "User ID not found"})
	}

	job, err := c.Service.Cancel(ctx.UserContext(), ctx.Params("id"), userID)
	if err != nil {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(job)
}
