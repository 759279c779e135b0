package main

import (
	"context"
	"fmt"
	"log"

	common_api "go-dataport/internal/common/api"
	"go-dataport/internal/config"
	"go-dataport/internal/database"
	"go-dataport/internal/features/exports"
	"go-dataport/internal/features/imports"
	"go-dataport/internal/features/record"
	"go-dataport/internal/features/system"
	"go-dataport/internal/features/template"
	"go-dataport/internal/logger"
	"go-dataport/internal/middleware"
	"go-dataport/pkg/utils"

	_ "go-dataport/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// Leave headroom above the upload limit for the rest of the form.
		BodyLimit: int(cfg.MaxUploadBytes) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),    // Cast to Interface
		fx.ResultTags(`group:"routes"`), // Add to Group
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// @title           DataPort API
// @version         1.0
// @description     Bulk data migration service: spreadsheet imports with validation and duplicate resolution, and ZIP archive exports.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// Initialize Repository
			template.NewTemplateRepository,
			record.NewRecordRepository,
			imports.NewImportRepository,
			exports.NewExportRepository,

			template.NewTemplateService,
			imports.NewImportService,
			exports.NewExportService,

			// Initialize Controller
			template.NewTemplateController,
			imports.NewImportController,
			imports.NewProgressController,
			exports.NewExportController,
			exports.NewCleanupScheduler,

			// Initialize API Routes
			AsRoute(template.NewTemplateApi),
			AsRoute(imports.NewImportApi),
			AsRoute(exports.NewExportApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) {
				utils.SetSecret(cfg.JWTSecret)
			},

			// Register Routes & Start
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, scheduler *exports.CleanupScheduler) {
				lc.Append(fx.Hook{
					OnStart: scheduler.Start,
					OnStop: func(ctx context.Context) error {
						return scheduler.Stop()
					},
				})
			},
		),
	)

	app.Run()
}
