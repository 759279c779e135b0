// Command seed loads demo mapping templates and records into MongoDB
// and prints a development bearer token for trying the API.
package main

import (
	"context"

	common_models "go-dataport/internal/common/models"
	"go-dataport/internal/config"
	"go-dataport/internal/database"
	"go-dataport/internal/features/record"
	"go-dataport/internal/features/template"
	"go-dataport/internal/logger"
	"go-dataport/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func demoTemplates() []*template.MappingTemplate {
	return []*template.MappingTemplate{
		{
			Name:     "Residents import",
			Category: "residents",
			Fields: []template.TemplateField{
				{SourceColumn: "First Name", TargetField: "first_name", Required: true, Type: common_models.FieldTypeText, Dedupe: true, Weight: 1},
				{SourceColumn: "Last Name", TargetField: "last_name", Required: true, Type: common_models.FieldTypeText, Dedupe: true, Weight: 1},
				{SourceColumn: "Email", TargetField: "email", Type: common_models.FieldTypeEmail, Dedupe: true, Weight: 3},
				{SourceColumn: "Phone", TargetField: "phone", Type: common_models.FieldTypePhone},
				{SourceColumn: "Unit", TargetField: "unit", Required: true, Type: common_models.FieldTypeText},
			},
		},
		{
			Name:     "Buildings import",
			Category: "buildings",
			Fields: []template.TemplateField{
				{SourceColumn: "Name", TargetField: "name", Required: true, Type: common_models.FieldTypeText, Dedupe: true, Weight: 2},
				{SourceColumn: "Address", TargetField: "address", Required: true, Type: common_models.FieldTypeText, Dedupe: true, Weight: 2},
				{SourceColumn: "City", TargetField: "city", Type: common_models.FieldTypeText},
				{SourceColumn: "Postal Code", TargetField: "postal_code", Type: common_models.FieldTypeText},
				{SourceColumn: "Units", TargetField: "units", Type: common_models.FieldTypeNumber,
					Rule: `ok := len(value) <= 4; message := "unit count looks implausibly large"; severity := "warning"`},
			},
		},
		{
			Name:     "Leases import",
			Category: "leases",
			Fields: []template.TemplateField{
				{SourceColumn: "Unit", TargetField: "unit", Required: true, Type: common_models.FieldTypeText, Dedupe: true, Weight: 1},
				{SourceColumn: "Start Date", TargetField: "start_date", Required: true, Type: common_models.FieldTypeDate, Dedupe: true, Weight: 2},
				{SourceColumn: "End Date", TargetField: "end_date", Type: common_models.FieldTypeDate},
				{SourceColumn: "Rent", TargetField: "rent", Required: true, Type: common_models.FieldTypeNumber},
			},
		},
	}
}

func demoRecords() map[string][]map[string]interface{} {
	return map[string][]map[string]interface{}{
		"residents": {
			{"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com", "phone": "555-0100", "unit": "4B"},
			{"first_name": "Grace", "last_name": "Hopper", "email": "grace@example.com", "phone": "555-0101", "unit": "2A"},
		},
		"buildings": {
			{"name": "North Tower", "address": "1 Main St", "city": "Oslo", "postal_code": "0150", "units": "24"},
		},
	}
}

// Seed runs the database seeding
func Seed(
	lc fx.Lifecycle,
	templateService template.TemplateService,
	recordRepo record.RecordRepository,
	cfg *config.Config,
	logger *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				logger.Info("Seeding demo templates and records...")

				for _, tpl := range demoTemplates() {
					if err := templateService.CreateTemplate(context.Background(), tpl); err != nil {
						logger.Error("seeding template failed",
							zap.String("template", tpl.Name), zap.Error(err))
						continue
					}
					logger.Info("seeded template",
						zap.String("id", tpl.ID.Hex()), zap.String("template", tpl.Name))
				}

				for category, records := range demoRecords() {
					for _, rec := range records {
						if _, err := recordRepo.Insert(context.Background(), category, rec); err != nil {
							logger.Error("seeding record failed",
								zap.String("category", category), zap.Error(err))
						}
					}
					logger.Info("seeded records",
						zap.String("category", category), zap.Int("count", len(records)))
				}

				utils.SetSecret(cfg.JWTSecret)
				token, err := utils.GenerateToken(primitive.NewObjectID(), []string{"admin"})
				if err != nil {
					logger.Error("token generation failed", zap.Error(err))
					return
				}
				logger.Info("development bearer token", zap.String("token", token))
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			database.NewDatabase,
			template.NewTemplateRepository,
			template.NewTemplateService,
			record.NewRecordRepository,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(Seed),
	)

	app.Run()
}
