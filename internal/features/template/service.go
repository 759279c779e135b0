package template

import (
	"context"
	"fmt"

	common_models "go-dataport/internal/common/models"

	"github.com/d5/tengo/v2"
)

type TemplateService interface {
	CreateTemplate(ctx context.Context, tpl *MappingTemplate) error
	GetTemplate(ctx context.Context, id string) (*MappingTemplate, error)
	ListTemplates(ctx context.Context, category string) ([]MappingTemplate, error)
	DeleteTemplate(ctx context.Context, id string) error
}

type TemplateServiceImpl struct {
	Repo TemplateRepository
}

func NewTemplateService(repo TemplateRepository) TemplateService {
	return &TemplateServiceImpl{Repo: repo}
}

var validFieldTypes = map[common_models.FieldType]bool{
	common_models.FieldTypeText:   true,
	common_models.FieldTypeNumber: true,
	common_models.FieldTypeDate:   true,
	common_models.FieldTypeEmail:  true,
	common_models.FieldTypePhone:  true,
}

func (s *TemplateServiceImpl) CreateTemplate(ctx context.Context, tpl *MappingTemplate) error {
	if tpl.Name == "" || tpl.Category == "" {
		return fmt.Errorf("name and category are required")
	}
	if len(tpl.Fields) == 0 {
		return fmt.Errorf("template must map at least one column")
	}

	seen := make(map[string]bool)
	for _, f := range tpl.Fields {
		if f.SourceColumn == "" {
			return fmt.Errorf("field mapping missing source column")
		}
		if seen[f.SourceColumn] {
			return fmt.Errorf("duplicate source column %q", f.SourceColumn)
		}
		seen[f.SourceColumn] = true

		if f.Type != "" && !validFieldTypes[f.Type] {
			return fmt.Errorf("unknown field type %q for column %q", f.Type, f.SourceColumn)
		}

		// Compile rules up front so a broken script fails at save time,
		// not in the middle of a validation run.
		if f.Rule != "" {
			script := tengo.NewScript([]byte(f.Rule))
			script.Add("value", "")
			script.Add("row", map[string]interface{}{})
			if _, err := script.Compile(); err != nil {
				return fmt.Errorf("invalid rule for column %q: %w", f.SourceColumn, err)
			}
		}
	}

	return s.Repo.Create(ctx, tpl)
}

func (s *TemplateServiceImpl) GetTemplate(ctx context.Context, id string) (*MappingTemplate, error) {
	return s.Repo.Get(ctx, id)
}

func (s *TemplateServiceImpl) ListTemplates(ctx context.Context, category string) ([]MappingTemplate, error) {
	return s.Repo.List(ctx, category)
}

func (s *TemplateServiceImpl) DeleteTemplate(ctx context.Context, id string) error {
	return s.Repo.Delete(ctx, id)
}
