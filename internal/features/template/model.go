package template

import (
	"time"

	common_models "go-dataport/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TemplateField maps one spreadsheet column onto a target record field.
type TemplateField struct {
	SourceColumn string                  `json:"source_column" bson:"source_column"`
	TargetField  string                  `json:"target_field" bson:"target_field"`
	Required     bool                    `json:"required" bson:"required"`
	Type         common_models.FieldType `json:"type" bson:"type"`
	Rule         string                  `json:"rule,omitempty" bson:"rule,omitempty"` // optional tengo validation script
	Dedupe       bool                    `json:"dedupe" bson:"dedupe"`                 // compared during duplicate detection
	Weight       int                     `json:"weight,omitempty" bson:"weight,omitempty"`
}

// MappingTemplate describes how a spreadsheet for one record category is
// mapped and validated during import.
type MappingTemplate struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Category  string             `json:"category" bson:"category"`
	Fields    []TemplateField    `json:"fields" bson:"fields"`
	CreatedBy string             `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// DedupeFields returns the target fields used for duplicate matching with
// their weights. A dedupe field without an explicit weight counts as 1.
func (t *MappingTemplate) DedupeFields() map[string]int {
	out := make(map[string]int)
	for _, f := range t.Fields {
		if !f.Dedupe || f.TargetField == "" {
			continue
		}
		w := f.Weight
		if w <= 0 {
			w = 1
		}
		out[f.TargetField] = w
	}
	return out
}

// FieldBySource looks up the mapping for a source column.
func (t *MappingTemplate) FieldBySource(column string) (TemplateField, bool) {
	for _, f := range t.Fields {
		if f.SourceColumn == column {
			return f, true
		}
	}
	return TemplateField{}, false
}
