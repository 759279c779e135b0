package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContextKey string

// FieldType describes how a mapped column is validated during import.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
	FieldTypeDate   FieldType = "date"
	FieldTypeEmail  FieldType = "email"
	FieldTypePhone  FieldType = "phone"
)

// Log is the persisted shape of a zap entry written by the async DB sink.
type Log struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Message      string             `bson:"message" json:"message"`
	JobID        string             `bson:"job_id,omitempty" json:"job_id,omitempty"`
	LogLevelId   int                `bson:"log_level_id" json:"log_level_id"`
	Caller       string             `bson:"caller,omitempty" json:"caller,omitempty"`
	AppId        string             `bson:"app_id" json:"app_id"`
	CreatedOnUtc time.Time          `bson:"created_on_utc" json:"created_on_utc"`
}
