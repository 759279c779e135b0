package logger

import (
	"go-dataport/internal/config"
	"go-dataport/internal/database"

	"go.uber.org/zap"
)

// NewLogger builds the service logger: console output plus an async sink
// that persists entries into the logs collection.
func NewLogger(cfg *config.Config, db *database.MongodbDB) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.Environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	zapConfig.EncoderConfig.FunctionKey = "func"

	baseLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	dbWriter := NewDBLogWriter(db, cfg)
	finalCore := NewDBCore(baseLogger.Core(), dbWriter)

	return zap.New(finalCore, zap.AddCaller()), nil
}
