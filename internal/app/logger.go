package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "studyroom"

// NewLogger builds the process logger: JSON in production, coloured console
// output otherwise. Every entry carries the service name.
func NewLogger(env string) *zap.Logger {
	config := loggerConfig(env)

	logger, err := config.Build(zap.Fields(zap.String("service", serviceName)))
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger
}

func loggerConfig(env string) zap.Config {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	config.OutputPaths = []string{"stdout"}
	return config
}
