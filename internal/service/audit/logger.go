package audit

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jwalitptl/careflow-api/internal/config"
)

// NewLogger builds the JSON access trail. Output is "stdout", "stderr" or a file path.
func NewLogger(cfg config.AuditConfig) (*zap.Logger, error) {
	if !cfg.Enabled {
		return zap.NewNop(), nil
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}

	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.Sampling = nil
	zcfg.DisableCaller = true
	zcfg.DisableStacktrace = true
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build audit logger: %w", err)
	}
	return logger.Named("audit"), nil
}
