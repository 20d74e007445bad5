package log

import (
	"log"
	"os"
	"path/filepath"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger replaces the global zap logger with a tee of a JSON file core and a coloured console
// core. Errors are also shipped to Sentry when a DSN is given.
func NewLogger(path string, debug bool, sentryDsn string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatal(err)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	logger := zap.New(newCore(zapcore.AddSync(f), zapcore.AddSync(colorable.NewColorableStdout()), level))
	defer logger.Sync()

	if sentryDsn != "" {
		logger = withSentry(logger, sentryDsn)
	}

	zap.ReplaceGlobals(logger)
}

func newCore(file, console zapcore.WriteSyncer, level zapcore.Level) zapcore.Core {
	pe := zap.NewProductionEncoderConfig()
	pe.EncodeTime = zapcore.ISO8601TimeEncoder
	pe.MessageKey = "message"
	pe.TimeKey = "time"
	fileEncoder := zapcore.NewJSONEncoder(pe)

	pe.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(pe)

	return zapcore.NewTee(
		zapcore.NewCore(fileEncoder, file, level),
		zapcore.NewCore(consoleEncoder, console, level),
	)
}

func withSentry(log *zap.Logger, dsn string) *zap.Logger {
	cfg := zapsentry.Configuration{
		Level:             zapcore.ErrorLevel,
		EnableBreadcrumbs: true,
		BreadcrumbLevel:   zapcore.InfoLevel,
		Tags: map[string]string{
			"component": "marketplace",
		},
	}
	core, err := zapsentry.NewCore(cfg, zapsentry.NewSentryClientFromDSN(dsn))

	// breadcrumbs need an explicit scope
	log = log.With(zapsentry.NewScope())

	// on error core is a noop and can still be attached
	if err != nil {
		log.Warn("Logger: Failed to init sentry", zap.Error(err))
	}

	return zapsentry.AttachCoreToLogger(core, log)
}
