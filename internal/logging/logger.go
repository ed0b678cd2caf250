// Package logging holds the process-wide zap logger used by the daemon
// and its internal packages. The shim does not log.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger
var LogSugar *zap.SugaredLogger

func init() {
	Init(false)
}

// Init (re)configures the package-level loggers. debug selects a
// development console encoder with caller info; production mode uses a
// JSON encoder suitable for log collection.
func Init(debug bool) {
	var core zapcore.Core
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(cfg.EncoderConfig), zapcore.AddSync(os.Stdout), zap.DebugLevel)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core = zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stderr), zap.InfoLevel)
	}
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
}
