// logger.go
package stp

import (
	"go.uber.org/zap"
)

var gLogger = zap.NewNop()

// SetLogger replaces the package logger, bridges created afterwards
// without their own logger inherit it
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	gLogger = l
}

func StpLogger(t string, msg string) {

	switch t {
	case "INFO":
		gLogger.Info(msg)
	case "DEBUG":
		gLogger.Debug(msg)
	case "ERROR":
		gLogger.Error(msg)
	case "WARNING":
		gLogger.Warn(msg)
	}
}
