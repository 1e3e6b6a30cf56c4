package utrace

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger installs the logger used to report tracing events. Nothing is
// logged by default.
func SetLogger(l *zap.Logger) {
	logger = l
}
