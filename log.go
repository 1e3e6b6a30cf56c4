package roofline

import "go.uber.org/zap"

var logger = zap.NewNop()

// SetLogger sets the logger used by the engine. Warnings such as mismatched
// ROI labels are reported through it; by default nothing is logged.
func SetLogger(l *zap.Logger) {
	logger = l
}
