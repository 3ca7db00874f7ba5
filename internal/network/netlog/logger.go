// Package netlog provides the package-scoped structured loggers used
// throughout internal/network, one per package via New(module), playing
// the same role as a log.NewModuleLogger(log.SomeModule) call would,
// directly on top of go.uber.org/zap.
package netlog

import "go.uber.org/zap"

// New returns a structured, key-value logger named for module.
func New(module string) *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar().Named(module)
}
