package authn

// Logger is an interface for optional logging in strategies and pipelines.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, args ...any)
}

// WarnLogger is implemented by loggers with a dedicated warning level. When a
// Logger also implements WarnLogger, warnings are routed through Warnf.
type WarnLogger interface {
	Warnf(format string, args ...any)
}

func logf(logger Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

func warnf(logger Logger, format string, args ...any) {
	if logger == nil {
		return
	}
	if wl, ok := logger.(WarnLogger); ok {
		wl.Warnf(format, args...)
		return
	}
	logger.Printf("WARNING: "+format, args...)
}
