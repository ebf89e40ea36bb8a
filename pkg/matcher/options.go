package matcher

import "log/slog"

// Options configures scanning behavior
type Options struct {
	// Tolerant skips a pattern whose search times out instead of failing the call.
	// The skipped pattern is logged at warn level.
	Tolerant bool

	// Logger receives warnings; nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default scanning options
func DefaultOptions() Options {
	return Options{
		Tolerant: false,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
