package translator

import (
	"log/slog"
)

type options struct {
	logger *slog.Logger
}

// Option configures the translator components.
type Option func(*options)

// WithLogger sets the logger used for the non-fatal warning channel.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}
