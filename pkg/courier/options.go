package courier

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Option configures a Publisher or a Consumer.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	meterProvider metric.MeterProvider
}

func defaultOptions() options {
	return options{
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider sets the provider used to create counters.
// Default is the global provider returned by otel.GetMeterProvider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = provider
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
