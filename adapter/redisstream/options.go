package redisstream

import "github.com/trickstertwo/xlog"

type options struct {
	logger *xlog.Logger
}

// Option configures an Egress, Ingress or Bridge.
type Option func(*options)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: xlog.Default()}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
