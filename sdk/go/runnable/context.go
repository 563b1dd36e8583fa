package runnable

import "context"

type configKey struct{}

// WithConfig installs cfg as the current run config of the returned context.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFromContext returns the run config current on ctx, if any.
func ConfigFromContext(ctx context.Context) (*Config, bool) {
	if ctx == nil {
		return nil, false
	}
	cfg, ok := ctx.Value(configKey{}).(*Config)
	return cfg, ok && cfg != nil
}

// RunWithConfig runs body with cfg current for body's extent only.
// The caller's ctx is left untouched, so its config is current again as soon
// as body returns, fails or panics.
func RunWithConfig[T any](ctx context.Context, cfg *Config, body func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return body(WithConfig(ctx, cfg))
}
