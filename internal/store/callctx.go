package store

import "context"

type callContextKey struct{}

// WithCallContext attaches caller-supplied key/value pairs to the
// context for the duration of a run. Store implementations that speak
// to systems with per-call execution contexts (language, timezone,
// tracking flags) read them back with CallContext; implementations
// without such a notion ignore them.
func WithCallContext(ctx context.Context, kv map[string]any) context.Context {
	if len(kv) == 0 {
		return ctx
	}
	merged := make(map[string]any, len(kv))
	for k, v := range CallContext(ctx) {
		merged[k] = v
	}
	for k, v := range kv {
		merged[k] = v
	}
	return context.WithValue(ctx, callContextKey{}, merged)
}

// CallContext returns the key/value pairs attached by WithCallContext,
// or nil.
func CallContext(ctx context.Context) map[string]any {
	kv, _ := ctx.Value(callContextKey{}).(map[string]any)
	return kv
}
