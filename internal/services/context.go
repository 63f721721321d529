package services

import "context"

// Each annotation gets its own key type so values never collide.
type (
	queueIDKey   struct{}
	entryIDKey   struct{}
	stageKey     struct{}
	requestIDKey struct{}
)

// annotate stores v under key unless v is the zero value.
func annotate[T comparable](ctx context.Context, key any, v T) context.Context {
	var zero T
	if v == zero {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func lookup[T comparable](ctx context.Context, key any) (T, bool) {
	v, ok := ctx.Value(key).(T)
	var zero T
	return v, ok && v != zero
}

// WithQueueID tags ctx with a transmission queue id. Zero leaves ctx as is.
func WithQueueID(ctx context.Context, id int64) context.Context {
	return annotate(ctx, queueIDKey{}, id)
}

func QueueIDFromContext(ctx context.Context) (int64, bool) {
	return lookup[int64](ctx, queueIDKey{})
}

// WithEntryID tags ctx with an entry id. Zero leaves ctx as is.
func WithEntryID(ctx context.Context, id int64) context.Context {
	return annotate(ctx, entryIDKey{}, id)
}

func EntryIDFromContext(ctx context.Context) (int64, bool) {
	return lookup[int64](ctx, entryIDKey{})
}

// WithStage names the lane or step doing the work ("schedule", "inbox",
// "transmit").
func WithStage(ctx context.Context, stage string) context.Context {
	return annotate(ctx, stageKey{}, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return lookup[string](ctx, stageKey{})
}

// WithRequestID carries the X-Request-ID of an API call.
func WithRequestID(ctx context.Context, id string) context.Context {
	return annotate(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return lookup[string](ctx, requestIDKey{})
}
