package logger

import "context"

type contextKey string

const TurnIDKey contextKey = "turn_id"
const OriginKey contextKey = "origin"

func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TurnIDKey, id)
}

func GetTurnID(ctx context.Context) string {
	if id, ok := ctx.Value(TurnIDKey).(string); ok {
		return id
	}
	return ""
}

// WithOrigin tags the context with who started the turn ("user" or "self").
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, OriginKey, origin)
}

func GetOrigin(ctx context.Context) string {
	if o, ok := ctx.Value(OriginKey).(string); ok {
		return o
	}
	return ""
}
