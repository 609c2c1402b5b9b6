package llm

import (
	"context"
	"strings"
)

type contextKey string

const modelContextKey contextKey = "llm-model-override"

// WithModel returns a context that routes the call to a specific Gemini
// model. One shared client serves both the conversational and the analysis
// flows; the caller picks the model per request.
func WithModel(ctx context.Context, model string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(model) == "" {
		return ctx
	}
	return context.WithValue(ctx, modelContextKey, normalizeModel(model))
}

// modelFromContext extracts the requested model override, if any.
func modelFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(modelContextKey).(string); ok {
		return value
	}
	return ""
}
