package domain

import "context"

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	principalKey ctxKey = "principal"
	traceIDKey   ctxKey = "trace_id"
)

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom возвращает оператора или nil для анонимных вызовов (агенты).
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
