// Package handlers, upload gateway'in HTTP endpoint'lerini barındırır.
package handlers

import "context"

// contextKey, context'te değer taşımak için kullanılan key tipi.
// Özel bir tip tanımlayarak başka paketlerin key'leriyle çakışma önlenir.
type contextKey string

// UserIDContextKey, AuthMiddleware'ın doğruladığı kullanıcı ID'sini taşır.
const UserIDContextKey contextKey = "user_id"

// WithUserID, ctx'e kullanıcı ID'sini ekler.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserIDFromContext, AuthMiddleware'dan geçmiş request'lerin kullanıcı ID'sini döner.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(UserIDContextKey).(string)
	return id, ok && id != ""
}
