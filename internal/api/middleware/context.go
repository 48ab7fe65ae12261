package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

func SetOwnerID(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerIDKey, owner)
}

func GetOwnerID(r *http.Request) (string, bool) {
	owner, ok := r.Context().Value(ownerIDKey).(string)
	return owner, ok && owner != ""
}
