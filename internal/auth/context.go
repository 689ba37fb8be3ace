package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not present in context")

func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxUserID).(string)
	if !ok || v == "" {
		return "", ErrNoIdentity
	}
	return v, nil
}

func Role(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxRole).(string)
	if !ok || v == "" {
		return "", ErrNoIdentity
	}
	return v, nil
}
