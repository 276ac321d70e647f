package adminapi

import (
	"context"
	"errors"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/draftlobby/go/internal/auth"
)

// NewAuthInterceptor resolves the bearer token of every call and stores the
// caller's identity on the context.
func NewAuthInterceptor(tokens auth.TokenResolver) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token, ok := strings.CutPrefix(req.Header().Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("missing bearer token"))
			}
			id, err := tokens.Resolve(ctx, strings.TrimSpace(token))
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(auth.WithIdentity(ctx, id), req)
		}
	}
}

// NewTokenInterceptor attaches a bearer token to every outgoing call.
func NewTokenInterceptor(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient && token != "" {
				req.Header().Set("Authorization", "Bearer "+token)
			}
			return next(ctx, req)
		}
	}
}
