// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lending

import (
	"context"

	"github.com/luxfi/geth/common"
)

// Authorizer answers whether the authenticated caller of an operation is a
// given principal.
type Authorizer interface {
	CallerIs(ctx context.Context, principal common.Address) bool
}

type contextKey string

const callerKey contextKey = "caller"

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom retrieves the authenticated caller from the context.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	if v := ctx.Value(callerKey); v != nil {
		if caller, ok := v.(common.Address); ok {
			return caller, true
		}
	}
	return common.Address{}, false
}

// ContextAuthorizer authorizes against the caller stored by WithCaller.
type ContextAuthorizer struct{}

func (ContextAuthorizer) CallerIs(ctx context.Context, principal common.Address) bool {
	caller, ok := CallerFrom(ctx)
	return ok && caller == principal
}
