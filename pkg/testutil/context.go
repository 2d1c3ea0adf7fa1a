package testutil

import (
	"context"
	"time"

	"rosterlink/pkg/requestcontext"
)

// Context returns a background context carrying a requester, a request ID
// and a fixed clock, the state middleware establishes for a real request.
func Context(requester string, now time.Time) context.Context {
	ctx := requestcontext.WithRequester(context.Background(), requester)
	ctx = requestcontext.WithRequestID(ctx, "test-request")
	return requestcontext.WithTime(ctx, now)
}
