package ratelimit

import "context"

// Limiter admits or rejects a request for a caller before any other gateway
// work. Implementations must be safe under concurrent admission checks for
// the same caller: no two admissions may both pass when only one slot
// remains.
type Limiter interface {
	// Admit returns true when the caller is within its admission window.
	// An accepted call consumes one slot.
	Admit(ctx context.Context, callerID string) (bool, error)
}
