package resolver

import (
	"context"
	"sync"

	"entity-graphql/internal/store"
)

type mutationContextKey struct{}

// MutationContext holds the shared transaction of one top-level mutation
// and the state carried through its nested writes.
type MutationContext struct {
	tx            store.Tx
	correlationID string
	hasError      bool
	finalized     bool
	mu            sync.Mutex
}

// NewMutationContext wraps tx. A nil tx runs the mutation without a
// transaction; Finalize is then a no-op.
func NewMutationContext(tx store.Tx) *MutationContext {
	return &MutationContext{tx: tx}
}

func (mc *MutationContext) Tx() store.Tx {
	return mc.tx
}

// CorrelationID returns the bulk correlation id, if any.
func (mc *MutationContext) CorrelationID() string {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.correlationID
}

func (mc *MutationContext) setCorrelationID(id string) {
	mc.mu.Lock()
	mc.correlationID = id
	mc.mu.Unlock()
}

func (mc *MutationContext) MarkError() {
	mc.mu.Lock()
	mc.hasError = true
	mc.mu.Unlock()
}

// Finalize commits or rolls back the transaction based on the error state.
// The lock is held throughout so MarkError cannot interleave with the
// commit decision.
func (mc *MutationContext) Finalize() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.finalized {
		return nil
	}
	mc.finalized = true
	if mc.tx == nil {
		return nil
	}
	if mc.hasError {
		return mc.tx.Rollback()
	}
	return mc.tx.Commit()
}

// WithMutationContext attaches mc and its transaction to ctx so store calls
// join the transaction.
func WithMutationContext(ctx context.Context, mc *MutationContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, mutationContextKey{}, mc)
	if mc != nil && mc.tx != nil {
		ctx = store.WithTx(ctx, mc.tx)
	}
	return ctx
}

func MutationContextFromContext(ctx context.Context) *MutationContext {
	if ctx == nil {
		return nil
	}
	mc, _ := ctx.Value(mutationContextKey{}).(*MutationContext)
	return mc
}
