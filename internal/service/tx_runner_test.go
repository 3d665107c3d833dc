package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func zapNop() *zap.Logger { return zap.NewNop() }

// blockingUoW 一直等到 ctx 结束
type blockingUoW struct{}

func (blockingUoW) WithinTx(ctx context.Context, _ func(ctx context.Context, tx repository.Tx) error) error {
	<-ctx.Done()
	return domain.Unavailable(ctx.Err())
}

func TestTxRunner_TimeoutIsUnavailable(t *testing.T) {
	r := NewTxRunner(blockingUoW{}, TxPolicy{MaxRetries: 0, Timeout: 20 * time.Millisecond}, nil, zapNop())

	start := time.Now()
	err := r.Run(context.Background(), "assign", func(context.Context, repository.Tx) error { return nil })
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	assert.Less(t, time.Since(start), time.Second)
}

func TestTxRunner_DomainErrorsAreNotRetried(t *testing.T) {
	flaky := &flakyUoW{inner: repository.NewMemoryStore()}
	r := NewTxRunner(flaky, TxPolicy{MaxRetries: 3, Timeout: time.Second, Backoff: time.Millisecond}, nil, zapNop())

	err := r.Run(context.Background(), "assign", func(context.Context, repository.Tx) error {
		return domain.Conflictf("Lit non disponible (statut: occupé)")
	})
	assert.True(t, domain.IsKind(err, domain.KindConflict))
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestTxRunner_StopsWhenParentCanceled(t *testing.T) {
	flaky := &flakyUoW{inner: repository.NewMemoryStore(), failures: 100}
	r := NewTxRunner(flaky, TxPolicy{MaxRetries: 5, Timeout: time.Second, Backoff: 50 * time.Millisecond}, nil, zapNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx, "assign", func(context.Context, repository.Tx) error { return nil })
	assert.True(t, domain.IsKind(err, domain.KindUnavailable))
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestCommitHooks_AuditFailureIsSwallowed(t *testing.T) {
	failing := MultiAuditSink{auditFunc(func(AuditEvent) error { return errors.New("broker down") })}
	h := CommitHooks{Audit: failing, Logger: zapNop()}
	assert.NotPanics(t, func() {
		h.after(context.Background(), testTenant, AuditEvent{ResourceType: "bed", Action: "delete"})
	})
}

type auditFunc func(AuditEvent) error

func (f auditFunc) Emit(_ context.Context, ev AuditEvent) error { return f(ev) }
