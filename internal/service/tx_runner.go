package service

import (
	"context"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"

	"go.uber.org/zap"
)

// TxPolicy 事务重试策略
type TxPolicy struct {
	MaxRetries int           // Unavailable 时额外重试次数
	Timeout    time.Duration // 单次尝试超时
	Backoff    time.Duration // 第 n 次重试前等待 n*Backoff
}

// DefaultTxPolicy 与配置默认值一致
func DefaultTxPolicy() TxPolicy {
	return TxPolicy{MaxRetries: 3, Timeout: 5 * time.Second, Backoff: 20 * time.Millisecond}
}

// TxRunner 在 UnitOfWork 上执行带超时/重试的事务
type TxRunner struct {
	uow     repository.UnitOfWork
	policy  TxPolicy
	metrics *Metrics
	logger  *zap.Logger
}

func NewTxRunner(uow repository.UnitOfWork, policy TxPolicy, metrics *Metrics, logger *zap.Logger) *TxRunner {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultTxPolicy().Timeout
	}
	return &TxRunner{uow: uow, policy: policy, metrics: metrics, logger: logger}
}

// Run 只有 Unavailable（死锁/序列化失败/超时/断连）会重试；业务错误直接返回
// fn 可能被执行多次，必须只依赖 tx 内读取的数据
func (r *TxRunner) Run(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err error
	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.retry(op)
			r.logger.Warn("retrying transaction",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return domain.Unavailable(ctx.Err())
			case <-time.After(time.Duration(attempt) * r.policy.Backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
		err = r.uow.WithinTx(attemptCtx, fn)
		cancel()
		if !domain.IsKind(err, domain.KindUnavailable) {
			return err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return err
}

// StatsInvalidator 统计缓存失效
type StatsInvalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// CommitHooks 事务提交后执行：统计缓存失效 + 审计；失败只记日志
type CommitHooks struct {
	Audit  AuditSink
	Stats  StatsInvalidator
	Logger *zap.Logger
}

const hookTimeout = 2 * time.Second

func (h CommitHooks) after(ctx context.Context, tenantID string, events ...AuditEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hookTimeout)
	defer cancel()

	if h.Stats != nil {
		h.Stats.Invalidate(ctx, tenantID)
	}
	if h.Audit == nil {
		return
	}
	for _, ev := range events {
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now()
		}
		if err := h.Audit.Emit(ctx, ev); err != nil && h.Logger != nil {
			h.Logger.Warn("audit emit failed",
				zap.String("resource_type", ev.ResourceType),
				zap.String("action", ev.Action),
				zap.String("target_id", ev.TargetID),
				zap.Error(err),
			)
		}
	}
}
