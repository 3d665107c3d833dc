package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonredis "residence-data/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AuditEvent 审计事件
type AuditEvent struct {
	ResourceType string         `json:"resource_type"` // occupancy / bed / room / housing
	Action       string         `json:"action"`
	TargetID     string         `json:"target_id"`
	TenantID     string         `json:"tenant_id"`
	ActorID      string         `json:"actor_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// AuditSink 审计输出；失败不影响业务操作
type AuditSink interface {
	Emit(ctx context.Context, ev AuditEvent) error
}

// LogAuditSink 写入结构化日志
type LogAuditSink struct {
	logger *zap.Logger
}

func NewLogAuditSink(logger *zap.Logger) *LogAuditSink {
	return &LogAuditSink{logger: logger}
}

func (s *LogAuditSink) Emit(_ context.Context, ev AuditEvent) error {
	s.logger.Info("audit",
		zap.String("resource_type", ev.ResourceType),
		zap.String("action", ev.Action),
		zap.String("target_id", ev.TargetID),
		zap.String("tenant_id", ev.TenantID),
		zap.String("actor_id", ev.ActorID),
		zap.Any("metadata", ev.Metadata),
	)
	return nil
}

// RedisStreamAuditSink XADD 到审计 stream，供下游消费
type RedisStreamAuditSink struct {
	w *commonredis.StreamWriter
}

func NewRedisStreamAuditSink(client *redis.Client, stream string) *RedisStreamAuditSink {
	return &RedisStreamAuditSink{w: commonredis.NewStreamWriter(client, stream, commonredis.DefaultStreamMaxLen)}
}

func (s *RedisStreamAuditSink) Emit(ctx context.Context, ev AuditEvent) error {
	_, err := s.w.AppendJSON(ctx, ev.ResourceType+"."+ev.Action, ev)
	return err
}

// MQTTPublisher common/mqtt.Client 满足该接口
type MQTTPublisher interface {
	PublishJSON(topic string, v any) error
}

// MQTTAuditSink 发布到 <prefix>/<tenant>/<resource>s/<target>
// 床位状态变化由前端大屏订阅
type MQTTAuditSink struct {
	pub    MQTTPublisher
	prefix string
}

func NewMQTTAuditSink(pub MQTTPublisher, prefix string) *MQTTAuditSink {
	return &MQTTAuditSink{pub: pub, prefix: prefix}
}

func (s *MQTTAuditSink) Topic(ev AuditEvent) string {
	return fmt.Sprintf("%s/%s/%ss/%s", s.prefix, ev.TenantID, ev.ResourceType, ev.TargetID)
}

func (s *MQTTAuditSink) Emit(_ context.Context, ev AuditEvent) error {
	return s.pub.PublishJSON(s.Topic(ev), ev)
}

// MultiAuditSink 扇出到所有 sink，汇总错误
type MultiAuditSink []AuditSink

func (m MultiAuditSink) Emit(ctx context.Context, ev AuditEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
