package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultStreamMaxLen 近似上限（XADD MAXLEN ~）
const DefaultStreamMaxLen = 100000

// StreamWriter 以 JSON 形式追加事件到单个 stream
// 字段: kind（事件类型）, data（JSON）, ts（毫秒时间戳）
type StreamWriter struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamWriter(client *redis.Client, stream string, maxLen int64) *StreamWriter {
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &StreamWriter{client: client, stream: stream, maxLen: maxLen}
}

func (w *StreamWriter) Stream() string { return w.stream }

func (w *StreamWriter) AppendJSON(ctx context.Context, kind string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", kind, err)
	}
	return w.client.XAdd(ctx, &redis.XAddArgs{
		Stream: w.stream,
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": kind,
			"data": string(data),
			"ts":   time.Now().UnixMilli(),
		},
	}).Result()
}
