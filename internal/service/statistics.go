package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"residence-data/internal/domain"
	"residence-data/internal/repository"
	"residence-data/internal/store"

	"go.uber.org/zap"
)

const statsKeyPrefix = "residence:stats:"

// Statistics 租户占用统计
type Statistics struct {
	TotalOccupancies int    `json:"total_occupancies"`
	Active           int    `json:"active"`
	Ended            int    `json:"ended"`
	Cancelled        int    `json:"cancelled"`
	Unpaid           int    `json:"unpaid"`
	BedsTotal        int    `json:"beds_total"`
	BedsOccupied     int    `json:"beds_occupied"`
	BedsAvailable    int    `json:"beds_available"`
	OccupancyRate    string `json:"occupancy_rate"` // "25.0"
}

// StatisticsService 统计查询；kv 为 nil 时不缓存
// gen 按租户计数本进程内的失效次数：读取期间发生过失效的结果不会留在缓存里。
// 多实例部署时其他实例的写入只靠 TTL 收敛
type StatisticsService struct {
	repo   repository.OccupancyRepository
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger

	mu  sync.Mutex
	gen map[string]uint64
}

func NewStatisticsService(repo repository.OccupancyRepository, kv store.KV, ttl time.Duration, logger *zap.Logger) *StatisticsService {
	return &StatisticsService{repo: repo, kv: kv, ttl: ttl, logger: logger, gen: make(map[string]uint64)}
}

func (s *StatisticsService) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[tenantID]
}

func (s *StatisticsService) Get(ctx context.Context, tenantID string) (*Statistics, error) {
	if tenantID == "" {
		return nil, domain.Validationf("tenant_id is required")
	}
	key := statsKeyPrefix + tenantID
	if s.kv != nil {
		var st Statistics
		err := store.GetJSON(ctx, s.kv, key, &st)
		switch {
		case err == nil:
			return &st, nil
		case errors.Is(err, store.ErrMiss):
		case errors.Is(err, store.ErrCorrupt):
			s.logger.Debug("stats cache entry dropped", zap.String("tenant_id", tenantID), zap.Error(err))
		default:
			s.logger.Warn("stats cache read failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	gen := s.generation(tenantID)
	c, err := s.repo.Statistics(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	st := &Statistics{
		TotalOccupancies: c.Total,
		Active:           c.Active,
		Ended:            c.Ended,
		Cancelled:        c.Cancelled,
		Unpaid:           c.Unpaid,
		BedsTotal:        c.BedsTotal,
		BedsOccupied:     c.BedsOccupied,
		BedsAvailable:    c.BedsAvailable,
		OccupancyRate:    domain.FormatRate(domain.OccupancyRate(c.BedsOccupied, c.BedsTotal)),
	}

	if s.kv != nil && s.ttl > 0 {
		s.cacheSnapshot(ctx, tenantID, gen, st)
	}
	return st, nil
}

// cacheSnapshot 写前写后各检查一次 gen；写后发现失效则删掉刚写入的快照
func (s *StatisticsService) cacheSnapshot(ctx context.Context, tenantID string, gen uint64, st *Statistics) {
	key := statsKeyPrefix + tenantID
	if s.generation(tenantID) != gen {
		s.logger.Debug("stats snapshot outdated, not cached", zap.String("tenant_id", tenantID))
		return
	}
	if err := store.SetJSON(ctx, s.kv, key, st, s.ttl); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if s.generation(tenantID) != gen {
		if err := s.kv.Delete(ctx, key); err != nil {
			s.logger.Warn("stats cache invalidate failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
}

// Invalidate 写事务提交后调用；先递增 gen 再删除
func (s *StatisticsService) Invalidate(ctx context.Context, tenantID string) {
	s.mu.Lock()
	s.gen[tenantID]++
	s.mu.Unlock()
	if s.kv == nil {
		return
	}
	if err := s.kv.Delete(ctx, statsKeyPrefix+tenantID); err != nil {
		s.logger.Warn("stats cache invalidate failed", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
