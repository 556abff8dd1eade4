package common

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateBudgetService bounds upstream calls against a short rolling window and
// a daily ceiling, shared by every session. Counters live in Redis so
// overlapping scheduler invocations see one consistent budget.
type RateBudgetService struct {
	rdb         *redis.Client
	windowLimit int64
	windowSize  time.Duration
	dailyLimit  int64
}

// NewRateBudgetService creates a budget tracker over the given Redis client
func NewRateBudgetService(rdb *redis.Client, windowLimit int, windowSize time.Duration, dailyLimit int) *RateBudgetService {
	return &RateBudgetService{
		rdb:         rdb,
		windowLimit: int64(windowLimit),
		windowSize:  windowSize,
		dailyLimit:  int64(dailyLimit),
	}
}

func (s *RateBudgetService) windowKey(now time.Time) string {
	bucket := now.Unix() / int64(s.windowSize.Seconds())
	return fmt.Sprintf("rate:budget:window:%d", bucket)
}

func (s *RateBudgetService) dailyKey(now time.Time) string {
	return "rate:budget:daily:" + now.UTC().Format("2006-01-02")
}

// Reserve atomically claims n upstream calls from both windows. A denial
// rolls the increments back so no capacity is leaked; it is not an error,
// the tick simply claims no more work.
func (s *RateBudgetService) Reserve(ctx context.Context, n int) (bool, error) {
	now := time.Now()
	wKey := s.windowKey(now)
	dKey := s.dailyKey(now)

	wCount, err := s.rdb.IncrBy(ctx, wKey, int64(n)).Result()
	if err != nil {
		return false, fmt.Errorf("reserving window budget: %w", err)
	}
	if wCount == int64(n) {
		s.rdb.Expire(ctx, wKey, s.windowSize+time.Minute)
	}
	if wCount > s.windowLimit {
		s.rdb.DecrBy(ctx, wKey, int64(n))
		return false, nil
	}

	dCount, err := s.rdb.IncrBy(ctx, dKey, int64(n)).Result()
	if err != nil {
		s.rdb.DecrBy(ctx, wKey, int64(n))
		return false, fmt.Errorf("reserving daily budget: %w", err)
	}
	if dCount == int64(n) {
		s.rdb.Expire(ctx, dKey, 48*time.Hour)
	}
	if dCount > s.dailyLimit {
		s.rdb.DecrBy(ctx, wKey, int64(n))
		s.rdb.DecrBy(ctx, dKey, int64(n))
		return false, nil
	}

	return true, nil
}

// Release returns unused reserved capacity, e.g. when a claim attempt lost
// the race and the calls were never issued
func (s *RateBudgetService) Release(ctx context.Context, n int) {
	now := time.Now()
	s.rdb.DecrBy(ctx, s.windowKey(now), int64(n))
	s.rdb.DecrBy(ctx, s.dailyKey(now), int64(n))
}

// Remaining reports how many calls the tighter of the two windows still allows
func (s *RateBudgetService) Remaining(ctx context.Context) (int, error) {
	now := time.Now()

	wCount, err := s.rdb.Get(ctx, s.windowKey(now)).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("reading window budget: %w", err)
	}
	dCount, err := s.rdb.Get(ctx, s.dailyKey(now)).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("reading daily budget: %w", err)
	}

	wLeft := s.windowLimit - wCount
	dLeft := s.dailyLimit - dCount
	left := wLeft
	if dLeft < left {
		left = dLeft
	}
	if left < 0 {
		left = 0
	}
	return int(left), nil
}
