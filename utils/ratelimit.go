package utils

import (
	"sync"
	"time"
)

// RateLimiter ограничивает частоту запросов скользящим окном по ключу (IP клиента)
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewRateLimiter создает новый RateLimiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow проверяет, разрешен ли запрос, и учитывает его
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.pruneLocked(key)
	if len(valid) >= rl.limit {
		return false
	}
	rl.requests[key] = append(valid, rl.now())
	return true
}

// Remaining возвращает количество оставшихся запросов в текущем окне
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.limit - len(rl.pruneLocked(key))
}

// ResetAt возвращает момент, когда освободится самый старый слот
func (rl *RateLimiter) ResetAt(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.pruneLocked(key)
	if len(valid) == 0 {
		return rl.now()
	}
	return valid[0].Add(rl.window)
}

// pruneLocked удаляет запросы вне окна; пустые ключи удаляются из карты
func (rl *RateLimiter) pruneLocked(key string) []time.Time {
	windowStart := rl.now().Add(-rl.window)
	var valid []time.Time
	for _, t := range rl.requests[key] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(rl.requests, key)
		return nil
	}
	rl.requests[key] = valid
	return valid
}
