package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// guildLimiter hands out one token bucket per guild.
type guildLimiter struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newGuildLimiter allows perMinute reports per guild; zero or less disables limiting.
func newGuildLimiter(perMinute int, clock clockwork.Clock) *guildLimiter {
	l := &guildLimiter{
		clock:    clock,
		limit:    rate.Inf,
		burst:    1,
		limiters: make(map[string]*rate.Limiter),
	}
	if perMinute > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(perMinute))
		l.burst = perMinute
	}
	return l
}

func (l *guildLimiter) Allow(guildID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[guildID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[guildID] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(l.clock.Now(), 1)
}
