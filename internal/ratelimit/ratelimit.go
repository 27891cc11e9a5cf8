// Package ratelimit admits or rejects generation requests per client fingerprint
// using a sliding-window log kept in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/digkill/genstudio/internal/apperr"
)

// slidingWindow trims expired hits, then records the new hit only if the window has room.
// Returns {allowed, remaining, retryAfterMillis}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, 0, retry}
`)

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Gate struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

func NewGate(client redis.Scripter, limit int, window time.Duration, log *slog.Logger) *Gate {
	return &Gate{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		log:    log,
		now:    time.Now,
	}
}

// Admit records one hit for fingerprint. A rejected hit returns a RateLimited error carrying
// the retry hint. A missing fingerprint is rejected outright. If Redis is unreachable the
// request is admitted and the failure logged, so a cache outage does not take generation down.
func (g *Gate) Admit(ctx context.Context, fingerprint string) (Decision, error) {
	if fingerprint == "" {
		return Decision{}, apperr.RateLimited("IP address not found", 0)
	}

	now := g.now().UnixMilli()
	raw, err := slidingWindow.Run(ctx, g.client,
		[]string{g.prefix + fingerprint},
		now, g.window.Milliseconds(), g.limit, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		g.log.Error("rate gate unavailable, admitting request", "fingerprint", fingerprint, "err", err)
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	if len(raw) != 3 {
		g.log.Error("rate gate returned unexpected reply, admitting request", "reply", raw)
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	d := Decision{
		Allowed:    raw[0] == 1,
		Remaining:  int(raw[1]),
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
	}
	if !d.Allowed {
		return d, apperr.RateLimited("Please slow down. Try again later.", d.RetryAfter)
	}
	return d, nil
}
