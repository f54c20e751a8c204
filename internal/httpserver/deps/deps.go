package deps

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pulse/internal/logger"
	"github.com/MrSnakeDoc/pulse/internal/session"
)

// MutationLog reports when a customer was last mutated on any replica.
type MutationLog interface {
	LastMutation(ctx context.Context, customerID string) (time.Time, bool, error)
}

type Deps struct {
	Logger               logger.Logger
	StartTime            time.Time
	Version              string
	Commit               string
	BuildDate            string
	GoVersion            string
	TimeNow              func() time.Time  // for testing, defaults to time.Now
	AllowedHosts         []string          // Host headers allowed to access /api
	AllowedCIDRS         []string          // IPs allowed to access readyz/infra endpoints
	TrustProxy           bool              // true if running behind a trusted reverse proxy
	MutationBurst        int               // rate limit burst for mutating routes
	MutationRefillPerMin int               // rate limit refill for mutating routes
	Sessions             *session.Registry // per page-session stores and orchestrators
	RedisClient          *redis.Client     // nil when invalidation stays process-local
	Mutations            MutationLog       // nil without Redis
}
