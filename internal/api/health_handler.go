package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/notification-agent/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthChecker reports on Postgres, Redis and the rule catalog. Any
// dependency can be nil and is then reported as not configured.
type HealthChecker struct {
	db        Pinger
	redis     redis.UniversalClient
	catalog   CatalogStats
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker.
func NewHealthChecker(db Pinger, redisClient redis.UniversalClient, cat CatalogStats) *HealthChecker {
	return &HealthChecker{db: db, redis: redisClient, catalog: cat, startTime: time.Now()}
}

const healthVersion = "1.0.0"

// HandleHealth always answers 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  time.Since(hc.startTime).Round(time.Second).String(),
		Checks:  checks,
	})
}

// HandleReadiness answers 503 while the service cannot select rules.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  overall != "unhealthy",
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 2)
	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()

	checks := map[string]ComponentCheck{"catalog": hc.checkCatalog()}
	for i := 0; i < 2; i++ {
		r := <-ch
		checks[r.name] = r.check
	}
	return checks
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	return timedPing(ctx, 3*time.Second, time.Second, hc.db.PingContext)
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	return timedPing(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
		return hc.redis.Ping(ctx).Err()
	})
}

func timedPing(ctx context.Context, timeout, slow time.Duration, ping func(context.Context) error) ComponentCheck {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if latency > slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}

func (hc *HealthChecker) checkCatalog() ComponentCheck {
	if hc.catalog == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}
	st := hc.catalog.Stats()
	switch {
	case !st.Loaded:
		return ComponentCheck{Status: "down", Message: "no snapshot loaded"}
	case st.Stale:
		return ComponentCheck{Status: "down", Message: fmt.Sprintf("snapshot stale since %s", st.LoadedAt.Format(time.RFC3339))}
	case len(st.Excluded) > 0:
		return ComponentCheck{Status: "degraded", Message: fmt.Sprintf("%d rules, %d excluded", st.Rules, len(st.Excluded))}
	}
	return ComponentCheck{Status: "up", Message: fmt.Sprintf("%d rules", st.Rules)}
}

// determineOverallStatus derives the aggregate status:
//   - "unhealthy" if the catalog is down, since no rule can be selected
//   - "degraded" if any configured check is degraded or down
//   - "healthy" otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	if c, ok := checks["catalog"]; ok && c.Status == "down" {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}
	return "healthy"
}
