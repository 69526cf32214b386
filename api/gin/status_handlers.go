package gin

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	serrors "github.com/pilab-dev/shadow-auth/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultPingTimeout = 2 * time.Second
	defaultPingCache   = time.Second
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusAPI serves the /api/status routes and guards the rest of /api while
// the database is unreachable.
type StatusAPI struct {
	name      string
	version   string
	startedAt time.Time
	db        Pinger

	pingTimeout time.Duration
	pingCache   time.Duration
	now         func() time.Time

	pings     singleflight.Group
	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
}

// NewStatusAPI creates a new StatusAPI.
func NewStatusAPI(name, version string, db Pinger) *StatusAPI {
	return &StatusAPI{
		name:        name,
		version:     version,
		startedAt:   time.Now(),
		db:          db,
		pingTimeout: defaultPingTimeout,
		pingCache:   defaultPingCache,
		now:         time.Now,
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    string    `json:"status"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

// RegisterRoutes registers the status routes on rg.
func (s *StatusAPI) RegisterRoutes(rg *gin.RouterGroup) {
	status := rg.Group("/status")
	{
		status.GET("", s.StatusHandler)
		status.GET("/test", s.TestHandler)
	}
}

// StatusHandler reports uptime and database connectivity. It always answers 200
// so probes can tell a running process from a dead one.
func (s *StatusAPI) StatusHandler(c *gin.Context) {
	dbState := "connected"
	if err := s.check(c.Request.Context()); err != nil {
		dbState = "disconnected"
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status:    "ok",
		Name:      s.name,
		Version:   s.version,
		Uptime:    s.now().Sub(s.startedAt).Truncate(time.Second).String(),
		Database:  dbState,
		Timestamp: s.now().UTC(),
	})
}

// TestHandler is a trivial liveness endpoint.
func (s *StatusAPI) TestHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Status test endpoint working"})
}

// RequireDatabase answers 503 for every /api route other than /api/status while
// the database cannot be pinged.
func (s *StatusAPI) RequireDatabase() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if !strings.HasPrefix(path, "/api") || strings.HasPrefix(path, "/api/status") {
			c.Next()
			return
		}

		if err := s.check(c.Request.Context()); err != nil {
			renderError(c, serrors.ErrServiceUnavailable)
			return
		}
		c.Next()
	}
}

// check reports the database state, reusing a result younger than pingCache.
// Concurrent callers share one ping. The ping is detached from ctx so an
// aborted request cannot record a failure for everyone else.
func (s *StatusAPI) check(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	if fresh, err := s.cached(); fresh {
		return err
	}

	res := s.pings.DoChan("ping", func() (any, error) {
		if fresh, err := s.cached(); fresh {
			return nil, err
		}
		return nil, s.ping(context.WithoutCancel(ctx))
	})
	select {
	case r := <-res:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *StatusAPI) cached() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkedAt.IsZero() || s.now().Sub(s.checkedAt) >= s.pingCache {
		return false, nil
	}
	return true, s.lastErr
}

func (s *StatusAPI) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	err := s.db.Ping(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil && s.lastErr == nil {
		log.Warn().Err(err).Msg("database unreachable")
	} else if err == nil && s.lastErr != nil {
		log.Info().Msg("database reachable again")
	}
	s.checkedAt = s.now()
	s.lastErr = err
	return err
}

// RootHandler answers GET /.
func RootHandler(c *gin.Context) {
	c.String(http.StatusOK, "shadow-auth API is running")
}
