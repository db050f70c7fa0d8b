// Package httpapi is the external collaborator: HTTP routing, argument
// validation, and DTO<->domain mapping. No ranking logic lives here —
// every handler below either rejects a malformed request or forwards a
// validated call straight to a leaderboard.Index.
package httpapi

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"leaderboard/internal/leaderboard"
)

// Server wires the ranked index to gin, with a small TTL'd cache in front
// of the hot ranksByRange path. Postgres and Redis are both optional
// (nil-able): the process runs in a degraded mode when either is
// unreachable at startup, logging a warning rather than refusing to
// serve.
type Server struct {
	idx leaderboard.Index
	pg  *pgxpool.Pool
	rdb *redis.Client
	log *logrus.Entry

	// rangeCache holds recently-computed leaderboard pages, keyed by
	// "version:start:end". version is bumped on every Update so stale
	// entries are never served after a write.
	rangeCache *ristretto.Cache[string, []rankedEntryDTO]
	version    atomic.Int64
}

// NewServer constructs a Server. pg and rdb may be nil.
func NewServer(idx leaderboard.Index, pg *pgxpool.Pool, rdb *redis.Client, log *logrus.Entry) (*Server, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []rankedEntryDTO]{
		NumCounters: 10_000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		idx:        idx,
		pg:         pg,
		rdb:        rdb,
		log:        log,
		rangeCache: cache,
	}, nil
}

// Engine builds the gin router: permissive CORS middleware, a
// fatal-on-panic recovery handler (a corrupted ranked index aborts the
// process rather than keep serving), and the routes themselves.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(s.recoverFatal())
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/ping", s.handlePing)
	r.GET("/healthz", s.handleHealth)
	r.POST("/customer/:customerid/score/:score", s.handleUpdate)
	r.GET("/customer/:customerid", s.handleGetCustomer)
	r.GET("/leaderboard", s.handleRange)
	r.GET("/leaderboard/:customerid", s.handleWindow)

	return r
}

// recoverFatal logs and then terminates the process on panic. The ranked
// index has no recoverable error paths: if one of its invariants has
// been violated, continuing to serve traffic against a corrupted index
// is worse than a clean restart.
func (s *Server) recoverFatal() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.WithField("panic", r).WithField("path", c.Request.URL.Path).
					Fatal("unrecoverable error serving request, aborting process")
			}
		}()
		c.Next()
	}
}

func (s *Server) invalidateRangeCache() {
	s.version.Add(1)
	s.rangeCache.Clear()
}

func ctxWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}
