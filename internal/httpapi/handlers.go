package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"leaderboard/internal/leaderboard"
	"leaderboard/internal/store"
)

// rangeCacheTTL bounds how long a cached ranksByRange page can survive
// without a write invalidating it — a safety net in case the version
// counter and an SnapshotIndex's own staleness window interact in a way
// that would otherwise serve a page forever.
const rangeCacheTTL = 2 * time.Second

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := ctxWithTimeout()
	defer cancel()

	health := healthDTO{}
	if s.pg != nil {
		health.Postgres = s.pg.Ping(ctx) == nil
	}
	if s.rdb != nil {
		health.Redis = s.rdb.Ping(ctx).Err() == nil
	}
	c.JSON(http.StatusOK, health)
}

// handleUpdate implements POST /customer/{customerid}/score/{score}.
// customerid must be positive; the score delta must be in [-1000, 1000].
// Validation happens entirely here; the core never sees a malformed call.
func (s *Server) handleUpdate(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("customerid"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerid must be a positive integer"})
		return
	}

	delta, err := strconv.ParseInt(c.Param("score"), 10, 64)
	if err != nil || delta < -1000 || delta > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "score delta must be an integer in [-1000, 1000]"})
		return
	}

	newScore := s.idx.Update(customerID, delta)
	s.invalidateRangeCache()

	if s.pg != nil {
		ctx, cancel := ctxWithTimeout()
		if err := store.UpsertScore(ctx, s.pg, customerID, newScore); err != nil {
			s.log.WithError(err).Warn("failed to persist customer score")
		}
		cancel()
	}
	if s.rdb != nil {
		ctx, cancel := ctxWithTimeout()
		if err := store.PublishScoreUpdate(ctx, s.rdb, customerID, newScore); err != nil {
			s.log.WithError(err).Warn("failed to publish score update")
		}
		cancel()
	}

	c.String(http.StatusOK, "%d", newScore)
}

// handleRange implements GET /leaderboard?start=S&end=E.
func (s *Server) handleRange(c *gin.Context) {
	start, err1 := strconv.ParseInt(c.Query("start"), 10, 64)
	end, err2 := strconv.ParseInt(c.Query("end"), 10, 64)
	if err1 != nil || err2 != nil || start < 1 || end < 1 || start > end {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must satisfy 1 <= start <= end"})
		return
	}

	cacheKey := fmt.Sprintf("%d:%d:%d", s.version.Load(), start, end)
	if cached, ok := s.rangeCache.Get(cacheKey); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	entries := s.idx.RanksByRange(start, end)
	dto := toDTOs(entries)
	s.rangeCache.SetWithTTL(cacheKey, dto, int64(len(dto)+1), rangeCacheTTL)
	c.JSON(http.StatusOK, dto)
}

// handleWindow implements GET /leaderboard/{customerid}?high=H&low=L.
func (s *Server) handleWindow(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("customerid"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerid must be a positive integer"})
		return
	}

	high, err1 := parseNonNegativeDefault(c.Query("high"), 0)
	low, err2 := parseNonNegativeDefault(c.Query("low"), 0)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "high and low must be non-negative integers"})
		return
	}

	entries := s.idx.RanksByCustomer(customerID, high, low)
	c.JSON(http.StatusOK, toDTOs(entries))
}

// handleGetCustomer implements GET /customer/{customerid}: the customer's
// current score and rank. Responds 404 when the customer is unknown or
// not ranked (score <= 0).
func (s *Server) handleGetCustomer(c *gin.Context) {
	customerID, err := strconv.ParseInt(c.Param("customerid"), 10, 64)
	if err != nil || customerID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerid must be a positive integer"})
		return
	}

	entries := s.idx.RanksByCustomer(customerID, 0, 0)
	if len(entries) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found or unranked"})
		return
	}
	e := entries[0]
	c.JSON(http.StatusOK, customerDTO{CustomerID: e.CustomerID, Score: e.Score, Rank: e.Rank})
}

func toDTOs(entries []leaderboard.RankedEntry) []rankedEntryDTO {
	dto := make([]rankedEntryDTO, len(entries))
	for i, e := range entries {
		dto[i] = rankedEntryDTO{CustomerID: e.CustomerID, Score: e.Score, Rank: e.Rank}
	}
	return dto
}

func parseNonNegativeDefault(s string, fallback int64) (int64, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid non-negative integer: %q", s)
	}
	return v, nil
}
