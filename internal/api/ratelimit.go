package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Per-IP token bucket rate limiter, stdlib only. Each IP gets its own bucket
// with a configurable capacity and refill rate; an empty bucket yields
// HTTP 429 with a Retry-After header. A background goroutine evicts buckets
// idle for more than cleanupIdleDuration.
//
// Unlike a flat per-request limiter, Take charges a variable number of
// tokens per call: demographic ingest can post an unbounded number of rows
// in one request, and each row that activates drives its own graph
// expansion and cursor rewrite, so a single bulk POST is far more expensive
// than a single-record operation or a query_records GET. endpointCost maps
// each route to its token weight.
const cleanupIdleDuration = 10 * time.Minute

// endpointCost weighs the POST routes that mint an audit batch by how much
// graph work they can trigger; any other POST and every GET query costs 1.
var endpointCost = map[string]float64{
	"demographic": 5,
}

type ipBucket struct {
	tokens   float64
	lastSeen time.Time
	mu       sync.Mutex
}

// RateLimiter holds per-IP state.
type RateLimiter struct {
	rate    float64 // tokens added per second
	burst   float64 // max bucket capacity
	mu      sync.Mutex
	buckets map[string]*ipBucket
}

// NewRateLimiter allows ratePerMin requests per minute per IP, with a burst
// capacity of burst requests.
func NewRateLimiter(ratePerMin, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:    float64(ratePerMin) / 60.0,
		burst:   float64(burst),
		buckets: make(map[string]*ipBucket),
	}
	go rl.cleanupLoop()
	return rl
}

// Take charges cost tokens from ip's bucket, refilling it for elapsed time
// first. cost must not exceed burst or the request can never succeed.
func (rl *RateLimiter) Take(ip string, cost float64) (bool, time.Duration) {
	rl.mu.Lock()
	bucket, ok := rl.buckets[ip]
	if !ok {
		bucket = &ipBucket{tokens: rl.burst}
		rl.buckets[ip] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.burst {
		bucket.tokens = rl.burst
	}
	bucket.lastSeen = now

	if bucket.tokens >= cost {
		bucket.tokens -= cost
		return true, 0
	}

	retryAfter := time.Duration((cost-bucket.tokens)/rl.rate*1000) * time.Millisecond
	return false, retryAfter
}

// Middleware enforces the rate limit as a Gin handler, charging each POST
// its endpointCost (default 1) and each GET 1 against the caller's IP bucket.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cost := 1.0
		if c.Request.Method == http.MethodPost {
			if weighted, ok := endpointCost[lastSegment(c.Request.URL.Path)]; ok {
				cost = weighted
			}
		}
		allowed, retryAfter := rl.Take(c.ClientIP(), cost)
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter.String(),
				"cost":       cost,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// lastSegment returns the final "/"-delimited component of a request path,
// matching the route names endpointCost is keyed by.
func lastSegment(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
