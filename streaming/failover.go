package streaming

import (
	"errors"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Server is one candidate CDN/origin server in a FailoverManager.
type Server struct {
	URL      string
	Priority int // lower is preferred
	HTTPS    bool

	metrics ServerMetrics

	mu            sync.Mutex
	unavailableAt time.Time
	recencyAt     time.Time // last time a failure/recency bonus decay reference point was set
}

func NewServer(url string, priority int, https bool) *Server {
	return &Server{URL: url, Priority: priority, HTTPS: https}
}

func (s *Server) Metrics() *ServerMetrics { return &s.metrics }

func (s *Server) isAvailable(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.unavailableAt) || now.Equal(s.unavailableAt)
}

func (s *Server) setUnavailableUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailableAt = t
	s.recencyAt = time.Now()
}

// recencyBonus rewards servers that have gone a while without incident,
// capped at 20 and decaying toward zero right after a failure.
func (s *Server) recencyBonus(now time.Time) float64 {
	s.mu.Lock()
	last := s.recencyAt
	s.mu.Unlock()
	if last.IsZero() {
		return 20
	}
	age := now.Sub(last)
	const halfLife = 10 * time.Minute
	decay := math.Exp(-age.Seconds() / halfLife.Seconds())
	return 20 * (1 - decay)
}

// score is the weighted-random selection weight: priority, HTTPS, success
// rate, latency and bandwidth terms, discounted by 0.9^total_failure_weight
// so repeated failures shrink but never zero a server's chances.
func (s *Server) score(now time.Time) float64 {
	snap := s.metrics.Snapshot()

	score := 100.0
	score += 1000.0 / float64(s.Priority+1)
	if s.HTTPS {
		score += 10
	}
	score += 50 * snap.SuccessRate
	if latencyPenalty := snap.AvgResponseMS / 100; latencyPenalty > 50 {
		score -= 50
	} else {
		score -= latencyPenalty
	}
	if bwBonus := snap.BandwidthMbps / 10; bwBonus > 30 {
		score += 30
	} else {
		score += bwBonus
	}
	score += s.recencyBonus(now)

	score *= math.Pow(0.9, snap.TotalFailureWeight)
	if score < 0 {
		score = 0
	}
	return score
}

// FailureClass is the penalty applied for one failed request: how much
// weight it adds and how long the server sits out.
type FailureClass struct {
	Weight         float64
	Unavailability time.Duration
	RetryAfterHint bool
}

// classifyStatus returns the FailureClass for an HTTP response status.
func classifyStatus(status int) FailureClass {
	switch status {
	case 500, 502, 503, 504:
		return FailureClass{Weight: 5.0, Unavailability: 15 * time.Minute}
	case 401, 416:
		return FailureClass{Weight: 2.5, Unavailability: 5 * time.Minute}
	case 429:
		return FailureClass{Weight: 0.0, Unavailability: 60 * time.Second, RetryAfterHint: true}
	case 404:
		return FailureClass{Weight: 0.5, Unavailability: 0}
	case 200, 201, 202, 203, 204, 206:
		return FailureClass{Weight: 0.0, Unavailability: 0}
	default:
		if status >= 200 && status < 300 {
			return FailureClass{Weight: 0.0, Unavailability: 0}
		}
		if status >= 500 {
			return FailureClass{Weight: 1.0, Unavailability: 5 * time.Minute}
		}
		return FailureClass{Weight: 0.5, Unavailability: 5 * time.Minute}
	}
}

// classifyTransportError is the FailureClass for timeouts and network
// errors that never reached the server.
func classifyTransportError() FailureClass {
	return FailureClass{Weight: 1.0, Unavailability: 5 * time.Minute}
}

// FailoverManager selects among candidate Servers with weighted-random
// decaying-score selection. Servers are never permanently excluded: every
// failure only adds an unavailability window and a decaying score penalty.
type FailoverManager struct {
	mu      sync.RWMutex
	servers []*Server
}

func NewFailoverManager(servers ...*Server) *FailoverManager {
	return &FailoverManager{servers: servers}
}

func (f *FailoverManager) AddServer(s *Server) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers = append(f.servers, s)
}

// ErrNoServersAvailable is returned when every candidate's unavailability
// window is still open.
var ErrNoServersAvailable = errors.New("streaming: no servers available")

// Select picks a server among those whose unavailability window has
// expired, weighted by score (score_i / sum(score)).
func (f *FailoverManager) Select() (*Server, error) {
	f.mu.RLock()
	servers := append([]*Server(nil), f.servers...)
	f.mu.RUnlock()

	now := time.Now()
	var candidates []*Server
	var scores []float64
	var total float64
	for _, s := range servers {
		if !s.isAvailable(now) {
			continue
		}
		sc := s.score(now)
		candidates = append(candidates, s)
		scores = append(scores, sc)
		total += sc
	}
	if len(candidates) == 0 {
		return nil, ErrNoServersAvailable
	}
	if total <= 0 {
		return candidates[rand.Intn(len(candidates))], nil
	}

	pick := rand.Float64() * total
	var cumulative float64
	for i, sc := range scores {
		cumulative += sc
		if pick <= cumulative {
			return candidates[i], nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// MarkServerSucceeded records a successful request against s.
func (f *FailoverManager) MarkServerSucceeded(s *Server, responseTime time.Duration, bytes int64) {
	s.metrics.RecordSuccess(responseTime, bytes)
}

// MarkServerFailed classifies the failed response (nil for a transport
// failure), accumulates its weight, and opens the unavailability window,
// honoring Retry-After on a 429.
func (f *FailoverManager) MarkServerFailed(s *Server, resp *http.Response) {
	var class FailureClass
	if resp == nil {
		class = classifyTransportError()
	} else {
		class = classifyStatus(resp.StatusCode)
		if class.RetryAfterHint {
			if d, ok := retryAfterDuration(resp); ok {
				class.Unavailability = d
			}
		}
	}
	s.metrics.RecordFailure(class.Weight)
	if class.Unavailability > 0 {
		s.setUnavailableUntil(time.Now().Add(class.Unavailability))
	}
}

func retryAfterDuration(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if when, err := http.ParseTime(v); err == nil {
		return time.Until(when), true
	}
	return 0, false
}
