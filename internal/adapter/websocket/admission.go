package websocket

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	admissionSweepInterval = 5 * time.Minute
	admissionIdleAfter     = 10 * time.Minute
)

// RejectReason says why an upgrade was refused before reaching the registry.
type RejectReason string

const (
	RejectPerIP RejectReason = "per_ip_limit"
	RejectRate  RejectReason = "rate_limit"
)

type AdmissionConfig struct {
	MaxPerIP   int
	RatePerIP  float64
	BurstPerIP int
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Admission caps concurrent sockets and the connect rate per client IP. The global cap
// lives in the registry.
type Admission struct {
	mu      sync.Mutex
	cfg     AdmissionConfig
	clock   clockwork.Clock
	open    map[string]int
	buckets map[string]*ipBucket
	sweepAt time.Time
}

func NewAdmission(cfg AdmissionConfig, clock clockwork.Clock) *Admission {
	return &Admission{
		cfg:     cfg,
		clock:   clock,
		open:    make(map[string]int),
		buckets: make(map[string]*ipBucket),
		sweepAt: clock.Now().Add(admissionSweepInterval),
	}
}

// Acquire takes a slot for ip. Every successful Acquire must be paired with Release.
func (a *Admission) Acquire(ip string) (bool, RejectReason) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if now.After(a.sweepAt) {
		a.sweep(now)
		a.sweepAt = now.Add(admissionSweepInterval)
	}

	bucket, ok := a.buckets[ip]
	if !ok {
		bucket = &ipBucket{limiter: rate.NewLimiter(rate.Limit(a.cfg.RatePerIP), a.cfg.BurstPerIP)}
		a.buckets[ip] = bucket
	}
	bucket.lastSeen = now
	if !bucket.limiter.AllowN(now, 1) {
		return false, RejectRate
	}

	if a.open[ip] >= a.cfg.MaxPerIP {
		return false, RejectPerIP
	}
	a.open[ip]++
	return true, ""
}

func (a *Admission) Release(ip string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if count := a.open[ip]; count > 1 {
		a.open[ip] = count - 1
	} else {
		delete(a.open, ip)
	}
}

// Open reports the live socket count for ip.
func (a *Admission) Open(ip string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open[ip]
}

// sweep drops idle rate buckets. Must be called with mu held.
func (a *Admission) sweep(now time.Time) {
	cutoff := now.Add(-admissionIdleAfter)
	for ip, b := range a.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(a.buckets, ip)
		}
	}
}
