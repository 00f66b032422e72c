package tuning

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Settings holds one principal's runtime overrides. Zero-valued fields
// mean "no override": the process defaults stay in effect for them.
type Settings struct {
	// PrincipalID identifies the tenant the settings belong to.
	PrincipalID string `json:"principal_id"`

	// MaxConcurrentJobs overrides the queue-wide concurrency ceiling.
	MaxConcurrentJobs int `json:"max_concurrent_jobs,omitempty"`

	// PollInterval overrides how often the dispatcher polls.
	PollInterval time.Duration `json:"poll_interval,omitempty"`

	// DispatchRate is the maximum sustained claims per second for this
	// principal's jobs. Zero disables rate limiting.
	DispatchRate float64 `json:"dispatch_rate,omitempty"`

	// DispatchBurst is the burst size for the token-bucket limiter.
	// Defaults to 1 if DispatchRate is set but DispatchBurst is zero.
	DispatchBurst int `json:"dispatch_burst,omitempty"`
}

// principalState tracks runtime state for a single principal.
type principalState struct {
	settings Settings
	limiter  *rate.Limiter
}

// Manager resolves the queue's effective concurrency ceiling and poll
// interval from process defaults plus whichever principal settings were
// applied last, and enforces per-principal dispatch rate limits.
// It is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	defaultMax      int
	defaultInterval time.Duration

	max      int
	interval time.Duration

	principals map[string]*principalState
}

// NewManager creates a Manager with the given process defaults.
func NewManager(defaultMax int, defaultInterval time.Duration) *Manager {
	return &Manager{
		defaultMax:      defaultMax,
		defaultInterval: defaultInterval,
		max:             defaultMax,
		interval:        defaultInterval,
		principals:      make(map[string]*principalState),
	}
}

// Apply installs a principal's overrides. Zero fields fall back to the
// process defaults. The new values are picked up by the dispatcher on its
// next tick; already-running jobs are never drained.
func (m *Manager) Apply(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.MaxConcurrentJobs > 0 {
		m.max = s.MaxConcurrentJobs
	} else {
		m.max = m.defaultMax
	}

	if s.PollInterval > 0 {
		m.interval = s.PollInterval
	} else {
		m.interval = m.defaultInterval
	}

	if s.PrincipalID == "" {
		return
	}

	ps := &principalState{settings: s}
	if s.DispatchRate > 0 {
		burst := s.DispatchBurst
		if burst <= 0 {
			burst = 1
		}
		ps.limiter = rate.NewLimiter(rate.Limit(s.DispatchRate), burst)
	}
	m.principals[s.PrincipalID] = ps
}

// Snapshot returns the effective concurrency ceiling and poll interval.
func (m *Manager) Snapshot() (max int, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.max, m.interval
}

// Allow reports whether a job owned by the given principal may be claimed
// now. Principals without a configured rate limit are always allowed.
func (m *Manager) Allow(principalID string) bool {
	if principalID == "" {
		return true
	}

	m.mu.Lock()
	ps := m.principals[principalID]
	m.mu.Unlock()

	if ps == nil || ps.limiter == nil {
		return true
	}
	return ps.limiter.Allow()
}

// PrincipalSettings returns the last settings applied for a principal.
// The second result is false when none were applied.
func (m *Manager) PrincipalSettings(principalID string) (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.principals[principalID]
	if !ok {
		return Settings{}, false
	}
	return ps.settings, true
}
