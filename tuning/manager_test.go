package tuning_test

import (
	"testing"
	"time"

	"github.com/jobmill/jobmill/tuning"
)

func TestManager_Defaults(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	max, interval := m.Snapshot()
	if max != 20 {
		t.Errorf("max = %d, want 20", max)
	}
	if interval != 100*time.Millisecond {
		t.Errorf("interval = %v, want 100ms", interval)
	}
}

func TestManager_ApplyOverrides(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	m.Apply(tuning.Settings{
		PrincipalID:       "user-1",
		MaxConcurrentJobs: 50,
		PollInterval:      250 * time.Millisecond,
	})

	max, interval := m.Snapshot()
	if max != 50 {
		t.Errorf("max = %d, want 50", max)
	}
	if interval != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", interval)
	}
}

func TestManager_ZeroFieldsFallBack(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	m.Apply(tuning.Settings{PrincipalID: "user-1", MaxConcurrentJobs: 5})
	m.Apply(tuning.Settings{PrincipalID: "user-1"})

	max, interval := m.Snapshot()
	if max != 20 {
		t.Errorf("max = %d, want default 20 after empty override", max)
	}
	if interval != 100*time.Millisecond {
		t.Errorf("interval = %v, want default 100ms", interval)
	}
}

func TestManager_AllowWithoutLimit(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	if !m.Allow("unknown-principal") {
		t.Error("principal without settings should always be allowed")
	}
	if !m.Allow("") {
		t.Error("empty principal should always be allowed")
	}
}

func TestManager_RateLimit(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	// 1 claim/s with burst 2: the first two pass, the third is limited.
	m.Apply(tuning.Settings{
		PrincipalID:   "limited",
		DispatchRate:  1,
		DispatchBurst: 2,
	})

	if !m.Allow("limited") {
		t.Error("first claim should be allowed")
	}
	if !m.Allow("limited") {
		t.Error("second claim should be allowed (burst)")
	}
	if m.Allow("limited") {
		t.Error("third claim should be rate limited")
	}

	// Other principals are unaffected.
	if !m.Allow("other") {
		t.Error("other principal should not be limited")
	}
}

func TestManager_PrincipalSettings(t *testing.T) {
	m := tuning.NewManager(20, 100*time.Millisecond)

	if _, ok := m.PrincipalSettings("user-1"); ok {
		t.Error("expected no settings before Apply")
	}

	m.Apply(tuning.Settings{PrincipalID: "user-1", MaxConcurrentJobs: 3})

	s, ok := m.PrincipalSettings("user-1")
	if !ok {
		t.Fatal("expected settings after Apply")
	}
	if s.MaxConcurrentJobs != 3 {
		t.Errorf("MaxConcurrentJobs = %d, want 3", s.MaxConcurrentJobs)
	}
}
