package limiters

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCanRequestEmptyRecordAllowed(t *testing.T) {
	p := DefaultOTPPolicy()
	if d := p.CanRequest(&RateLimitRecord{}, t0); !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
	if d := p.CanRequest(nil, t0); !d.Allowed {
		t.Fatalf("expected nil record allowed, got %+v", d)
	}
}

func TestCooldown(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{}
	p.RecordRequest(rec, t0)

	d := p.CanRequest(rec, t0.Add(30*time.Second))
	if d.Allowed || d.Reason != DenyCooldown {
		t.Fatalf("expected cooldown denial, got %+v", d)
	}
	if !d.NextAllowedAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected next allowed: %v", d.NextAllowedAt)
	}
	if got := d.RetryAfter(t0.Add(30 * time.Second)); got != 30*time.Second {
		t.Fatalf("expected 30s retry, got %v", got)
	}

	if d := p.CanRequest(rec, t0.Add(time.Minute)); !d.Allowed {
		t.Fatalf("expected allowed once cooldown elapsed, got %+v", d)
	}
}

func TestSlidingWindowCap(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{}

	for i := 0; i < 3; i++ {
		at := t0.Add(time.Duration(i) * 2 * time.Minute)
		if d := p.CanRequest(rec, at); !d.Allowed {
			t.Fatalf("request %d unexpectedly denied: %+v", i+1, d)
		}
		p.RecordRequest(rec, at)
	}

	fourth := t0.Add(10 * time.Minute)
	d := p.CanRequest(rec, fourth)
	if d.Allowed || d.Reason != DenyWindow {
		t.Fatalf("expected window denial, got %+v", d)
	}
	if !d.NextAllowedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected window to free at t0+1h, got %v", d.NextAllowedAt)
	}

	if d := p.CanRequest(rec, t0.Add(time.Hour-time.Nanosecond)); d.Allowed {
		t.Fatal("expected still denied one tick before the window frees")
	}
	if d := p.CanRequest(rec, t0.Add(time.Hour)); !d.Allowed {
		t.Fatalf("expected allowed when oldest request leaves window, got %+v", d)
	}
}

func TestWindowDenialWinsOverShorterCooldown(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{}
	p.RecordRequest(rec, t0)
	p.RecordRequest(rec, t0.Add(time.Minute))
	p.RecordRequest(rec, t0.Add(2*time.Minute))

	d := p.CanRequest(rec, t0.Add(2*time.Minute+10*time.Second))
	if d.Reason != DenyWindow || !d.NextAllowedAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("expected later window deadline, got %+v", d)
	}
}

func TestRecordRequestPrunes(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{}
	p.RecordRequest(rec, t0)
	p.RecordRequest(rec, t0.Add(30*time.Minute))
	p.RecordRequest(rec, t0.Add(89*time.Minute))

	if len(rec.RequestTimes) != 2 {
		t.Fatalf("expected 2 timestamps after prune, got %d", len(rec.RequestTimes))
	}
	if !rec.LastRequestAt.Equal(t0.Add(89 * time.Minute)) {
		t.Fatalf("unexpected last request: %v", rec.LastRequestAt)
	}
}

func TestRecordRequestWithoutCapKeepsNoHistory(t *testing.T) {
	p := DefaultOTPPolicy()
	p.MaxRequestsPerWindow = 0
	p.Cooldown = 0
	rec := &RateLimitRecord{}

	for i := 0; i < MaxTrackedRequests+10; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		if d := p.CanRequest(rec, now); !d.Allowed {
			t.Fatalf("request %d denied: %+v", i, d)
		}
		p.RecordRequest(rec, now)
	}
	if len(rec.RequestTimes) != 0 {
		t.Fatalf("expected no request history without a cap, got %d", len(rec.RequestTimes))
	}
	if want := t0.Add(time.Duration(MaxTrackedRequests+9) * time.Second); !rec.LastRequestAt.Equal(want) {
		t.Fatalf("unexpected last request: %v", rec.LastRequestAt)
	}
}

func TestPruneWindowEdgeIsExclusive(t *testing.T) {
	p := DefaultOTPPolicy()

	tests := []struct {
		name string
		age  time.Duration
		kept int
	}{
		{name: "just inside", age: p.Window - time.Nanosecond, kept: 1},
		{name: "exactly one window old", age: p.Window, kept: 0},
		{name: "older", age: p.Window + time.Minute, kept: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &RateLimitRecord{RequestTimes: []time.Time{t0}}
			p.Prune(rec, t0.Add(tt.age))
			if len(rec.RequestTimes) != tt.kept {
				t.Fatalf("expected %d timestamps, got %d", tt.kept, len(rec.RequestTimes))
			}
		})
	}
}

func TestFailedAttemptsTriggerLockout(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{}

	for i := 1; i <= 2; i++ {
		locked, _ := p.RecordFailure(rec, t0)
		if locked {
			t.Fatalf("unexpected lockout after %d failures", i)
		}
		if got := p.RemainingAttempts(rec); got != 3-i {
			t.Fatalf("remaining after %d failures = %d", i, got)
		}
	}

	locked, until := p.RecordFailure(rec, t0.Add(3*time.Minute))
	if !locked {
		t.Fatal("expected lockout on third failure")
	}
	if !until.Equal(t0.Add(63 * time.Minute)) {
		t.Fatalf("unexpected lockout end: %v", until)
	}
	if rec.FailedCount != 0 {
		t.Fatalf("counter must reset when lockout triggers, got %d", rec.FailedCount)
	}
	if !p.Locked(rec, t0.Add(62*time.Minute)) {
		t.Fatal("expected locked before lockout end")
	}

	d := p.CanRequest(rec, t0.Add(10*time.Minute))
	if d.Allowed || !d.Locked || d.Reason != DenyLockout {
		t.Fatalf("expected lockout denial, got %+v", d)
	}
	if p.Locked(rec, until) {
		t.Fatal("lockout must end at LockoutUntil")
	}
}

func TestExpireClearsElapsedLockout(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{FailedCount: 2, LockoutUntil: t0}

	p.Expire(rec, t0.Add(-time.Second))
	if rec.LockoutUntil.IsZero() {
		t.Fatal("active lockout must survive Expire")
	}

	p.Expire(rec, t0)
	if !rec.LockoutUntil.IsZero() || rec.FailedCount != 0 {
		t.Fatalf("expected cleared record, got %+v", rec)
	}
}

func TestRecordSuccessClears(t *testing.T) {
	p := DefaultOTPPolicy()
	rec := &RateLimitRecord{FailedCount: 2, LockoutUntil: t0.Add(time.Hour)}
	p.RecordSuccess(rec)
	if rec.FailedCount != 0 || !rec.LockoutUntil.IsZero() {
		t.Fatalf("expected cleared record, got %+v", rec)
	}
}

func TestCloneIsDeep(t *testing.T) {
	rec := RateLimitRecord{RequestTimes: []time.Time{t0}}
	cp := rec.Clone()
	cp.RequestTimes[0] = t0.Add(time.Hour)
	if !rec.RequestTimes[0].Equal(t0) {
		t.Fatal("clone shares request times with original")
	}
}

func TestEmpty(t *testing.T) {
	var nilRec *RateLimitRecord
	if !nilRec.Empty() || !(&RateLimitRecord{}).Empty() {
		t.Fatal("expected empty records")
	}
	if (&RateLimitRecord{FailedCount: 1}).Empty() {
		t.Fatal("record with failures is not empty")
	}
}
