package token

import (
	"sync"
	"testing"
	"time"
)

func TestIssueReturnsUnguessableValue(t *testing.T) {
	s := NewStore(Config{})

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// UUIDv4 string form is 36 characters.
	if len(tok.Value) != 36 {
		t.Errorf("expected 36-char token value, got %d", len(tok.Value))
	}
	if tok.ExpiresAt.IsZero() {
		t.Error("expected non-zero expiry")
	}
	if !s.IsValid(tok.Value) {
		t.Error("freshly issued token should be valid")
	}
}

func TestValidateAndConsumeIsSingleUse(t *testing.T) {
	s := NewStore(Config{})

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if !s.ValidateAndConsume(tok.Value) {
		t.Fatal("first redemption should succeed")
	}
	if s.ValidateAndConsume(tok.Value) {
		t.Error("second redemption should fail")
	}
	if s.IsValid(tok.Value) {
		t.Error("consumed token should not be valid")
	}
}

// TestConcurrentRedemption verifies the single-use property under races:
// with N concurrent callers, exactly one ValidateAndConsume returns true.
func TestConcurrentRedemption(t *testing.T) {
	s := NewStore(Config{})

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if s.ValidateAndConsume(tok.Value) {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly 1 successful redemption, got %d", successes)
	}
}

func TestExpiredTokenFailsValidation(t *testing.T) {
	currentTime := time.Now()
	s := NewStore(Config{
		Lifetime: time.Second,
		TimeNow: func() time.Time {
			return currentTime
		},
	})

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Advance the clock past expiry.
	currentTime = currentTime.Add(2 * time.Second)

	if s.IsValid(tok.Value) {
		t.Error("expired token should not be valid")
	}
	if s.ValidateAndConsume(tok.Value) {
		t.Error("expired token should not be redeemable")
	}
}

func TestUnknownTokenFailsSilently(t *testing.T) {
	s := NewStore(Config{})

	if s.ValidateAndConsume("not-a-token") {
		t.Error("unknown token should fail validation")
	}
	if s.IsValid("") {
		t.Error("empty token should fail validation")
	}
}

func TestInvalidate(t *testing.T) {
	s := NewStore(Config{})

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	s.Invalidate(tok.Value)

	if s.ValidateAndConsume(tok.Value) {
		t.Error("invalidated token should not be redeemable")
	}

	// Invalidating again is a no-op.
	s.Invalidate(tok.Value)
}

func TestInvalidateAll(t *testing.T) {
	s := NewStore(Config{})

	first, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	second, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	s.InvalidateAll()

	if s.ValidateAndConsume(first.Value) || s.ValidateAndConsume(second.Value) {
		t.Error("no token should survive InvalidateAll")
	}
	if s.HasActive() {
		t.Error("HasActive should be false after InvalidateAll")
	}
}

func TestHasActive(t *testing.T) {
	currentTime := time.Now()
	s := NewStore(Config{
		Lifetime: time.Second,
		TimeNow: func() time.Time {
			return currentTime
		},
	})

	if s.HasActive() {
		t.Error("new store should have no active token")
	}

	tok, err := s.Issue()
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !s.HasActive() {
		t.Error("expected active token after Issue")
	}

	// Consumption clears the active flag.
	if !s.ValidateAndConsume(tok.Value) {
		t.Fatal("redemption should succeed")
	}
	if s.HasActive() {
		t.Error("consumed token should not count as active")
	}
}

func TestIssuePurgesExpiredEntries(t *testing.T) {
	currentTime := time.Now()
	s := NewStore(Config{
		Lifetime: time.Second,
		TimeNow: func() time.Time {
			return currentTime
		},
	})

	if _, err := s.Issue(); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	currentTime = currentTime.Add(5 * time.Second)

	// The next Issue opportunistically purges the expired entry.
	if _, err := s.Issue(); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	s.mu.Lock()
	remaining := len(s.entries)
	s.mu.Unlock()
	if remaining != 1 {
		t.Errorf("expected 1 entry after purge, got %d", remaining)
	}
}
