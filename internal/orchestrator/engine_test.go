package orchestrator

import (
	"testing"
	"time"
)

// computeBackoff must be read against the *pre-increment* retry count
// (spec.md §4.7: delayMs = 5000*2^retryCount), so the first failure
// (attempt=0) backs off ~5s and the second (attempt=1) ~10s, per §5.
func TestComputeBackoff_FirstAttemptIsFiveSeconds(t *testing.T) {
	d := computeBackoff(0)
	if d < 4*time.Second || d > 6*time.Second {
		t.Fatalf("expected ~5s +/-20%%, got %v", d)
	}
}

func TestComputeBackoff_SecondAttemptIsTenSeconds(t *testing.T) {
	d := computeBackoff(1)
	if d < 8*time.Second || d > 12*time.Second {
		t.Fatalf("expected ~10s +/-20%%, got %v", d)
	}
}
