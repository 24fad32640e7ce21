package learning

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestSuggestAfterRecords(t *testing.T) {
	store := newTestStore(t)
	sig := "cargo build"

	for i := 0; i < 3; i++ {
		if err := store.Record(sig, OutcomeSuccess, 10*time.Second); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := store.Record(sig, OutcomeFailure, 2*time.Second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	sg, err := store.Suggest(sig)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if sg == nil {
		t.Fatal("expected a suggestion after 4 records")
	}

	if sg.SuccessRate != 0.75 {
		t.Errorf("success rate = %v, want 0.75", sg.SuccessRate)
	}
	if sg.MeanDuration != 8*time.Second {
		t.Errorf("mean duration = %v, want 8s", sg.MeanDuration)
	}
	if sg.TimeoutSeconds != 30 {
		// 3 * 8s = 24s, clamped up to the 30s floor.
		t.Errorf("timeout = %d, want 30", sg.TimeoutSeconds)
	}
}

func TestSuggestUnseenSignature(t *testing.T) {
	store := newTestStore(t)

	sg, err := store.Suggest("never ran")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if sg != nil {
		t.Errorf("expected nil suggestion for unseen signature, got %+v", sg)
	}
}

func TestSuggestedTimeoutScales(t *testing.T) {
	store := newTestStore(t)
	sig := "make test"

	if err := store.Record(sig, OutcomeSuccess, 100*time.Second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	sg, err := store.Suggest(sig)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if sg.TimeoutSeconds != 300 {
		t.Errorf("timeout = %d, want 300 (3x mean)", sg.TimeoutSeconds)
	}
}

func TestCachePaths(t *testing.T) {
	store := newTestStore(t)
	sig := "cargo build"

	if err := store.Record(sig, OutcomeSuccess, time.Second); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.RecordCachePaths(sig, []string{"target", "~/.cargo/registry", "target"}); err != nil {
		t.Fatalf("RecordCachePaths failed: %v", err)
	}

	sg, err := store.Suggest(sig)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}

	if len(sg.CachePaths) != 2 {
		t.Fatalf("cache paths = %v, want 2 deduplicated entries", sg.CachePaths)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)

	_ = store.Record("a b", OutcomeSuccess, time.Second)
	_ = store.Record("a b", OutcomeFailure, time.Second)
	_ = store.Record("c d", OutcomeSuccess, time.Second)

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}

	if stats.UniqueSignatures != 2 {
		t.Errorf("unique signatures = %d, want 2", stats.UniqueSignatures)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("total records = %d, want 3", stats.TotalRecords)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("total failures = %d, want 1", stats.TotalFailures)
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"cargo build --release", "cargo build"},
		{"cargo build", "cargo build"},
		{"npm install", "npm install"},
		{"ls -la", "ls"},
		{"echo 'hello world'", "echo hello world"},
		{"true", "true"},
		{`bad "quote`, "bad"},
	}

	for _, tt := range tests {
		if got := Signature(tt.command); got != tt.want {
			t.Errorf("Signature(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}
