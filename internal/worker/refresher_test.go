package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var errIdle = errors.New("idle")

type fakeSource struct {
	mu      sync.Mutex
	devices []string
	errs    map[string]error
	calls   map[string]int
}

func (f *fakeSource) Devices() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.devices...)
}

func (f *fakeSource) Refresh(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id]++
	return f.errs[id]
}

func (f *fakeSource) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func TestRefreshAll(t *testing.T) {
	src := &fakeSource{
		devices: []string{"a", "b", "c"},
		errs: map[string]error{
			"b": errIdle,
			"c": errors.New("scylla down"),
		},
	}
	r := NewRefresher(src, time.Second, zerolog.Nop())
	r.Ignore = func(err error) bool { return errors.Is(err, errIdle) }

	if failed := r.refreshAll(context.Background()); failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	for _, id := range src.devices {
		if src.count(id) != 1 {
			t.Fatalf("device %s refreshed %d times", id, src.count(id))
		}
	}
}

func TestRefresherTicksUntilStopped(t *testing.T) {
	src := &fakeSource{devices: []string{"a"}}
	r := NewRefresher(src, 10*time.Millisecond, zerolog.Nop())
	r.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for src.count("a") < 2 {
		if time.Now().After(deadline) {
			r.Stop()
			t.Fatal("refresher did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Stop()
	after := src.count("a")
	time.Sleep(50 * time.Millisecond)
	if src.count("a") != after {
		t.Fatal("refresher kept running after Stop")
	}
}
