package events

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ntentasd/ecobin-api/internal/cache"
	"github.com/ntentasd/ecobin-api/internal/retry"
	"github.com/ntentasd/ecobin-api/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu        sync.Mutex
	events    []types.SensorEvent
	scores    map[string]float64
	failTimes int
}

func (s *fakeStore) InsertEvent(_ context.Context, ev types.SensorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTimes > 0 {
		s.failTimes--
		return errors.New("unavailable")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeStore) StoreEcoScore(_ context.Context, deviceID string, score float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores == nil {
		s.scores = make(map[string]float64)
	}
	s.scores[deviceID] = score
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (n *fakeNotifier) NotifyInvalidation(deviceID string, keys []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = make(map[string][]string)
	}
	n.calls[deviceID] = append(n.calls[deviceID], keys...)
}

var fastPolicy = retry.Policy{
	MaxTries:        3,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
}

func newTestHandler(t *testing.T, store *fakeStore) (*Handler, *miniredis.Miniredis, *fakeNotifier) {
	t.Helper()
	mr := miniredis.RunT(t)
	v := cache.NewValkeyWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(v.Close)
	n := &fakeNotifier{}
	return NewHandler(store, v, v, n, fastPolicy, zerolog.Nop()), mr, n
}

func TestInvalidationKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  types.EventType
		want []string
	}{
		{types.EventFoodInputBefore, []string{"sessions:dev-1"}},
		{types.EventFoodInputAfter, []string{"sessions:dev-1", "latest:dev-1", "health:dev-1"}},
		{types.EventProcessingCompleted, []string{"sessions:dev-1", "eco:dev-1"}},
		{types.EventType("unknown"), nil},
	}

	for _, tc := range tests {
		t.Run(string(tc.typ), func(t *testing.T) {
			t.Parallel()
			got := InvalidationKeys(types.SensorEvent{DeviceID: " DEV-1 ", Type: tc.typ})
			if !slices.Equal(got, tc.want) {
				t.Fatalf("InvalidationKeys = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHandleEventInvalidatesAndNotifies(t *testing.T) {
	store := &fakeStore{failTimes: 1}
	h, mr, n := newTestHandler(t, store)

	for _, k := range []string{"sessions:dev-1", "latest:dev-1", "health:dev-1", "eco:dev-1"} {
		mr.Set(k, "{}")
	}

	ev := types.SensorEvent{
		EventID:   "e1",
		DeviceID:  "dev-1",
		Type:      types.EventFoodInputAfter,
		Timestamp: time.Now(),
	}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("expected event persisted after a retry, got %d", len(store.events))
	}
	for _, k := range []string{"sessions:dev-1", "latest:dev-1", "health:dev-1"} {
		if mr.Exists(k) {
			t.Fatalf("%s should have been invalidated", k)
		}
	}
	if !mr.Exists("eco:dev-1") {
		t.Fatal("eco key must survive a food_input_after event")
	}
	if got := n.calls["dev-1"]; len(got) != 3 {
		t.Fatalf("notifier got %v", got)
	}
}

func TestHandleEventCanonicalisesDevice(t *testing.T) {
	store := &fakeStore{}
	h, mr, n := newTestHandler(t, store)
	mr.Set("sessions:dev-a", "{}")

	err := h.HandleEvent(context.Background(), types.SensorEvent{
		EventID:   "e2",
		DeviceID:  " Dev-A ",
		Type:      types.EventFoodInputBefore,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(store.events) != 1 || store.events[0].DeviceID != "dev-a" {
		t.Fatalf("stored events = %+v", store.events)
	}
	if mr.Exists("sessions:dev-a") {
		t.Fatal("sessions:dev-a should have been invalidated")
	}
	if _, ok := n.calls["dev-a"]; !ok {
		t.Fatalf("notifier got %v", n.calls)
	}

	if err := h.HandleEvent(context.Background(), types.SensorEvent{EventID: "e3", DeviceID: "  "}); err == nil {
		t.Fatal("expected error for a blank device")
	}
}

func TestHandleEventPersistFailure(t *testing.T) {
	store := &fakeStore{failTimes: 10}
	h, mr, n := newTestHandler(t, store)
	mr.Set("sessions:dev-1", "{}")

	err := h.HandleEvent(context.Background(), types.SensorEvent{
		EventID:  "e1",
		DeviceID: "dev-1",
		Type:     types.EventFoodInputBefore,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !mr.Exists("sessions:dev-1") {
		t.Fatal("nothing must be invalidated when the event was not stored")
	}
	if len(n.calls) != 0 {
		t.Fatalf("unexpected notifications %v", n.calls)
	}
}

func TestRecordEcoScore(t *testing.T) {
	store := &fakeStore{}
	h, mr, n := newTestHandler(t, store)
	ctx := context.Background()
	mr.Set("eco:dev-1", "{}")

	if err := h.RecordEcoScore(ctx, "dev-1", 72.5); err != nil {
		t.Fatalf("RecordEcoScore: %v", err)
	}
	if err := h.RecordEcoScore(ctx, "dev-2", 91); err != nil {
		t.Fatalf("RecordEcoScore: %v", err)
	}

	if store.scores["dev-1"] != 72.5 {
		t.Fatalf("stored score = %v", store.scores["dev-1"])
	}
	if mr.Exists("eco:dev-1") {
		t.Fatal("eco key should be invalidated")
	}
	if got := n.calls["dev-1"]; !slices.Equal(got, []string{"eco:dev-1"}) {
		t.Fatalf("notifier got %v", got)
	}

	top, err := h.ranker.TopEcoScores(ctx, 10)
	if err != nil {
		t.Fatalf("TopEcoScores: %v", err)
	}
	if len(top) != 2 || top[0].DeviceID != "dev-2" || top[0].Rank != 1 {
		t.Fatalf("unexpected ranking %+v", top)
	}
}

func TestRecordEcoScoreRejectsInvalid(t *testing.T) {
	h, _, _ := newTestHandler(t, &fakeStore{})

	tests := []struct {
		name   string
		device string
		score  float64
	}{
		{"empty device", "  ", 50},
		{"nan", "dev-1", math.NaN()},
		{"inf", "dev-1", math.Inf(1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.RecordEcoScore(context.Background(), tc.device, tc.score)
			if !errors.Is(err, ErrInvalidScore) {
				t.Fatalf("err = %v, want ErrInvalidScore", err)
			}
		})
	}
}

