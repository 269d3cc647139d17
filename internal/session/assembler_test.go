package session

import (
	"testing"
	"time"

	"github.com/ntentasd/ecobin-api/pkg/types"
)

func weight(v float64) *float64 { return &v }

func event(id, device string, typ types.EventType, at time.Time, w *float64) types.SensorEvent {
	return types.SensorEvent{EventID: id, DeviceID: device, Type: typ, Timestamp: at, Weight: w}
}

func TestAssembleFullCycle(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	events := []types.SensorEvent{
		event("c", "dev-1", types.EventProcessingCompleted, t0.Add(8*time.Minute), nil),
		event("a", "dev-1", types.EventFoodInputBefore, t0, weight(100)),
		event("b", "dev-1", types.EventFoodInputAfter, t0.Add(time.Minute), weight(350)),
	}

	sessions := Assemble(events)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	s := sessions[0]
	if s.SessionID != "a" {
		t.Fatalf("session id = %q, want %q", s.SessionID, "a")
	}
	if s.Status != types.SessionCompleted {
		t.Fatalf("status = %s, want completed", s.Status)
	}
	if !s.StartedAt.Equal(t0) {
		t.Fatalf("started_at = %v, want %v", s.StartedAt, t0)
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(t0.Add(8*time.Minute)) {
		t.Fatalf("unexpected ended_at: %v", s.EndedAt)
	}
	if s.WeightChange == nil || s.WeightChange.Diff == nil || *s.WeightChange.Diff != 250 {
		t.Fatalf("unexpected weight change: %+v", s.WeightChange)
	}
	if s.BeforeEvent == nil || s.AfterEvent == nil || s.ProcessingCompletedEvent == nil {
		t.Fatalf("expected all three events attached: %+v", s)
	}
}

func TestAssembleInProgress(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	sessions := Assemble([]types.SensorEvent{
		event("a", "dev-1", types.EventFoodInputBefore, t0, nil),
	})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Status != types.SessionInProgress {
		t.Fatalf("status = %s, want in_progress", sessions[0].Status)
	}
	if sessions[0].WeightChange != nil {
		t.Fatalf("expected no weight change, got %+v", sessions[0].WeightChange)
	}
}

func TestAssembleIgnoresOrphans(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	sessions := Assemble([]types.SensorEvent{
		event("x", "dev-1", types.EventFoodInputAfter, t0, weight(10)),
		event("y", "dev-1", types.EventProcessingCompleted, t0.Add(time.Minute), nil),
	})
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestAssembleDoesNotMutateClosedSession(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	sessions := Assemble([]types.SensorEvent{
		event("a", "dev-1", types.EventFoodInputBefore, t0, nil),
		event("b", "dev-1", types.EventProcessingCompleted, t0.Add(time.Minute), nil),
		event("c", "dev-1", types.EventFoodInputAfter, t0.Add(2*time.Minute), weight(5)),
	})
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].AfterEvent != nil {
		t.Fatal("closed session received a late after event")
	}
}

func TestAssembleSeparatesDevicesAndRestarts(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	sessions := Assemble([]types.SensorEvent{
		event("a1", "dev-1", types.EventFoodInputBefore, t0, nil),
		event("b1", "dev-2", types.EventFoodInputBefore, t0.Add(time.Second), nil),
		event("a2", "dev-1", types.EventFoodInputBefore, t0.Add(time.Minute), nil),
		event("a3", "dev-1", types.EventFoodInputAfter, t0.Add(2*time.Minute), nil),
	})
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}

	if sessions[0].Status != types.SessionInProgress {
		t.Fatalf("superseded session should be untouched, got %s", sessions[0].Status)
	}

	cur := Current(sessions, "dev-1")
	if cur == nil || cur.SessionID != "a2" {
		t.Fatalf("unexpected current session: %+v", cur)
	}
	if cur.Status != types.SessionCompleted {
		t.Fatalf("current status = %s, want completed", cur.Status)
	}

	if Current(sessions, "dev-3") != nil {
		t.Fatal("expected nil for unknown device")
	}
}

func TestAssembleDerivesSessionID(t *testing.T) {
	t0 := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	ev := event("", "dev-1", types.EventFoodInputBefore, t0, nil)

	a := Assemble([]types.SensorEvent{ev})
	b := Assemble([]types.SensorEvent{ev})
	if a[0].SessionID == "" || a[0].SessionID != b[0].SessionID {
		t.Fatalf("expected stable derived id, got %q and %q", a[0].SessionID, b[0].SessionID)
	}
}
