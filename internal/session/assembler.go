// Package session groups device events into food input sessions.
package session

import (
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

// Assemble replays events in timestamp order and returns the sessions they
// describe, oldest first.
//
// A food_input_before event opens a session. food_input_after marks it
// completed and records the weight change; processing_completed closes it.
// A new food_input_before on a device leaves its previous session as it was.
// Events that do not belong to an open session are dropped.
func Assemble(events []types.SensorEvent) []types.FoodInputSession {
	sorted := make([]types.SensorEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var sessions []types.FoodInputSession
	open := make(map[string]int)

	for i := range sorted {
		ev := sorted[i]

		switch ev.Type {
		case types.EventFoodInputBefore:
			s := types.FoodInputSession{
				SessionID:   sessionID(ev),
				DeviceID:    ev.DeviceID,
				StartedAt:   ev.Timestamp,
				BeforeEvent: &ev,
				Status:      types.SessionInProgress,
			}
			if ev.Weight != nil {
				before := *ev.Weight
				s.WeightChange = &types.WeightChange{Before: &before}
			}
			sessions = append(sessions, s)
			open[ev.DeviceID] = len(sessions) - 1

		case types.EventFoodInputAfter:
			idx, ok := open[ev.DeviceID]
			if !ok || sessions[idx].AfterEvent != nil {
				continue
			}
			s := &sessions[idx]
			s.AfterEvent = &ev
			s.Status = types.SessionCompleted
			applyAfterWeight(s, ev)

		case types.EventProcessingCompleted:
			idx, ok := open[ev.DeviceID]
			if !ok {
				continue
			}
			s := &sessions[idx]
			s.ProcessingCompletedEvent = &ev
			s.Status = types.SessionCompleted
			ended := ev.Timestamp
			s.EndedAt = &ended
			delete(open, ev.DeviceID)
		}
	}

	return sessions
}

func applyAfterWeight(s *types.FoodInputSession, ev types.SensorEvent) {
	if ev.Weight == nil {
		return
	}
	if s.WeightChange == nil {
		s.WeightChange = &types.WeightChange{}
	}
	after := *ev.Weight
	s.WeightChange.After = &after
	if s.WeightChange.Before != nil {
		diff := after - *s.WeightChange.Before
		s.WeightChange.Diff = &diff
	}
}

// Current returns the most recently started session of a device, or nil.
func Current(sessions []types.FoodInputSession, deviceID string) *types.FoodInputSession {
	var cur *types.FoodInputSession
	for i := range sessions {
		s := &sessions[i]
		if s.DeviceID != deviceID {
			continue
		}
		if cur == nil || !s.StartedAt.Before(cur.StartedAt) {
			cur = s
		}
	}
	return cur
}

func sessionID(ev types.SensorEvent) string {
	if ev.EventID != "" {
		return ev.EventID
	}
	name := ev.DeviceID + "|" + strconv.FormatInt(ev.Timestamp.UnixNano(), 10)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
