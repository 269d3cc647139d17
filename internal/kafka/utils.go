package kafka

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ntentasd/ecobin-api/pkg/types"
)

// isManagedTopic matches "<prefix>" and "<prefix>_<device id>".
func isManagedTopic(topic, prefix string) bool {
	if strings.HasPrefix(topic, "__") {
		return false
	}
	return topic == prefix || strings.HasPrefix(topic, prefix+"_")
}

// deviceFromTopic returns the device id encoded in a per-device topic name.
func deviceFromTopic(topic, prefix string) string {
	id, ok := strings.CutPrefix(topic, prefix+"_")
	if !ok {
		return ""
	}
	return id
}

// managedTopics filters and sorts the topics this service should consume.
func managedTopics(all []string, prefix string) []string {
	var out []string
	for _, topic := range all {
		if isManagedTopic(topic, prefix) {
			out = append(out, topic)
		}
	}
	slices.Sort(out)
	return out
}

func decodeEvent(topic, prefix string, payload []byte) (types.SensorEvent, error) {
	var ev types.SensorEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode event: %w", err)
	}

	typ, err := types.ToEventType(string(ev.Type))
	if err != nil {
		return ev, fmt.Errorf("%w: %q", err, ev.Type)
	}
	ev.Type = typ

	ev.DeviceID = types.CanonicalDeviceID(ev.DeviceID)
	if ev.DeviceID == "" {
		ev.DeviceID = types.CanonicalDeviceID(deviceFromTopic(topic, prefix))
	}
	if ev.DeviceID == "" {
		return ev, fmt.Errorf("event on %s has no device_id", topic)
	}
	if ev.Timestamp.IsZero() {
		return ev, fmt.Errorf("event on %s has no timestamp", topic)
	}

	if ev.EventID == "" {
		seed := ev.DeviceID + "|" + string(ev.Type) + "|" + strconv.FormatInt(ev.Timestamp.UnixNano(), 10)
		ev.EventID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
	}

	return ev, nil
}
