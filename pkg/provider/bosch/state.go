package bosch

import (
	"encoding/json"
	"fmt"

	"github.com/homefuse/homefuse/pkg/types"
)

// flattenState turns a raw device state document into display capabilities.
// Only the well-known Bosch state fields are surfaced; anything else in the
// document is ignored. Output order is fixed regardless of document order.
func flattenState(state map[string]json.RawMessage) []types.Capability {
	caps := make([]types.Capability, 0, 6)

	if v, ok := numberField(state, "temperature"); ok {
		caps = append(caps, types.Capability{Name: "Temperature", Value: fmt.Sprintf("%.1f°C", v)})
	}
	if v, ok := numberField(state, "humidity"); ok {
		caps = append(caps, types.Capability{Name: "Humidity", Value: fmt.Sprintf("%.0f%%", v)})
	}
	if v, ok := numberField(state, "level"); ok {
		caps = append(caps, types.Capability{Name: "Level", Value: fmt.Sprintf("%.0f%%", v)})
	}
	if v, ok := boolField(state, "on"); ok {
		caps = append(caps, types.Capability{Name: "Power", Value: onOff(v, "On", "Off")})
	}
	if v, ok := stringField(state, "operationState"); ok {
		caps = append(caps, types.Capability{Name: "Operation State", Value: v})
	}
	if v, ok := boolField(state, "childProtection"); ok {
		caps = append(caps, types.Capability{Name: "Child Lock", Value: onOff(v, "Enabled", "Disabled")})
	}

	return caps
}

func onOff(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func numberField(state map[string]json.RawMessage, key string) (float64, bool) {
	raw, ok := state[key]
	if !ok {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func boolField(state map[string]json.RawMessage, key string) (bool, bool) {
	raw, ok := state[key]
	if !ok {
		return false, false
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, false
	}
	return v, true
}

func stringField(state map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := state[key]
	if !ok {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}
