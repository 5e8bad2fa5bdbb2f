package provider

import (
	"encoding/json"

	"github.com/homefuse/homefuse/pkg/types"
)

// Attribute is one attribute node in a vendor status tree. Value is kept raw
// so a present-but-null value is distinguishable from an absent value field:
// a missing "value" key leaves Value nil, while a JSON null decodes to the
// literal bytes "null".
type Attribute struct {
	Value json.RawMessage `json:"value"`
	Unit  string          `json:"unit,omitempty"`
}

// ComponentStatus is one component of a vendor status tree, keyed by
// capability then attribute.
type ComponentStatus map[string]map[string]Attribute

// CapabilityProbe declares one capability to look for in a status tree.
// Attribute defaults to the capability name when empty, matching the common
// vendor convention (capability "switch" reports attribute "switch").
type CapabilityProbe struct {
	Capability string
	Attribute  string
}

// Normalize walks the probe table over a component's status tree and emits
// one Capability per probe whose attribute carries a value field. It is
// total: unknown capabilities, missing attributes, value-less attribute
// objects and null values never produce an error, only fewer or empty-valued
// capabilities. Output order is probe-table order.
func Normalize(component ComponentStatus, table []CapabilityProbe) []types.Capability {
	caps := make([]types.Capability, 0, len(table))
	for _, probe := range table {
		attrs, ok := component[probe.Capability]
		if !ok {
			continue
		}
		name := probe.Attribute
		if name == "" {
			name = probe.Capability
		}
		attr, ok := attrs[name]
		if !ok {
			continue
		}
		// an attribute object without a value field reports nothing
		if attr.Value == nil {
			continue
		}
		caps = append(caps, types.Capability{
			Name:  probe.Capability,
			Value: renderValue(attr.Value),
		})
	}
	return caps
}

// renderValue flattens a raw JSON attribute value to display text. Strings
// lose their quotes, null becomes empty, and everything else keeps its JSON
// text form.
func renderValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
