package types

// Capability is one flattened status attribute of a device, e.g. switch state
// or measured temperature. A capability is only present in a record when the
// source attribute existed on the vendor side; absence means "unknown", never
// zero or false.
type Capability struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DeviceRecord is the normalized device shape returned by the aggregate API.
// Records are constructed fresh on every aggregation call and are immutable
// once returned. Source tags which provider contributed the record; the same
// physical device visible to two providers yields two records.
type DeviceRecord struct {
	DeviceID       string       `json:"deviceId"`
	Name           string       `json:"name"`
	Label          string       `json:"label"`
	DeviceTypeName string       `json:"deviceTypeName"`
	Capabilities   []Capability `json:"capabilities"`
	Source         string       `json:"source"`
	Manufacturer   string       `json:"manufacturer"`
}

// CommandRequest is the body of a device command dispatch.
type CommandRequest struct {
	Capability string `json:"capability"`
	Command    string `json:"command"`
	Arguments  []any  `json:"arguments,omitempty"`
}

// CommandResult reports whether the vendor accepted a command. Success false
// covers both "device rejected" and "device unreachable"; callers cannot
// distinguish the two from this shape alone.
type CommandResult struct {
	Success bool `json:"success"`
}
