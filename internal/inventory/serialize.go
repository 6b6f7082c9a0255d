package inventory

import (
	"encoding/json"
	"fmt"
)

// hostWire is the deterministic serialized form of a host. Vars marshal
// with sorted keys, so the same host always produces the same bytes.
type hostWire struct {
	Name string         `json:"name"`
	Vars map[string]any `json:"vars,omitempty"`
}

// Serialize renders the host into its canonical wire form.
func (h *Host) Serialize() ([]byte, error) {
	return json.Marshal(hostWire{Name: h.name, Vars: h.vars})
}

// DeserializeHost decodes a host from its wire form.
func DeserializeHost(data []byte) (*Host, error) {
	var w hostWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("deserialize host: %w", err)
	}
	return NewHost(w.Name, w.Vars), nil
}
