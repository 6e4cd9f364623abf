package types

// Event is a named notification with positionally ordered values. Consumers
// decode values by index, so the order for each event type is fixed.
//
// Values hold one of: nil, []byte, int64, bool or string.
type Event struct {
	Type   string `json:"type"`
	Values []any  `json:"values"`
}

// Len returns the number of positional values.
func (e *Event) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Values)
}
