package types

// Event represents a typed event emitted by a settlement state transition.
// Attribute values are always rendered as strings so downstream consumers do
// not need to know the Go types of amounts or addresses.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the named attribute or the empty string when absent.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}
