// Package phase provides the traffic light phase.
package phase

// Phase represents the phase of a traffic light.
type Phase int

const (
	Red   Phase = iota // Vehicles must wait
	Green              // Vehicles may cross
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case Red:
		return "red"
	case Green:
		return "green"
	default:
		return "unknown"
	}
}

// Next returns the phase that follows p.
func (p Phase) Next() Phase {
	if p == Green {
		return Red
	}
	return Green
}

// IsValid reports whether p is Red or Green.
func (p Phase) IsValid() bool {
	return p == Red || p == Green
}
