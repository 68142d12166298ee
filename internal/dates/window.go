package dates

import "time"

// UnknownPolicy tells a Window what to do with an Unknown date.
type UnknownPolicy int

const (
	// RejectUnknown drops items whose date could not be determined.
	RejectUnknown UnknownPolicy = iota
	// AdmitUnknown keeps them, treating them as recent.
	AdmitUnknown
)

// Window is the closed recency interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window covering the daysBack days that end at now.
func NewWindow(now time.Time, daysBack int) Window {
	if daysBack < 0 {
		daysBack = 0
	}
	return Window{
		Start: now.Add(-time.Duration(daysBack) * 24 * time.Hour),
		End:   now,
	}
}

// Contains reports whether t lies inside the window, inclusive on both ends.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Admit decides whether an item dated d passes the recency filter.
//
// Year-only dates are always admitted: the window is measured in days, so a
// year carries too little information to reject anything.
func (w Window) Admit(d Date, policy UnknownPolicy) bool {
	switch d.Precision {
	case Exact:
		return w.Contains(d.Time)
	case Year:
		return true
	default:
		return policy == AdmitUnknown
	}
}
