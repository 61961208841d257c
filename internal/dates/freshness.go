package dates

import "time"

const secondsPerDay = 24 * 60 * 60

// Status classifies a date relative to today
type Status int

const (
	Expired Status = iota
	Today
	Upcoming
)

func (s Status) String() string {
	switch s {
	case Expired:
		return "EXPIRED"
	case Today:
		return "TODAY"
	case Upcoming:
		return "UPCOMING"
	}
	return "UNKNOWN"
}

// MarshalText renders the status name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Freshness is the result of comparing a reference date with today
type Freshness struct {
	Reference time.Time `json:"reference"`
	Today     time.Time `json:"today"`
	DaysDelta int       `json:"days_delta"`
	Status    Status    `json:"status"`
}

// Clock yields the current date in a fixed time zone
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

// NewClock returns a Clock reading the system time in loc
func NewClock(loc *time.Location) Clock {
	return Clock{Location: loc, Now: time.Now}
}

// Today returns midnight of the current civil date in the clock's zone,
// expressed in UTC so it compares cleanly with extracted dates
func (c Clock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now().In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole civil days from a to b, ignoring time of day
// and zone offsets
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int((db.Unix() - da.Unix()) / secondsPerDay)
}

// Evaluate compares reference with today
func Evaluate(reference, today time.Time) Freshness {
	delta := DaysBetween(today, reference)
	status := Upcoming
	switch {
	case delta < 0:
		status = Expired
	case delta == 0:
		status = Today
	}
	return Freshness{
		Reference: reference,
		Today:     today,
		DaysDelta: delta,
		Status:    status,
	}
}
