// Package job defines the monitoring request ("job") for one shuttle trip and
// the route catalogue jobs are validated against.
package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dateLayout is how the booking page expects dates: "05 MAR 2026".
const dateLayout = "02 Jan 2006"

// Job is one requester's watch over a route, date, departure slot and seat count.
// The JSON shape is the persisted job file format; new fields must stay optional.
type Job struct {
	ID           string     `json:"id,omitempty"`
	Origin       string     `json:"origin"`
	Destination  string     `json:"destination"`
	Day          string     `json:"day"`
	Month        string     `json:"month"`
	Year         string     `json:"year"`
	Time         string     `json:"time"`
	Passengers   int        `json:"passengers"`
	ReturnDay    string     `json:"return_day"`
	ReturnMonth  string     `json:"return_month"`
	ReturnYear   string     `json:"return_year"`
	Completed    bool       `json:"completed"`
	LastNotified *int       `json:"last_notified,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// ValidationError describes why a job cannot be monitored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// New builds a job for the given origin, travel date, slot and passenger count.
// Destination is the other station and the return date mirrors the outbound one.
func New(cat *Catalogue, origin string, date time.Time, slot string, passengers int) (Job, error) {
	st, ok := cat.Station(origin)
	if !ok {
		return Job{}, &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown station %q", origin)}
	}
	dest, _ := cat.Destination(st.Name)

	day := fmt.Sprintf("%02d", date.Day())
	month := strings.ToUpper(date.Month().String()[:3])
	year := strconv.Itoa(date.Year())

	j := Job{
		Origin:      st.Name,
		Destination: dest.Name,
		Day:         day,
		Month:       month,
		Year:        year,
		Time:        slot,
		Passengers:  passengers,
		ReturnDay:   day,
		ReturnMonth: month,
		ReturnYear:  year,
	}
	if err := j.Validate(cat); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Validate checks the job against the catalogue.
func (j Job) Validate(cat *Catalogue) error {
	if _, ok := cat.Station(j.Origin); !ok {
		return &ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown station %q", j.Origin)}
	}
	dest, _ := cat.Destination(j.Origin)
	if j.Destination != dest.Name {
		return &ValidationError{Field: "destination", Reason: fmt.Sprintf("must be %q when leaving %q", dest.Name, j.Origin)}
	}
	if _, err := j.Date(); err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	if j.ReturnDate() != j.OnwardDate() {
		return &ValidationError{Field: "return date", Reason: "must equal the outbound date"}
	}
	if !cat.HasSlot(j.Origin, j.Time) {
		return &ValidationError{Field: "time", Reason: fmt.Sprintf("%q is not a departure from %s", j.Time, j.Origin)}
	}
	if j.Passengers < 1 || j.Passengers > cat.MaxPassengers {
		return &ValidationError{Field: "passengers", Reason: fmt.Sprintf("must be between 1 and %d", cat.MaxPassengers)}
	}
	return nil
}

// SlotKey normalizes a "HH:MM" departure into the "HHMM" form the results
// table uses in its data-hourminute attribute.
func SlotKey(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil || t.Format("15:04") != hhmm {
		return "", fmt.Errorf("slot %q is not in HH:MM form", hhmm)
	}
	return strings.ReplaceAll(hhmm, ":", ""), nil
}

// SlotKey returns the job's departure in "HHMM" form.
func (j Job) SlotKey() string {
	return strings.ReplaceAll(j.Time, ":", "")
}

// OnwardDate is the outbound date as typed into the search form.
func (j Job) OnwardDate() string {
	return fmt.Sprintf("%s %s %s", j.Day, j.Month, j.Year)
}

// ReturnDate is the return date as typed into the search form.
func (j Job) ReturnDate() string {
	return fmt.Sprintf("%s %s %s", j.ReturnDay, j.ReturnMonth, j.ReturnYear)
}

// Date parses the outbound travel date.
func (j Job) Date() (time.Time, error) {
	d, err := time.Parse(dateLayout, j.OnwardDate())
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q is not DD MMM YYYY", j.OnwardDate())
	}
	return d, nil
}

// PassengerOption is the visible text of the passenger selector option.
func (j Job) PassengerOption() string {
	return fmt.Sprintf("%d Pax", j.Passengers)
}

// Summary is a one-line human description of the job.
func (j Job) Summary() string {
	return fmt.Sprintf("%s ➝ %s on %s at %s (%d pax)", j.Origin, j.Destination, j.OnwardDate(), j.Time, j.Passengers)
}

// Clone returns a deep copy.
func (j Job) Clone() Job {
	c := j
	if j.LastNotified != nil {
		n := *j.LastNotified
		c.LastNotified = &n
	}
	if j.CreatedAt != nil {
		t := *j.CreatedAt
		c.CreatedAt = &t
	}
	return c
}
