package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// LocalLayout is the layout used to echo a window back to callers.
const LocalLayout = "2006-01-02 15:04:05"

var validate = validator.New()

// TimeFilter is a parsed year/month/day/hour request. Finer fields are only
// set when every coarser field is present, so the filter is always nested.
type TimeFilter struct {
	Year  int  `validate:"min=1,max=9999"`
	Month *int `validate:"omitempty,min=1,max=12"`
	Day   *int `validate:"omitempty,min=1,max=31"`
	Hour  *int `validate:"omitempty,min=0,max=23"`
}

// Window is an inclusive [Start, End] pair of instants.
type Window struct {
	Start time.Time
	End   time.Time
}

// DateFilter is the window echoed to callers in local time.
type DateFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ParseTimeFilter validates raw query values. Empty strings mean "not
// supplied". It returns a nil filter when no year is given.
func ParseTimeFilter(year, month, day, hour string) (*TimeFilter, error) {
	fields := []struct {
		name string
		raw  string
	}{
		{name: "year", raw: year},
		{name: "month", raw: month},
		{name: "day", raw: day},
		{name: "hour", raw: hour},
	}

	parsed := make([]*int, len(fields))
	for i, f := range fields {
		if f.raw == "" {
			continue
		}
		n, err := strconv.Atoi(f.raw)
		if err != nil {
			return nil, newNotIntegerError(f.name)
		}
		parsed[i] = &n
	}

	if parsed[0] == nil {
		return nil, nil
	}

	tf := &TimeFilter{Year: *parsed[0]}
	if parsed[1] != nil {
		tf.Month = parsed[1]
		if parsed[2] != nil {
			tf.Day = parsed[2]
			if parsed[3] != nil {
				tf.Hour = parsed[3]
			}
		}
	}

	if err := tf.Validate(); err != nil {
		return nil, err
	}
	return tf, nil
}

// Validate checks every field against its calendar range.
func (f TimeFilter) Validate() error {
	if err := validate.Struct(f); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			name := strings.ToLower(fieldErrs[0].Field())
			return &ValidationError{Field: name, Message: name + " is out of range"}
		}
		return err
	}
	if f.Month != nil && f.Day != nil && *f.Day > daysIn(f.Year, time.Month(*f.Month)) {
		return &ValidationError{Field: "day", Message: "day is out of range"}
	}
	return nil
}

// ValidateIn rejects an hour that the clock in loc skips, such as the hour
// lost when daylight saving starts.
func (f TimeFilter) ValidateIn(loc *time.Location) error {
	if f.Month == nil || f.Day == nil || f.Hour == nil {
		return nil
	}
	t := time.Date(f.Year, time.Month(*f.Month), *f.Day, *f.Hour, 0, 0, 0, loc)
	if t.Hour() != *f.Hour || t.Day() != *f.Day {
		return &ValidationError{Field: "hour", Message: "hour does not exist in " + loc.String()}
	}
	return nil
}

// Window resolves the filter to the inclusive window it names in loc.
func (f TimeFilter) Window(loc *time.Location) Window {
	if f.Month == nil {
		return Window{
			Start: time.Date(f.Year, time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(f.Year, time.December, 31, 23, 59, 59, 0, loc),
		}
	}

	m := time.Month(*f.Month)
	if f.Day == nil {
		return Window{
			Start: time.Date(f.Year, m, 1, 0, 0, 0, 0, loc),
			End:   time.Date(f.Year, m, daysIn(f.Year, m), 23, 59, 59, 0, loc),
		}
	}

	if f.Hour == nil {
		return Window{
			Start: time.Date(f.Year, m, *f.Day, 0, 0, 0, 0, loc),
			End:   time.Date(f.Year, m, *f.Day, 23, 59, 59, 0, loc),
		}
	}

	return Window{
		Start: time.Date(f.Year, m, *f.Day, *f.Hour, 0, 0, 0, loc),
		End:   time.Date(f.Year, m, *f.Day, *f.Hour, 59, 59, 0, loc),
	}
}

// UTC returns the same instants expressed in UTC.
func (w Window) UTC() Window {
	return Window{Start: w.Start.UTC(), End: w.End.UTC()}
}

// In returns the same instants expressed in loc.
func (w Window) In(loc *time.Location) Window {
	return Window{Start: w.Start.In(loc), End: w.End.In(loc)}
}

// Contains reports whether o lies entirely within w.
func (w Window) Contains(o Window) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// DateFilter formats the window for echoing.
func (w Window) DateFilter() DateFilter {
	return DateFilter{
		Start: w.Start.Format(LocalLayout),
		End:   w.End.Format(LocalLayout),
	}
}

func daysIn(year int, m time.Month) int {
	// Day 0 of the next month is the last day of m.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
