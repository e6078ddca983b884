package shared

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses the date formats emitted by the store. Empty, zero or
// unparseable input yields ok=false.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "null" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, !t.IsZero()
		}
	}
	return time.Time{}, false
}

// Date is a nullable timestamp that tolerates malformed input. A Date that
// failed to parse is kept on the entity but never matches a bounded range.
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDate wraps t; the zero time is treated as absent.
func NewDate(t time.Time) Date {
	return Date{Time: t, Valid: !t.IsZero()}
}

// DateOf parses value into a Date.
func DateOf(value string) Date {
	t, ok := ParseDate(value)
	return Date{Time: t, Valid: ok}
}

// UnmarshalJSON accepts strings, null and anything else as absent.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*d = Date{}
		return nil
	}
	*d = DateOf(raw)
	return nil
}

// MarshalJSON renders RFC3339 or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339Nano))
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
	case time.Time:
		*d = NewDate(v)
	case string:
		*d = DateOf(v)
	case []byte:
		*d = DateOf(string(v))
	default:
		return fmt.Errorf("shared: cannot scan %T into Date", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Time, nil
}

// DateRange is an optional inclusive day range. A missing From means all
// time; a missing To means the single day From.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Bounded reports whether the range restricts anything.
func (r DateRange) Bounded() bool {
	return r.From != nil && !r.From.IsZero()
}

// Bounds returns [startOfDay(from), endOfDay(to)].
func (r DateRange) Bounds() (time.Time, time.Time, bool) {
	if !r.Bounded() {
		return time.Time{}, time.Time{}, false
	}
	from := *r.From
	to := from
	if r.To != nil && !r.To.IsZero() {
		to = *r.To
	}
	return StartOfDay(from), EndOfDay(to.In(from.Location())), true
}

// Contains reports whether d falls inside the range. Open ranges contain
// every date, including invalid ones.
func (r DateRange) Contains(d Date) bool {
	start, end, ok := r.Bounds()
	if !ok {
		return true
	}
	if !d.Valid {
		return false
	}
	return !d.Time.Before(start) && !d.Time.After(end)
}

// Previous returns the equal-length range ending right before this one.
func (r DateRange) Previous() (DateRange, bool) {
	start, end, ok := r.Bounds()
	if !ok {
		return DateRange{}, false
	}
	days := int(end.Sub(start).Hours()/24) + 1
	prevTo := start.AddDate(0, 0, -1)
	prevFrom := start.AddDate(0, 0, -days)
	return DateRange{From: &prevFrom, To: &prevTo}, true
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// FilterByDate returns the items whose date falls inside r. An open range
// returns the input unchanged.
func FilterByDate[T any](items []T, r DateRange, date func(T) Date) []T {
	if !r.Bounded() {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if r.Contains(date(item)) {
			out = append(out, item)
		}
	}
	return out
}

// SortByDate returns a stably sorted copy. Items without a valid date sort
// last in both directions.
func SortByDate[T any](items []T, date func(T) Date, descending bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := date(out[i]), date(out[j])
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.Valid {
			return false
		}
		if descending {
			return a.Time.After(b.Time)
		}
		return a.Time.Before(b.Time)
	})
	return out
}
