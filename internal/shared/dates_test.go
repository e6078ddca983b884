package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type dated struct {
	ID   string
	When Date
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFilterByDateSingleDay(t *testing.T) {
	items := []dated{
		{ID: "late", When: NewDate(time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC))},
		{ID: "next", When: NewDate(time.Date(2024, 1, 11, 0, 0, 1, 0, time.UTC))},
		{ID: "broken", When: DateOf("not-a-date")},
	}
	r := DateRange{From: day(2024, 1, 10), To: day(2024, 1, 10)}
	got := FilterByDate(items, r, func(d dated) Date { return d.When })
	require.Len(t, got, 1)
	require.Equal(t, "late", got[0].ID)

	onlyFrom := DateRange{From: day(2024, 1, 10)}
	require.Equal(t, got, FilterByDate(items, onlyFrom, func(d dated) Date { return d.When }))
}

func TestFilterByDateOpenRangeKeepsEverything(t *testing.T) {
	items := []dated{{ID: "a", When: DateOf("")}, {ID: "b", When: DateOf("2024-02-01")}}
	got := FilterByDate(items, DateRange{}, func(d dated) Date { return d.When })
	require.Equal(t, items, got)
}

func TestFilterByDateIdempotent(t *testing.T) {
	items := []dated{
		{ID: "a", When: DateOf("2024-03-01T10:00:00Z")},
		{ID: "b", When: DateOf("2024-03-05")},
		{ID: "c", When: DateOf("2024-03-09 08:00:00")},
	}
	r := DateRange{From: day(2024, 3, 1), To: day(2024, 3, 5)}
	once := FilterByDate(items, r, func(d dated) Date { return d.When })
	twice := FilterByDate(once, r, func(d dated) Date { return d.When })
	require.Equal(t, once, twice)
	require.Len(t, once, 2)
}

func TestPreviousRange(t *testing.T) {
	r := DateRange{From: day(2024, 1, 8), To: day(2024, 1, 14)}
	prev, ok := r.Previous()
	require.True(t, ok)
	start, end, _ := prev.Bounds()
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	require.Equal(t, EndOfDay(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)), end)

	_, ok = DateRange{}.Previous()
	require.False(t, ok)
}

func TestSortByDate(t *testing.T) {
	items := []dated{
		{ID: "old", When: DateOf("2024-01-01")},
		{ID: "none", When: Date{}},
		{ID: "new", When: DateOf("2024-02-01")},
		{ID: "old2", When: DateOf("2024-01-01")},
	}
	desc := SortByDate(items, func(d dated) Date { return d.When }, true)
	require.Equal(t, []string{"new", "old", "old2", "none"}, ids(desc))
	asc := SortByDate(items, func(d dated) Date { return d.When }, false)
	require.Equal(t, []string{"old", "old2", "new", "none"}, ids(asc))
	require.Equal(t, "old", items[0].ID)
}

func TestDateJSONTolerant(t *testing.T) {
	var payload struct {
		A Date `json:"a"`
		B Date `json:"b"`
		C Date `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"2024-05-01T12:00:00Z","b":"garbage","c":null}`), &payload))
	require.True(t, payload.A.Valid)
	require.False(t, payload.B.Valid)
	require.False(t, payload.C.Valid)
}

func ids(items []dated) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
