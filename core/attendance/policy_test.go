package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/attendify/attendify/core/student"
)

func TestPlanClosure(t *testing.T) {
	now := time.Date(2024, 3, 10, 20, 30, 0, 0, time.FixedZone("EET", 2*60*60))
	roster := []student.Student{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	ledger := Ledger{
		Date: "2024-03-10",
		Entries: map[string]Entry{
			"a":    {Status: StatusPresent},
			"b":    {Status: StatusPresent, Rating: 4},
			"c":    {Status: StatusAbsent, Rating: 7},
			"gone": {Status: StatusPresent},
		},
	}

	tests := []struct {
		name          string
		defaultRating int
		want          map[string]Entry
	}{
		{
			name:          "default rating",
			defaultRating: 10,
			want: map[string]Entry{
				"a": {Status: StatusPresent, Rating: 10},
				"b": {Status: StatusPresent, Rating: 4},
				"c": {Status: StatusAbsent},
				"d": {Status: StatusAbsent},
			},
		},
		{
			name:          "configured rating",
			defaultRating: 6,
			want: map[string]Entry{
				"a": {Status: StatusPresent, Rating: 6},
				"b": {Status: StatusPresent, Rating: 4},
				"c": {Status: StatusAbsent},
				"d": {Status: StatusAbsent},
			},
		},
		{
			name:          "out of range rating falls back",
			defaultRating: 0,
			want: map[string]Entry{
				"a": {Status: StatusPresent, Rating: DefaultPresentRating},
				"b": {Status: StatusPresent, Rating: 4},
				"c": {Status: StatusAbsent},
				"d": {Status: StatusAbsent},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, closure := PlanClosure(ledger, roster, tt.defaultRating, now)

			got := make(map[string]Entry, len(records))
			for _, rec := range records {
				assert.Equal(t, ledger.Date, rec.Date)
				assert.Equal(t, now.UTC(), rec.Timestamp)
				got[rec.StudentID] = rec.Entry()
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, Closure{Date: ledger.Date, Ended: true, EndedAt: now.UTC()}, closure)
		})
	}
}

func TestPlanClosure_EmptyRoster(t *testing.T) {
	records, closure := PlanClosure(Ledger{Date: "2024-03-10"}, nil, 10, time.Now())
	assert.Empty(t, records)
	assert.True(t, closure.Ended)
}

func TestRecordKey(t *testing.T) {
	assert.Equal(t, "2024-03-10_abc", RecordKey("2024-03-10", "abc"))
	assert.Equal(t, "2024-03-10_abc", Record{Date: "2024-03-10", StudentID: "abc"}.Key())
}

func TestLedger(t *testing.T) {
	l := NewLedger("2024-03-10", []Record{
		{Date: "2024-03-10", StudentID: "a", Status: StatusPresent, Rating: 3},
		{Date: "2024-03-10", StudentID: "b", Status: StatusAbsent},
		{Date: "2024-03-11", StudentID: "c", Status: StatusPresent},
	})
	assert.Len(t, l.Entries, 2)
	assert.Equal(t, 1, l.Count(StatusPresent))
	assert.Equal(t, 1, l.Count(StatusAbsent))
	_, ok := l.Entry("c")
	assert.False(t, ok)
}
