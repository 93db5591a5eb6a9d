package activity

import (
	"testing"
	"time"

	"github.com/checkcalendar-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t.Add(15 * time.Hour)
}

func TestBuildReport(t *testing.T) {
	a := domain.Activity{
		ActivityID: "a1",
		Name:       "Run",
		Checks: []string{
			"2023-12-31", "2024-02-27", "2024-02-28", "2024-03-05",
			"2024-03-08", "2024-03-09", "2024-03-10", "garbage",
		},
	}

	r := BuildReport(a, day("2024-03-10"))

	assert.Equal(t, 7, r.Total)
	assert.Equal(t, 6, r.ThisYear)
	assert.Equal(t, 4, r.ThisMonth)
	assert.Equal(t, 2, r.LastMonth)
	assert.Equal(t, 3, r.CurrentStreak)
	assert.Equal(t, 3, r.BestStreak)
	assert.Equal(t, []DayMark{
		{"2024-03-04", false},
		{"2024-03-05", true},
		{"2024-03-06", false},
		{"2024-03-07", false},
		{"2024-03-08", true},
		{"2024-03-09", true},
		{"2024-03-10", true},
	}, r.Last7Days)
}

func TestBuildReport_Streaks(t *testing.T) {
	tests := []struct {
		name    string
		checks  []string
		today   string
		current int
		best    int
	}{
		{"empty", nil, "2024-03-10", 0, 0},
		{"today unchecked keeps yesterday's run", []string{"2024-03-08", "2024-03-09"}, "2024-03-10", 2, 2},
		{"gap breaks current", []string{"2024-03-08"}, "2024-03-10", 0, 1},
		{"across leap day", []string{"2024-02-28", "2024-02-29", "2024-03-01"}, "2024-03-01", 3, 3},
		{"best older than current", []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-03-10"}, "2024-03-10", 1, 4},
		{"duplicates ignored", []string{"2024-03-10", "2024-03-10"}, "2024-03-10", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport(domain.Activity{Checks: tt.checks}, day(tt.today))
			assert.Equal(t, tt.current, r.CurrentStreak)
			assert.Equal(t, tt.best, r.BestStreak)
		})
	}
}

func TestBuildReport_JanuaryLastMonthIsPreviousDecember(t *testing.T) {
	a := domain.Activity{Checks: []string{"2023-12-15", "2024-12-15", "2024-01-02"}}

	r := BuildReport(a, day("2024-01-20"))

	assert.Equal(t, 1, r.LastMonth)
	assert.Equal(t, 1, r.ThisMonth)
	assert.Equal(t, 2, r.ThisYear)
}
