package activity

import (
	"slices"
	"time"

	"github.com/checkcalendar-api/internal/domain"
)

// Report summarises the check history of one activity as of a given day.
type Report struct {
	ActivityID    string    `json:"id"`
	Name          string    `json:"name"`
	Total         int       `json:"total"`
	ThisYear      int       `json:"this_year"`
	ThisMonth     int       `json:"this_month"`
	LastMonth     int       `json:"last_month"`
	Last7Days     []DayMark `json:"last_7_days"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
}

// DayMark reports whether a single day was checked.
type DayMark struct {
	Date    string `json:"date"`
	Checked bool   `json:"checked"`
}

// BuildReport computes the report for a as seen on today's calendar day.
// Malformed check strings are ignored.
func BuildReport(a domain.Activity, today time.Time) *Report {
	day := truncateDay(today)
	firstOfMonth := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	prevMonth := firstOfMonth.AddDate(0, -1, 0)

	r := &Report{ActivityID: a.ActivityID, Name: a.Name}
	checked := make(map[time.Time]struct{}, len(a.Checks))
	var days []time.Time
	for _, c := range a.Checks {
		d, err := time.Parse(domain.DateLayout, c)
		if err != nil {
			continue
		}
		if _, dup := checked[d]; dup {
			continue
		}
		checked[d] = struct{}{}
		days = append(days, d)

		r.Total++
		if d.Year() == day.Year() {
			r.ThisYear++
			if d.Month() == day.Month() {
				r.ThisMonth++
			}
		}
		if d.Year() == prevMonth.Year() && d.Month() == prevMonth.Month() {
			r.LastMonth++
		}
	}

	for i := 6; i >= 0; i-- {
		d := day.AddDate(0, 0, -i)
		_, ok := checked[d]
		r.Last7Days = append(r.Last7Days, DayMark{Date: d.Format(domain.DateLayout), Checked: ok})
	}

	r.CurrentStreak = currentStreak(checked, day)
	r.BestStreak = bestStreak(days)
	return r
}

// currentStreak counts consecutive checked days ending today, or ending
// yesterday when today has not been checked yet.
func currentStreak(checked map[time.Time]struct{}, day time.Time) int {
	if _, ok := checked[day]; !ok {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for {
		if _, ok := checked[day]; !ok {
			return n
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
}

func bestStreak(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	sorted := slices.Clone(days)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	best, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Equal(sorted[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
	}
	return best
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
