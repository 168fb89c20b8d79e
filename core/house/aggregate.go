package house

import "sort"

// certificate categories, mirrored here to keep the read side free of a
// dependency on the write-side package
const (
	categoryInternal = "internal"
	categoryExternal = "external"
	categoryEvent    = "event"
)

// Window bounds aggregation to a year and optionally a month of the
// originating certificate's issue date. Zero fields are unbounded.
type Window struct {
	Year  int `json:"year,omitempty" query:"year"`
	Month int `json:"month,omitempty" query:"month"`
}

func (w Window) contains(year, month int) bool {
	if w.Year != 0 && year != w.Year {
		return false
	}
	if w.Month != 0 && month != w.Month {
		return false
	}
	return true
}

// Breakdown buckets point totals by certificate category.
type Breakdown struct {
	Internal int `json:"internal"`
	External int `json:"external"`
	Events   int `json:"events"`
	Total    int `json:"total"`
}

// Standing is one leaderboard row.
type Standing struct {
	House  House     `json:"house"`
	Points Breakdown `json:"points"`
}

// Summarize folds raw ledger entries into category buckets, keeping only
// entries whose originating certificate falls inside the window. A window
// with no entries yields an all-zero breakdown.
func Summarize(entries []LedgerView, win Window) Breakdown {
	var b Breakdown
	for _, e := range entries {
		if !win.contains(e.IssueYear, e.IssueMonth) {
			continue
		}
		switch e.Category {
		case categoryInternal:
			b.Internal += e.Points
		case categoryExternal:
			b.External += e.Points
		case categoryEvent:
			b.Events += e.Points
		}
		b.Total += e.Points
	}
	return b
}

// Rank orders standings by total descending, ties broken by house ID so
// repeated queries return a stable order.
func Rank(standings []Standing) {
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Points.Total != standings[j].Points.Total {
			return standings[i].Points.Total > standings[j].Points.Total
		}
		return standings[i].House.ID < standings[j].House.ID
	})
}
