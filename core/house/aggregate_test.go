package house

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func view(houseID, category string, points, year, month int) LedgerView {
	return LedgerView{
		LedgerEntry: LedgerEntry{HouseID: houseID, Points: points},
		Category:    category,
		IssueYear:   year,
		IssueMonth:  month,
	}
}

func TestSummarize(t *testing.T) {
	entries := []LedgerView{
		view("h1", categoryInternal, 10, 2026, 1),
		view("h1", categoryInternal, 20, 2026, 2),
		view("h1", categoryExternal, 30, 2026, 2),
		view("h1", categoryEvent, 5, 2025, 12),
		view("h1", categoryEvent, 5, 2026, 3),
	}

	tests := []struct {
		name    string
		entries []LedgerView
		win     Window
		want    Breakdown
	}{
		{name: "no entries", win: Window{}, want: Breakdown{}},
		{
			name:    "all time",
			entries: entries,
			want:    Breakdown{Internal: 30, External: 30, Events: 10, Total: 70},
		},
		{
			name:    "year window",
			entries: entries,
			win:     Window{Year: 2026},
			want:    Breakdown{Internal: 30, External: 30, Events: 5, Total: 65},
		},
		{
			name:    "year and month window",
			entries: entries,
			win:     Window{Year: 2026, Month: 2},
			want:    Breakdown{Internal: 20, External: 30, Total: 50},
		},
		{
			name:    "empty window",
			entries: entries,
			win:     Window{Year: 2024},
			want:    Breakdown{},
		},
		{
			name:    "unknown category only counts in total",
			entries: []LedgerView{view("h1", "", 7, 2026, 1)},
			want:    Breakdown{Total: 7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.entries, tt.win))
		})
	}
}

func TestRank(t *testing.T) {
	standings := []Standing{
		{House: House{ID: "c"}, Points: Breakdown{Total: 10}},
		{House: House{ID: "b"}, Points: Breakdown{Total: 30}},
		{House: House{ID: "d"}, Points: Breakdown{Total: 10}},
		{House: House{ID: "a"}, Points: Breakdown{Total: 10}},
	}
	Rank(standings)

	gotIDs := make([]string, 0, len(standings))
	for _, s := range standings {
		gotIDs = append(gotIDs, s.House.ID)
	}
	// highest total first, ties by house ID
	assert.Equal(t, []string{"b", "a", "c", "d"}, gotIDs)
}
