package composer

import "github.com/brant/roofpipeline/pkg/models"

// timelineRow is one row of the timeline-band table. Rows are
// evaluated in order; the first whose bounds admit the input wins.
type timelineRow struct {
	maxAreaSqft     float64 // exclusive upper bound; +Inf for "no cap"
	maxHighFeatures int     // exclusive upper bound on count of high-impact features; -1 means "no cap"
	band            string
}

var timelineTable = []timelineRow{
	{maxAreaSqft: 1500, maxHighFeatures: 1, band: "2-4 days"},
	{maxAreaSqft: 5000, maxHighFeatures: 2, band: "4-6 days"},
	{maxAreaSqft: 15000, maxHighFeatures: 3, band: "6-8 days"},
	{maxAreaSqft: posInf, maxHighFeatures: -1, band: "8-12 days"},
}

const posInf = 1e18

// timelineBand derives the installation timeline: area and the
// count of high-impact features both push toward the longer band; the
// first row both bounds admit wins, and the table's last row (no caps) is
// always reachable as the catch-all.
func timelineBand(areaSqft float64, features []models.RoofFeature) string {
	highCount := 0
	for _, f := range features {
		if f.Impact == models.ImpactHigh {
			highCount += f.Count
		}
	}

	for _, row := range timelineTable {
		areaOK := areaSqft < row.maxAreaSqft
		highOK := row.maxHighFeatures < 0 || highCount < row.maxHighFeatures
		if areaOK && highOK {
			return row.band
		}
	}
	return timelineTable[len(timelineTable)-1].band
}
