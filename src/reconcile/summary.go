package reconcile

import (
	"strconv"
	"strings"

	"github.com/zvdy/emrfleet/src/models"
	"github.com/zvdy/emrfleet/src/orchestrator"
)

const unknownState = "UNKNOWN"

func stateOf(rec models.MergedClusterRecord) string {
	if rec.State == "" {
		return unknownState
	}
	return rec.State
}

// GroupByState buckets records by state.
func GroupByState(records []models.MergedClusterRecord) map[string][]models.MergedClusterRecord {
	groups := make(map[string][]models.MergedClusterRecord)
	for _, rec := range records {
		state := stateOf(rec)
		groups[state] = append(groups[state], rec)
	}
	return groups
}

// Stats counts records per state with their share of the total, as a
// percentage rounded to one decimal.
func Stats(records []models.MergedClusterRecord) models.FleetStats {
	stats := models.FleetStats{
		Total:   len(records),
		ByState: make(map[string]models.StateCount),
	}
	counts := make(map[string]int)
	for _, rec := range records {
		counts[stateOf(rec)]++
	}
	for state, n := range counts {
		pct := float64(n) / float64(stats.Total) * 100
		stats.ByState[state] = models.StateCount{
			Count:      n,
			Percentage: strconv.FormatFloat(pct, 'f', 1, 64),
		}
	}
	return stats
}

// DefaultFilterFields are searched when Filter is given no fields.
var DefaultFilterFields = []string{"name"}

// Filter keeps records where any of fields contains term, case-insensitively.
// Fields are dotted paths such as "name", "state" or "config.owner"; only
// string values are compared. A blank term returns records unchanged.
func Filter(records []models.MergedClusterRecord, term string, fields []string) []models.MergedClusterRecord {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return records
	}
	if len(fields) == 0 {
		fields = DefaultFilterFields
	}

	out := make([]models.MergedClusterRecord, 0, len(records))
	for _, rec := range records {
		for _, field := range fields {
			if v, ok := fieldValue(rec, field); ok && strings.Contains(strings.ToLower(v), needle) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// FilterByState keeps records whose state equals state; empty keeps all.
func FilterByState(records []models.MergedClusterRecord, state string) []models.MergedClusterRecord {
	if state == "" {
		return records
	}
	out := make([]models.MergedClusterRecord, 0, len(records))
	for _, rec := range records {
		if strings.EqualFold(stateOf(rec), state) {
			out = append(out, rec)
		}
	}
	return out
}

// FilterActive keeps records whose cluster is up or coming up.
func FilterActive(records []models.MergedClusterRecord) []models.MergedClusterRecord {
	out := make([]models.MergedClusterRecord, 0, len(records))
	for _, rec := range records {
		if orchestrator.IsActive(rec.State) {
			out = append(out, rec)
		}
	}
	return out
}

func fieldValue(rec models.MergedClusterRecord, path string) (string, bool) {
	head, rest, nested := strings.Cut(path, ".")
	switch head {
	case "name":
		return rec.Name, !nested
	case "state":
		return rec.State, !nested
	case "parameterName":
		return rec.RegistryKey, !nested
	case "clusterId":
		if rec.ClusterID == nil || nested {
			return "", false
		}
		return *rec.ClusterID, true
	case "lastStateChangeReason":
		if rec.LastStateChangeReason == nil || nested {
			return "", false
		}
		return *rec.LastStateChangeReason, true
	case "config":
		if !nested {
			s, ok := rec.Config.(string)
			return s, ok
		}
		return nestedString(rec.Config, strings.Split(rest, "."))
	}
	return "", false
}

func nestedString(v interface{}, keys []string) (string, bool) {
	for _, key := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		v = m[key]
	}
	s, ok := v.(string)
	return s, ok
}
