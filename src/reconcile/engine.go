// Package reconcile merges declared cluster configuration with live state.
package reconcile

import (
	"fmt"
	"strings"

	"github.com/zvdy/emrfleet/src/models"
)

// Matcher picks the live cluster that belongs to configName. It returns the
// index into liveNames and whether a match was found.
type Matcher func(configName string, liveNames []string) (int, bool)

// FirstMatch selects the first live name equal to configName or containing it.
// Exact and substring matches have no precedence over each other: a substring
// match that comes first in the list wins.
func FirstMatch(configName string, liveNames []string) (int, bool) {
	for i, liveName := range liveNames {
		if liveName == configName || strings.Contains(liveName, configName) {
			return i, true
		}
	}
	return -1, false
}

// ExactFirst prefers an exact name match anywhere in the list and falls back
// to the first substring match.
func ExactFirst(configName string, liveNames []string) (int, bool) {
	for i, liveName := range liveNames {
		if liveName == configName {
			return i, true
		}
	}
	for i, liveName := range liveNames {
		if strings.Contains(liveName, configName) {
			return i, true
		}
	}
	return -1, false
}

// MatcherByName resolves a configured match policy.
func MatcherByName(policy string) (Matcher, error) {
	switch policy {
	case "", "first_match":
		return FirstMatch, nil
	case "exact_first":
		return ExactFirst, nil
	}
	return nil, fmt.Errorf("unknown match policy: %s", policy)
}

// Engine merges configuration records with live cluster state.
type Engine struct {
	match Matcher
}

// NewEngine creates an engine using match; nil selects FirstMatch.
func NewEngine(match Matcher) *Engine {
	if match == nil {
		match = FirstMatch
	}
	return &Engine{match: match}
}

// Merge returns one merged record per config, in config order. Live clusters
// without a matching config are not represented. Unmatched configs keep the
// default TERMINATED state with no cluster id, reason or timeline.
func (e *Engine) Merge(configs []models.ClusterConfigRecord, live []models.LiveClusterState) []models.MergedClusterRecord {
	liveNames := make([]string, len(live))
	for i, l := range live {
		liveNames[i] = l.Name
	}

	merged := make([]models.MergedClusterRecord, 0, len(configs))
	for _, cfg := range configs {
		rec := models.NewMergedClusterRecord(cfg)
		if idx, ok := e.match(cfg.Name, liveNames); ok && idx >= 0 && idx < len(live) {
			rec.ApplyLive(live[idx])
		}
		merged = append(merged, rec)
	}
	return merged
}

// MatchedIDs returns the live cluster ids referenced by merged records.
func MatchedIDs(records []models.MergedClusterRecord) []string {
	seen := make(map[string]bool)
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.ClusterID == nil || seen[*rec.ClusterID] {
			continue
		}
		seen[*rec.ClusterID] = true
		ids = append(ids, *rec.ClusterID)
	}
	return ids
}
