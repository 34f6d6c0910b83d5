package models

import "time"

// TimestampLayout is the fixed textual form used for every timestamp the
// service emits (lastModified and timeline entries).
const TimestampLayout = "2006-01-02T15:04:05.999999-07:00"

// DefaultState is reported for configured clusters that have no live counterpart.
const DefaultState = "TERMINATED"

// FormatTimestamp renders t in TimestampLayout. A zero time yields "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

// ClusterConfigRecord is one declared cluster read from the configuration registry.
type ClusterConfigRecord struct {
	Name         string      `json:"name"`
	Config       interface{} `json:"config"`
	RegistryKey  string      `json:"parameterName"`
	LastModified *string     `json:"lastModified"`
}

// NewClusterConfigRecord creates a record, normalizing lastModified when present.
func NewClusterConfigRecord(name, key string, config interface{}, lastModified *time.Time) ClusterConfigRecord {
	rec := ClusterConfigRecord{
		Name:        name,
		Config:      config,
		RegistryKey: key,
	}
	if lastModified != nil && !lastModified.IsZero() {
		s := FormatTimestamp(*lastModified)
		rec.LastModified = &s
	}
	return rec
}

// Application is an installed application reported by the orchestrator.
type Application struct {
	Name    string `json:"Name,omitempty"`
	Version string `json:"Version,omitempty"`
}

// Tag is a key/value pair attached to a live cluster.
type Tag struct {
	Key   string `json:"Key,omitempty"`
	Value string `json:"Value,omitempty"`
}

// LiveClusterState is one cluster as reported by the orchestrator.
type LiveClusterState struct {
	Name              string            `json:"name"`
	ID                string            `json:"id"`
	State             string            `json:"state"`
	StateChangeReason *string           `json:"stateChangeReason,omitempty"`
	Timeline          map[string]string `json:"timeline,omitempty"`
	Applications      []Application     `json:"applications"`
	Tags              []Tag             `json:"tags"`
}

// MergedClusterRecord is the externally visible view of a cluster: its declared
// configuration plus the last observed live state.
type MergedClusterRecord struct {
	ClusterConfigRecord

	State                 string            `json:"state"`
	ClusterID             *string           `json:"clusterId"`
	LastStateChangeReason *string           `json:"lastStateChangeReason"`
	Timeline              map[string]string `json:"timeline"`
	Applications          []Application     `json:"applications"`
	Tags                  []Tag             `json:"tags"`
}

// NewMergedClusterRecord creates a merged record in its unmatched default state.
func NewMergedClusterRecord(cfg ClusterConfigRecord) MergedClusterRecord {
	return MergedClusterRecord{
		ClusterConfigRecord: cfg,
		State:               DefaultState,
		Applications:        make([]Application, 0),
		Tags:                make([]Tag, 0),
	}
}

// ApplyLive copies the observed state of live onto the record.
func (m *MergedClusterRecord) ApplyLive(live LiveClusterState) {
	id := live.ID
	m.State = live.State
	m.ClusterID = &id
	m.LastStateChangeReason = live.StateChangeReason
	m.Timeline = nil
	if live.Timeline != nil {
		m.Timeline = make(map[string]string, len(live.Timeline))
		for k, v := range live.Timeline {
			m.Timeline[k] = v
		}
	}
	m.Applications = make([]Application, 0, len(live.Applications))
	m.Applications = append(m.Applications, live.Applications...)
	m.Tags = make([]Tag, 0, len(live.Tags))
	m.Tags = append(m.Tags, live.Tags...)
}

// StateCount is the per-state entry of FleetStats.
type StateCount struct {
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

// FleetStats summarizes merged records by state.
type FleetStats struct {
	Total   int                   `json:"total"`
	ByState map[string]StateCount `json:"byState"`
}
