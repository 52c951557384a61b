package reloader

import (
	"sort"
	"strings"
	"time"

	"github.com/smileynet/sldview/internal/diagram"
)

// LastUpdateLayout formats Snapshot.LastUpdate for display.
const LastUpdateLayout = "2006-01-02 15:04:05"

// Snapshot is a read-only projection of the machine after a transition.
// It owns its slices; later transitions never mutate a Snapshot already handed out.
type Snapshot struct {
	State              State
	Diagram            *diagram.Diagram
	Err                string
	CurrentID          string
	CacheSize          int
	CacheGeneration    uint64
	CachedIDs          []string // sorted
	LastUpdate         time.Time
	AutoRefreshEnabled bool
	HasRuntime         bool
}

// Snapshot projects the machine's current state.
func (m Machine) Snapshot() Snapshot {
	return Snapshot{
		State:              m.state,
		Diagram:            m.diagram,
		Err:                m.lastError,
		CurrentID:          m.currentID,
		CacheSize:          m.cache.Len(),
		CacheGeneration:    m.cache.Generation(),
		CachedIDs:          m.cache.IDs(),
		LastUpdate:         m.lastUpdate,
		AutoRefreshEnabled: m.autoRefresh,
		HasRuntime:         m.runtime != nil,
	}
}

func (s Snapshot) IsIdle() bool              { return s.State == StateIdle }
func (s Snapshot) IsWaitingForRuntime() bool { return s.State == StateWaitingForRuntime }
func (s Snapshot) IsLoading() bool           { return s.State == StateLoading }
func (s Snapshot) IsLoaded() bool            { return s.State == StateLoaded }
func (s Snapshot) IsRefreshing() bool        { return s.State == StateRefreshing }
func (s Snapshot) IsError() bool             { return s.State == StateError }

// IsStale reports a loaded diagram whose latest background refresh failed.
func (s Snapshot) IsStale() bool {
	return s.State == StateLoaded && strings.HasPrefix(s.Err, refreshErrorPrefix)
}

// Settled reports whether no load is pending: the machine is idle, loaded or failed.
func (s Snapshot) Settled() bool {
	switch s.State {
	case StateIdle, StateLoaded, StateError:
		return true
	}
	return false
}

// IsInCache reports whether id was cached when the snapshot was taken.
func (s Snapshot) IsInCache(id string) bool {
	i := sort.SearchStrings(s.CachedIDs, id)
	return i < len(s.CachedIDs) && s.CachedIDs[i] == id
}

// TimeSinceLastUpdate returns the time elapsed since the diagram was fetched,
// and false when nothing is displayed.
func (s Snapshot) TimeSinceLastUpdate(now time.Time) (time.Duration, bool) {
	if s.LastUpdate.IsZero() {
		return 0, false
	}
	return now.Sub(s.LastUpdate), true
}

// FormattedLastUpdate renders LastUpdate in local time, or "" when unset.
func (s Snapshot) FormattedLastUpdate() string {
	if s.LastUpdate.IsZero() {
		return ""
	}
	return s.LastUpdate.Local().Format(LastUpdateLayout)
}
