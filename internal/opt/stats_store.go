package opt

import (
	"sort"
	"sync"
)

// SolverStats aggregates solver outcomes for one tenant.
type SolverStats struct {
	Runs        int            `json:"runs"`
	ByStatus    map[Status]int `json:"byStatus"`
	Nodes       int            `json:"nodes"`
	RuntimeMs   float64        `json:"runtimeMs"`
	MaxRuntime  float64        `json:"maxRuntimeMs"`
	LastStatus  Status         `json:"lastStatus,omitempty"`
	LastVarSize int            `json:"lastVariables"`
}

var (
	statsMu sync.Mutex
	stats   = map[string]*SolverStats{}
)

// RecordStats folds one result into the tenant's in-process counters.
func RecordStats(tenant string, res Result) {
	statsMu.Lock()
	defer statsMu.Unlock()
	s := stats[tenant]
	if s == nil {
		s = &SolverStats{ByStatus: map[Status]int{}}
		stats[tenant] = s
	}
	s.Runs++
	s.ByStatus[res.Status]++
	s.Nodes += res.Stats.Nodes
	s.RuntimeMs += res.Stats.RuntimeMs
	if res.Stats.RuntimeMs > s.MaxRuntime {
		s.MaxRuntime = res.Stats.RuntimeMs
	}
	s.LastStatus = res.Status
	s.LastVarSize = res.Stats.Variables
}

// GetStats returns a copy of the tenant's counters.
func GetStats(tenant string) (SolverStats, bool) {
	statsMu.Lock()
	defer statsMu.Unlock()
	s, ok := stats[tenant]
	if !ok {
		return SolverStats{ByStatus: map[Status]int{}}, false
	}
	out := *s
	out.ByStatus = make(map[Status]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		out.ByStatus[k] = v
	}
	return out, true
}

// StatsTenants lists tenants with recorded stats, sorted.
func StatsTenants() []string {
	statsMu.Lock()
	defer statsMu.Unlock()
	out := make([]string, 0, len(stats))
	for t := range stats {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
