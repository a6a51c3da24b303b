package telemetry

import (
	"sort"
	"sync"
)

// AgentSummary aggregates every observation for one agent.
type AgentSummary struct {
	// AgentName is the agent summarized.
	AgentName string
	// Executions is the number of completed runs.
	Executions int
	// SuccessRate is successes divided by executions, in [0, 1].
	SuccessRate float64
	// AverageDurationMillis is the mean run duration.
	AverageDurationMillis uint64
}

// agentStats is the running aggregate behind one summary.
type agentStats struct {
	executions  int
	successes   int
	totalMillis uint64
}

// Tracker accumulates run metrics in memory and answers per-agent summary
// queries. It is safe for concurrent use.
type Tracker struct {
	// mu protects observations and perAgent.
	mu           sync.Mutex
	observations []Observation
	perAgent     map[string]*agentStats
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{perAgent: make(map[string]*agentStats)}
}

// Observe records one completed run.
func (t *Tracker) Observe(o Observation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.observations = append(t.observations, o)

	stats, ok := t.perAgent[o.AgentName]
	if !ok {
		stats = &agentStats{}
		t.perAgent[o.AgentName] = stats
	}
	stats.executions++
	if o.Success {
		stats.successes++
	}
	stats.totalMillis += o.DurationMillis
}

// Summary returns the aggregate for one agent.
func (t *Tracker) Summary(agentName string) (AgentSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.perAgent[agentName]
	if !ok {
		return AgentSummary{}, false
	}
	return summarize(agentName, stats), true
}

// Summaries returns aggregates for every observed agent, ordered by name.
func (t *Tracker) Summaries() []AgentSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summaries := make([]AgentSummary, 0, len(t.perAgent))
	for name, stats := range t.perAgent {
		summaries = append(summaries, summarize(name, stats))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].AgentName < summaries[j].AgentName
	})
	return summaries
}

// Observations returns a copy of every recorded observation in order.
func (t *Tracker) Observations() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Observation, len(t.observations))
	copy(out, t.observations)
	return out
}

func summarize(name string, stats *agentStats) AgentSummary {
	s := AgentSummary{
		AgentName:  name,
		Executions: stats.executions,
	}
	if stats.executions > 0 {
		s.SuccessRate = float64(stats.successes) / float64(stats.executions)
		s.AverageDurationMillis = stats.totalMillis / uint64(stats.executions)
	}
	return s
}
