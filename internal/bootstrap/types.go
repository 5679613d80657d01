package bootstrap

import "time"

// Status values used across Result and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Phase names in execution order.
const (
	PhaseConnect          = "connect"
	PhaseEnsureCategories = "ensure_categories"
	PhaseEnsureProducts   = "ensure_products"
	PhaseSeedCategories   = "seed_categories"
	PhaseSeedProducts     = "seed_products"
	PhaseCommit           = "commit"
	PhaseCache            = "cache"
	PhaseEvents           = "events"
)

// Phases lists every phase a run records, in order.
var Phases = []string{
	PhaseConnect,
	PhaseEnsureCategories,
	PhaseEnsureProducts,
	PhaseSeedCategories,
	PhaseSeedProducts,
	PhaseCommit,
	PhaseCache,
	PhaseEvents,
}

// Result is the outcome of one bootstrap run. It is not modified after
// RunBootstrap returns.
type Result struct {
	Status     string        `json:"status"`
	Phases     []PhaseResult `json:"phases"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// PhaseResult represents the outcome of a single bootstrap phase.
type PhaseResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "ok", "error", "skipped"
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Phase returns the recorded result for name.
func (r *Result) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// Summary describes what a successful database sequence changed.
type Summary struct {
	CategoriesCreated  bool      `json:"categoriesCreated"`
	ProductsCreated    bool      `json:"productsCreated"`
	CategoriesInserted int       `json:"categoriesInserted"`
	ProductsInserted   int       `json:"productsInserted"`
	CompletedAt        time.Time `json:"completedAt"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}
