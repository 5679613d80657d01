package bootstrap

import (
	"context"
	"log/slog"
	"time"
)

// recorder collects phase outcomes for one run. Phases that were never
// reached are reported as skipped by finish.
type recorder struct {
	startedAt time.Time
	phases    map[string]PhaseResult
}

func newRecorder() *recorder {
	return &recorder{
		startedAt: time.Now().UTC(),
		phases:    make(map[string]PhaseResult, len(Phases)),
	}
}

func (r *recorder) ok(ctx context.Context, name, detail string) {
	r.add(ctx, PhaseResult{Name: name, Status: StatusOK, Detail: detail})
}

func (r *recorder) skip(ctx context.Context, name, detail string) {
	r.add(ctx, PhaseResult{Name: name, Status: StatusSkipped, Detail: detail})
}

func (r *recorder) fail(ctx context.Context, name string, err error) {
	r.add(ctx, PhaseResult{Name: name, Status: StatusError, Error: err.Error()})
}

func (r *recorder) add(ctx context.Context, p PhaseResult) {
	r.phases[p.Name] = p

	attrs := []any{"phase", p.Name, "status", p.Status}
	if p.Detail != "" {
		attrs = append(attrs, "detail", p.Detail)
	}
	if p.Error != "" {
		slog.WarnContext(ctx, "bootstrap phase failed", append(attrs, "error", p.Error)...)
		return
	}
	slog.DebugContext(ctx, "bootstrap phase", attrs...)
}

func (r *recorder) finish() *Result {
	result := &Result{
		Status:     StatusOK,
		Phases:     make([]PhaseResult, 0, len(Phases)),
		StartedAt:  r.startedAt,
		FinishedAt: time.Now().UTC(),
	}
	for _, name := range Phases {
		p, ok := r.phases[name]
		if !ok {
			p = PhaseResult{Name: name, Status: StatusSkipped, Detail: "not reached"}
		}
		if p.Status == StatusError {
			result.Status = StatusError
		}
		result.Phases = append(result.Phases, p)
	}
	return result
}
