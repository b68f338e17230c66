package websub

import "context"

// Result is the outcome of one engine iteration.
type Result int

const (
	// ResultNoJob means the source queue was empty (or the iteration crashed).
	ResultNoJob Result = iota

	// ResultSuccess means the job was fully processed and deleted.
	ResultSuccess

	// ResultFailure means the job was not fully processed.
	ResultFailure
)

// String returns the lower-case name of the result.
func (r Result) String() string {
	switch r {
	case ResultNoJob:
		return "no_job"
	case ResultSuccess:
		return "success"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Engine processes at most one job per Execute call.
// Dispatcher and Deliverer implement it.
type Engine interface {
	Execute(ctx context.Context) (Result, error)
}

var (
	_ Engine = (*Dispatcher)(nil)
	_ Engine = (*Deliverer)(nil)
)
