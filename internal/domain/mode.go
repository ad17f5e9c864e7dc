package domain

import "fmt"

// ExecutionMode selects between simulated and real order execution.
type ExecutionMode string

const (
	// ModePaper executes trades against the virtual ledger only.
	ModePaper ExecutionMode = "paper"
	// ModeLive would place real exchange orders. Live execution is not
	// implemented; the strategy rejects it at the entry gate.
	ModeLive ExecutionMode = "live"
)

// Validate reports whether the mode is a known value.
func (m ExecutionMode) Validate() error {
	switch m {
	case ModePaper, ModeLive:
		return nil
	default:
		return fmt.Errorf("unknown execution mode: %q", string(m))
	}
}

// CanExecute reports whether orders may actually be placed in this mode.
func (m ExecutionMode) CanExecute() bool {
	return m == ModePaper
}
