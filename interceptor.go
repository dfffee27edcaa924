package pimii

import (
	"fmt"
	"log/slog"
)

// EngineStatus is the periodic report an Engine hands to its
// Interceptor: the VM's instruction and GC-run counts, elapsed time,
// and the GC, symbol, global and cell counters Engine.GetValue also
// exposes, bundled for a single structured log line (spec §6.1). The
// value-table counters are only available through GetValue.
type EngineStatus struct {
	InstructionsExecuted int64   `json:"instructionsExecuted"`
	GCRuns               int     `json:"gcRuns"`
	TimeElapsedMillis    int64   `json:"timeElapsedMillis"`
	NumGC                int     `json:"numGC"`
	GCEfficiency         float64 `json:"gcEfficiency"`
	NumGCRoots           int     `json:"numGCRoots"`
	NumSymbols           int     `json:"numSymbols"`
	NumGlobals           int     `json:"numGlobals"`
	TotalCells           int     `json:"totalCells"`
	CellsUsed            int     `json:"cellsUsed"`
}

// Interceptor receives every side effect an Engine produces that isn't
// a direct return value: console output, periodic status, and panics.
// The default implementation logs all three through slog; an embedder
// wanting its own UI swaps this out (spec §6's event sink).
type Interceptor interface {
	Println(message string)
	ReportStatus(status EngineStatus)
	Panic(err *VMError)
}

// SlogInterceptor is the default Interceptor, logging through a
// *slog.Logger the way the rest of this codebase logs everything else.
type SlogInterceptor struct {
	log *slog.Logger
}

// NewSlogInterceptor builds an interceptor over log, or over
// slog.Default() if log is nil.
func NewSlogInterceptor(log *slog.Logger) *SlogInterceptor {
	if log == nil {
		log = slog.Default()
	}
	return &SlogInterceptor{log: log}
}

func (i *SlogInterceptor) Println(message string) {
	i.log.Info(message)
}

func (i *SlogInterceptor) ReportStatus(status EngineStatus) {
	i.log.Debug("engine status",
		"instructions", status.InstructionsExecuted,
		"gc_runs", status.GCRuns,
		"elapsed_ms", status.TimeElapsedMillis,
		"gc_efficiency", status.GCEfficiency,
		"cells_used", status.CellsUsed,
		"total_cells", status.TotalCells,
		"symbols", status.NumSymbols,
		"globals", status.NumGlobals,
		"gc_roots", status.NumGCRoots,
	)
}

func (i *SlogInterceptor) Panic(err *VMError) {
	attrs := []any{
		"message", err.Message,
		"file", err.File,
		"line", err.Line,
		"stack", fmt.Sprintf("S: %s\nE: %s\nC: %s\nD: %s", err.Registers.S, err.Registers.E, err.Registers.C, err.Registers.D),
	}
	for depth, frame := range err.Trace {
		attrs = append(attrs, fmt.Sprintf("trace[%d]", depth), fmt.Sprintf("%s:%d", frame.File, frame.Line))
	}
	i.log.Error("vm panic", attrs...)
}
