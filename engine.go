package pimii

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
	"sigs.k8s.io/yaml"
)

// traceArchiveThreshold is the minimum encoded size, in bytes, at which
// an archived status/panic trace entry is zstd-compressed rather than
// written out as plain text (SPEC_FULL.md §C).
const traceArchiveThreshold = 512

// statusKeyIndex maps a reserved parameter-bag key's source name
// (HOME_PATH, OP_COUNT, ...) back to its symIdx, built once from
// reservedSymbolNames so GetValue/SetValue never hardcode a second
// copy of that table.
var statusKeyIndex = func() map[string]int {
	m := make(map[string]int, numReservedSymbols-symIdxHomePath)
	for i := symIdxHomePath; i < numReservedSymbols; i++ {
		m[reservedSymbolNames[i]] = i
	}
	return m
}()

// Engine is the public entry point: it owns a Storage, a BIFRegistry,
// and a VM, and serializes every submitted execution through a single
// mutex so the single-writer discipline spec §5 requires holds even
// when Eval is called concurrently from multiple goroutines.
type Engine struct {
	storage *Storage
	bifs    *BIFRegistry
	vm      *VM
	printer *Printer

	interceptor Interceptor
	settings    EngineSettings
	sourcePaths []string
	homePath    string
	config      RuntimeConfig

	log *slog.Logger

	mu            sync.Mutex
	startedAt     time.Time
	lastPanic     []byte // archived register dump of the most recent VM panic, see archiveTraceEntry
	zstdEncoder   *zstd.Encoder
	traceAppender io.Writer // optional archive sink for status/panic trace entries, see SetTraceAppender
	includeCache  map[[32]byte]Atom // content-hash -> compiled bytecode, see bif_builtins.go's `include`
}

// NewEngine builds a ready-to-use Engine: storage, BIF registry
// (populated by registerBuiltins), and VM, wired to interceptor (or a
// SlogInterceptor over slog.Default() if nil).
func NewEngine(settings EngineSettings, interceptor Interceptor) *Engine {
	storage := NewStorage(settings.GC)
	bifs := NewBIFRegistry(storage)

	if interceptor == nil {
		interceptor = NewSlogInterceptor(nil)
	}

	e := &Engine{
		storage:     storage,
		bifs:        bifs,
		printer:     NewPrinter(storage, bifs),
		interceptor: interceptor,
		settings:    settings,
		sourcePaths: append([]string(nil), settings.SourcePaths...),
		homePath:    settings.HomePath,
		config:      NewRuntimeConfig(),
		log:         slog.Default(),
	}
	e.vm = NewVM(storage, bifs, e)
	registerBuiltins(bifs)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		panic(fmt.Sprintf("pimii: building zstd encoder: %v", err))
	}
	e.zstdEncoder = enc

	return e
}

// Storage exposes the underlying Storage, for BIFs and tests that need
// direct atom construction.
func (e *Engine) Storage() *Storage { return e.storage }

// VM exposes the underlying VM, mainly for tests asserting on register
// state after a run.
func (e *Engine) VM() *VM { return e.vm }

// Config exposes a freeform feature-toggle bag a host embedding can
// populate and BIFs can read via CallContext.Engine().Config(), for
// settings that don't warrant their own EngineSettings field.
func (e *Engine) Config() RuntimeConfig { return e.config }

// SetTraceAppender wires w as the archive sink for status/panic trace
// entries — the Go shape of original_source/tools/logger.h's Appender
// interface, which decouples "format a log entry" from "where it goes."
// Entries at or above traceArchiveThreshold bytes are zstd-compressed
// before being written to w; nil (the default) disables archiving.
func (e *Engine) SetTraceAppender(w io.Writer) { e.traceAppender = w }

// FindBIF resolves a name symbol to its BIF atom; this is the callback
// NewCompiler needs to emit direct LDC-of-BIF bytecode for names that
// aren't locals or globals.
func (e *Engine) FindBIF(nameSymbol Atom) (Atom, bool) { return e.bifs.Find(nameSymbol) }

// String renders an atom the way a REPL echoes a value (spec §6.4), for
// callers (the CLI, tests) that want to print an Eval result without
// reaching into the engine's internals.
func (e *Engine) String(a Atom) string { return e.printer.String(a) }

// AddSourcePath appends dir to the search list consulted by `include`
// and CompileFile (spec §6.1/§6.2): after the home path, directories are
// tried in the order they were added.
func (e *Engine) AddSourcePath(dir string) {
	e.sourcePaths = append(e.sourcePaths, dir)
}

func (e *Engine) lookupSource(file string) string {
	candidates := append([]string{e.homePath}, e.sourcePaths...)
	for _, dir := range candidates {
		path := filepath.Join(dir, file)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return file
}

// CompileFile locates file via the source-path search order, compiles
// it, and returns the resulting bytecode atom (NIL, with diagnostics
// sent to the Interceptor, on any compile error).
func (e *Engine) CompileFile(file string, insertStop bool) Atom {
	path := e.lookupSource(file)
	source, err := os.ReadFile(path)
	if err != nil {
		e.interceptor.Println(fmt.Sprintf("Cannot compile: %s. File was not found!", file))
		return NIL
	}
	return e.compileSource(file, string(source), insertStop, false)
}

// compileSource compiles source under file, reporting any compile
// errors to the Interceptor unless quiet is set (the `compile`/`eval`
// BIFs' silent-mode argument, spec §4.5).
func (e *Engine) compileSource(file, source string, insertStop, quiet bool) Atom {
	compiler := NewCompiler(e.storage, file, source, e.FindBIF)
	defer compiler.Release()
	code, ok := compiler.Compile(insertStop)
	if !ok {
		if !quiet {
			var buf bytes.Buffer
			fmt.Fprintf(&buf, "Compilation error(s) in: %s\n", file)
			for _, ce := range compiler.Errors() {
				fmt.Fprintf(&buf, "%d:%d: %s\n", ce.Line, ce.Column, ce.Message)
			}
			e.interceptor.Println(buf.String())
		}
		return NIL
	}
	return code
}

// includeSource resolves path via the source-path search order and
// compiles it, skipping recompilation if the file's content hash
// matches a previously compiled entry (SPEC_FULL.md §C: blake2b
// content-addressed `include` cache).
func (e *Engine) includeSource(path string) (Atom, error) {
	resolved := e.lookupSource(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		return NIL, fmt.Errorf("include: %q not found", path)
	}
	sum := blake2b.Sum256(data)
	if e.includeCache == nil {
		e.includeCache = make(map[[32]byte]Atom)
	}
	if code, ok := e.includeCache[sum]; ok {
		return code, nil
	}
	code := e.compileSource(path, string(data), true, false)
	if !IsNil(code) {
		e.includeCache[sum] = code
	}
	return code, nil
}

// runNested executes code to completion on a fresh VM sharing this
// engine's storage and BIF registry, used by the `eval`/`include`/`call`
// BIFs to synchronously invoke compiled code from within an already
// running execution. A nested panic re-panics with the same *VMError
// so it unwinds the whole outer execution, per spec §7's single VM
// panic kind.
func (e *Engine) runNested(code, env Atom, file string, line int64) Atom {
	nested := NewVM(e.storage, e.bifs, e)
	defer nested.Release()
	nested.SetCode(code, file, line)
	if !IsNil(env) {
		nested.e.Set(env)
	}
	if err := nested.Run(); err != nil {
		if ve, ok := err.(*VMError); ok {
			panic(ve)
		}
	}
	return nested.Result()
}

// Eval compiles source under filename and runs it to completion (or
// until Interrupt), returning the resulting value. Submissions are
// serialized: spec §5's "executions are serialised in submission
// order" work-queue guarantee, implemented here as a plain mutex since
// there is exactly one VM to drive.
func (e *Engine) Eval(source, filename string) (Atom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	execID := uuid.New()
	log := e.log.With("execution", execID.String(), "file", filename)
	log.Info("eval starting")

	code := e.compileSource(filename, source, true, false)
	if IsNil(code) {
		log.Warn("eval aborted: compile error")
		return NIL, fmt.Errorf("compilation failed for %s", filename)
	}

	e.vm.SetCode(code, filename, 1)
	e.startedAt = time.Now()
	if err := e.vm.Run(); err != nil {
		log.Error("eval panicked", "error", err)
		return NIL, err
	}
	result := e.vm.Result()
	log.Info("eval finished", "instructions", e.vm.instructionCounter)
	return result, nil
}

// Interrupt requests the current execution stop at its next
// instruction boundary.
func (e *Engine) Interrupt() { e.vm.Interrupt() }

// ContinueEvaluation resumes the VM's current C register, e.g. after
// an Interrupt, without recompiling anything.
func (e *Engine) ContinueEvaluation() (Atom, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.vm.Run(); err != nil {
		return NIL, err
	}
	return e.vm.Result(), nil
}

// GetValue reads one parameter-bag key by its reserved name (HOME_PATH,
// OP_COUNT, GC_COUNT, ...). Unknown names return an error.
func (e *Engine) GetValue(name string) (Atom, error) {
	idx, ok := statusKeyIndex[name]
	if !ok {
		return NIL, fmt.Errorf("unknown status key %q", name)
	}
	switch idx {
	case symIdxHomePath:
		return e.storage.MakeString(e.homePath), nil
	case symIdxOpCount:
		return e.storage.MakeNumber(e.vm.instructionCounter), nil
	case symIdxGCCount:
		return e.storage.MakeNumber(int64(e.storage.StatusNumGC())), nil
	case symIdxGCEfficiency:
		return e.storage.MakeDecimal(e.storage.StatusGCEfficiency()), nil
	case symIdxNumGCRoots:
		return e.storage.MakeNumber(int64(e.storage.StatusNumGCRoots())), nil
	case symIdxNumSymbols:
		return e.storage.MakeNumber(int64(e.storage.StatusNumSymbols())), nil
	case symIdxNumGlobals:
		return e.storage.MakeNumber(int64(e.storage.StatusNumGlobals())), nil
	case symIdxNumTotalCells:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalCells())), nil
	case symIdxNumCellsUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusCellsUsed())), nil
	case symIdxNumTotalStrings:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalStrings())), nil
	case symIdxNumStringsUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusStringsUsed())), nil
	case symIdxNumTotalLargeNumbers:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalLargeNumbers())), nil
	case symIdxNumLargeNumbersUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusLargeNumbersUsed())), nil
	case symIdxNumTotalDecimals:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalDecimals())), nil
	case symIdxNumDecimalsUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusDecimalsUsed())), nil
	case symIdxNumTotalReferences:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalReferences())), nil
	case symIdxNumReferencesUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusReferencesUsed())), nil
	case symIdxNumTotalArrays:
		return e.storage.MakeNumber(int64(e.storage.StatusTotalArrays())), nil
	case symIdxNumArraysUsed:
		return e.storage.MakeNumber(int64(e.storage.StatusArraysUsed())), nil
	default:
		return NIL, fmt.Errorf("unknown status key %q", name)
	}
}

// SetValue writes the HOME_PATH parameter-bag key; every other
// reserved key is derived and rejected with "read only" (spec §6.1).
func (e *Engine) SetValue(name string, value Atom) error {
	idx, ok := statusKeyIndex[name]
	if !ok {
		return fmt.Errorf("unknown status key %q", name)
	}
	if readOnlyStatusKeys[idx] {
		return fmt.Errorf("%s: read only", name)
	}
	if idx == symIdxHomePath {
		if !IsString(value) {
			return fmt.Errorf("HOME_PATH must be a string")
		}
		e.homePath = e.storage.GetString(value)
		return nil
	}
	return fmt.Errorf("%s: read only", name)
}

// reportStatus builds an EngineStatus snapshot, forwards it to the
// Interceptor, and archives it (see archiveTraceEntry) if a trace
// appender is configured. Called by the VM's own run loop on STOP and
// at REPORT_INTERVAL instruction boundaries.
func (e *Engine) reportStatus(vm *VM) {
	status := EngineStatus{
		InstructionsExecuted: vm.instructionCounter,
		GCRuns:                vm.gcRuns,
		TimeElapsedMillis:     time.Since(e.startedAt).Milliseconds(),
		NumGC:                 e.storage.StatusNumGC(),
		GCEfficiency:          e.storage.StatusGCEfficiency(),
		NumGCRoots:            e.storage.StatusNumGCRoots(),
		NumSymbols:            e.storage.StatusNumSymbols(),
		NumGlobals:            e.storage.StatusNumGlobals(),
		TotalCells:            e.storage.StatusTotalCells(),
		CellsUsed:             e.storage.StatusCellsUsed(),
	}
	e.interceptor.ReportStatus(status)
	if e.traceAppender != nil {
		if entry, err := yaml.Marshal(status); err == nil {
			e.archiveTraceEntry(entry)
		}
	}
}

// reportPanic forwards a VM panic to the Interceptor and retains its
// register dump (see archiveTraceEntry) as e.lastPanic, so a host
// application can pull the last crash's full trace out-of-band (e.g.
// attach it to a bug report).
func (e *Engine) reportPanic(err *VMError) {
	e.interceptor.Panic(err)
	dump := fmt.Sprintf("S: %s\nE: %s\nC: %s\nD: %s\n", err.Registers.S, err.Registers.E, err.Registers.C, err.Registers.D)
	e.lastPanic = e.archiveTraceEntry([]byte(dump))
}

// archiveTraceEntry zstd-compresses entry once it reaches
// traceArchiveThreshold bytes (small entries aren't worth the codec's
// fixed overhead), writes the result to the trace appender if one is
// configured via SetTraceAppender, and returns the bytes actually
// produced so callers needing a retained copy (reportPanic) don't
// re-derive the threshold logic themselves.
func (e *Engine) archiveTraceEntry(entry []byte) []byte {
	if len(entry) >= traceArchiveThreshold {
		entry = e.zstdEncoder.EncodeAll(entry, nil)
	}
	if e.traceAppender != nil {
		e.traceAppender.Write(entry)
	}
	return entry
}

// LastPanicDump returns the archived register dump of the most recent
// VM panic (zstd-compressed if it reached traceArchiveThreshold bytes),
// or nil if none has occurred yet.
func (e *Engine) LastPanicDump() []byte { return e.lastPanic }

// StatusYAML renders the current EngineStatus as YAML via sigs.k8s.io/yaml
// (its JSON-tag-based marshaling keeps this struct consistent with any
// JSON status endpoint a host application also exposes).
func (e *Engine) StatusYAML() ([]byte, error) {
	status := EngineStatus{
		InstructionsExecuted: e.vm.instructionCounter,
		GCRuns:                e.vm.gcRuns,
		NumGC:                 e.storage.StatusNumGC(),
		GCEfficiency:          e.storage.StatusGCEfficiency(),
		NumGCRoots:            e.storage.StatusNumGCRoots(),
		NumSymbols:            e.storage.StatusNumSymbols(),
		NumGlobals:            e.storage.StatusNumGlobals(),
		TotalCells:            e.storage.StatusTotalCells(),
		CellsUsed:             e.storage.StatusCellsUsed(),
	}
	return yaml.Marshal(status)
}
