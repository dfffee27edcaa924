package pimii

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineSettings is the full parameter bag an Engine is built from:
// GC tuning plus the handful of scalars the original exposed as
// QSettings keys (home path, source search list, status-report
// cadence). The zero value is an empty struct with no GC tuning — build
// one with DefaultEngineSettings rather than using &EngineSettings{}.
type EngineSettings struct {
	GC             GCSettings `yaml:"gc"`
	HomePath       string     `yaml:"home_path"`
	SourcePaths    []string   `yaml:"source_paths"`
	ReportInterval int64      `yaml:"report_interval"`
}

// DefaultEngineSettings mirrors the original's built-in defaults.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		GC:             DefaultGCSettings(),
		HomePath:       ".",
		ReportInterval: reportInterval,
	}
}

// LoadEngineSettings reads a YAML document at path over top of
// DefaultEngineSettings, so a config file only needs to name the
// fields it overrides.
func LoadEngineSettings(path string) (EngineSettings, error) {
	settings := DefaultEngineSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("reading engine settings %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing engine settings %q: %w", path, err)
	}
	return settings, nil
}

// cfgValType tags a value stored in a Config, panicking on a type
// mismatch between Set and Get (programming error, never a runtime
// one — the teacher's config.go idiom, carried over directly).
type cfgValType int

const (
	cfgValUndefined cfgValType = iota
	cfgValBool
	cfgValInt
	cfgValString
)

func (t cfgValType) String() string {
	switch t {
	case cfgValBool:
		return "bool"
	case cfgValInt:
		return "int"
	case cfgValString:
		return "string"
	default:
		return "undefined"
	}
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) checkType(t cfgValType) {
	if v.typ != t {
		panic(fmt.Sprintf("can't retrieve `%s` from `%s` value", t, v.typ))
	}
}

// RuntimeConfig is a small freeform parameter bag, keyed by dotted
// path, for settings that don't warrant their own EngineSettings
// field (e.g. per-embedding feature toggles a host application wants
// to thread through to BIFs via CallContext.Engine().Config()).
type RuntimeConfig map[string]*cfgVal

// NewRuntimeConfig returns an empty config.
func NewRuntimeConfig() RuntimeConfig { return make(RuntimeConfig) }

func (c RuntimeConfig) SetBool(path string, v bool) { c[path] = &cfgVal{typ: cfgValBool, asBool: v} }
func (c RuntimeConfig) SetInt(path string, v int)    { c[path] = &cfgVal{typ: cfgValInt, asInt: v} }
func (c RuntimeConfig) SetString(path string, v string) {
	c[path] = &cfgVal{typ: cfgValString, asString: v}
}

func (c RuntimeConfig) GetBool(path string) bool {
	val, ok := c[path]
	if !ok {
		panic(fmt.Sprintf("bool setting %q does not exist", path))
	}
	val.checkType(cfgValBool)
	return val.asBool
}

func (c RuntimeConfig) GetInt(path string) int {
	val, ok := c[path]
	if !ok {
		panic(fmt.Sprintf("int setting %q does not exist", path))
	}
	val.checkType(cfgValInt)
	return val.asInt
}

func (c RuntimeConfig) GetString(path string) string {
	val, ok := c[path]
	if !ok {
		panic(fmt.Sprintf("string setting %q does not exist", path))
	}
	val.checkType(cfgValString)
	return val.asString
}
