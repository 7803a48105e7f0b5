// Package config holds the process-wide settings.
//
// Settings are a fixed, ordered list of named options with defaults. Values
// are layered with viper, lowest precedence first: defaults, settings file,
// SQLGATE_* environment variables, explicit overrides. Settings are
// read-only once Load returns.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for settings.
const EnvPrefix = "SQLGATE"

// Option is one named setting.
type Option struct {
	Name    string
	Default any
	Help    string
}

// Options lists every setting in display order.
var Options = []Option{
	{"default_page_size", 100, "Default page size for the table view"},
	{"max_returned_rows", 1000, "Maximum rows that can be returned from a table or custom query"},
	{"num_sql_threads", 3, "Number of threads in the thread pool for executing SQLite queries"},
	{"sql_time_limit_ms", 1000, "Time limit for a SQL query in milliseconds"},
	{"default_facet_size", 30, "Number of values to return for requested facets"},
	{"facet_time_limit_ms", 200, "Time limit for calculating a requested facet"},
	{"facet_suggest_time_limit_ms", 50, "Time limit for calculating a suggested facet"},
	{"hash_urls", false, "Include DB file contents hash in URLs, for far-future caching"},
	{"allow_facet", true, "Allow users to specify columns to facet using ?_facet= parameter"},
	{"allow_download", true, "Allow users to download the original SQLite database files"},
	{"suggest_facets", true, "Calculate and display suggested facets"},
	{"allow_sql", true, "Allow arbitrary SQL queries via ?sql= parameter"},
	{"default_cache_ttl", 5, "Default HTTP cache TTL (used in Cache-Control: max-age= header)"},
	{"default_cache_ttl_hashed", 365 * 24 * 60 * 60, "Default HTTP cache TTL for hashed URL pages"},
	{"cache_size_kb", 0, "SQLite cache size in KB (0 == use SQLite default)"},
	{"allow_csv_stream", true, "Allow .csv?_stream=1 to download all rows (ignoring max_returned_rows)"},
	{"max_csv_mb", 100, "Maximum size allowed for CSV export in MB - set 0 to disable this limit"},
	{"truncate_cells_html", 2048, "Truncate cells longer than this in HTML table view - set 0 to disable"},
	{"force_https_urls", false, "Force URLs in API output to always use https:// protocol"},
}

func lookupOption(name string) (Option, bool) {
	for _, o := range Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Settings is the resolved, read-only settings view.
type Settings struct {
	values map[string]any
}

// Defaults returns settings with every option at its default.
func Defaults() *Settings {
	s, err := Load(LoadOptions{SkipEnv: true})
	if err != nil {
		// Defaults alone cannot fail to resolve.
		panic(err)
	}
	return s
}

// LoadOptions controls where settings come from.
type LoadOptions struct {
	// File is an optional settings file (yaml, json or toml).
	File string

	// Overrides are "name:value" pairs, highest precedence.
	Overrides []string

	// SkipEnv disables SQLGATE_* environment lookups (tests).
	SkipEnv bool
}

// Load resolves settings from defaults, file, environment and overrides.
func Load(opts LoadOptions) (*Settings, error) {
	v := viper.New()
	for _, o := range Options {
		v.SetDefault(o.Name, o.Default)
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", opts.File, err)
		}
		for _, key := range v.AllKeys() {
			if _, ok := lookupOption(key); !ok {
				return nil, fmt.Errorf("%s: unknown setting %q", opts.File, key)
			}
		}
	}

	if !opts.SkipEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.AutomaticEnv()
	}

	for _, raw := range opts.Overrides {
		name, value, err := parseOverride(raw)
		if err != nil {
			return nil, err
		}
		v.Set(name, value)
	}

	s := &Settings{values: make(map[string]any, len(Options))}
	for _, o := range Options {
		val, err := typed(v, o)
		if err != nil {
			return nil, err
		}
		s.values[o.Name] = val
	}
	return s, nil
}

// parseOverride parses "name:value" into a typed value for the option.
func parseOverride(raw string) (string, any, error) {
	name, value, ok := strings.Cut(raw, ":")
	if !ok {
		return "", nil, fmt.Errorf("setting %q: expected name:value", raw)
	}
	o, known := lookupOption(name)
	if !known {
		return "", nil, fmt.Errorf("unknown setting %q", name)
	}
	switch o.Default.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return "", nil, fmt.Errorf("setting %s: %q is not a boolean", name, value)
		}
		return name, b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", nil, fmt.Errorf("setting %s: %q is not an integer", name, value)
		}
		return name, n, nil
	default:
		return name, value, nil
	}
}

// typed reads an option from viper coerced to its default's type.
// Environment values arrive as strings, so they are validated here.
func typed(v *viper.Viper, o Option) (any, error) {
	raw := v.Get(o.Name)
	switch o.Default.(type) {
	case bool:
		if str, ok := raw.(string); ok {
			b, err := strconv.ParseBool(str)
			if err != nil {
				return nil, fmt.Errorf("setting %s: %q is not a boolean", o.Name, str)
			}
			return b, nil
		}
		return v.GetBool(o.Name), nil
	case int:
		if str, ok := raw.(string); ok {
			n, err := strconv.Atoi(strings.TrimSpace(str))
			if err != nil {
				return nil, fmt.Errorf("setting %s: %q is not an integer", o.Name, str)
			}
			return n, nil
		}
		return v.GetInt(o.Name), nil
	default:
		return v.GetString(o.Name), nil
	}
}

// Get returns the value of a setting, or nil for unknown names.
func (s *Settings) Get(name string) any {
	return s.values[name]
}

// Int returns an integer setting; 0 for unknown or non-integer names.
func (s *Settings) Int(name string) int {
	n, _ := s.values[name].(int)
	return n
}

// Bool returns a boolean setting; false for unknown or non-boolean names.
func (s *Settings) Bool(name string) bool {
	b, _ := s.values[name].(bool)
	return b
}

// Dict returns every setting, fully resolved.
func (s *Settings) Dict() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Names returns setting names sorted alphabetically.
func (s *Settings) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// envName returns the environment variable consulted for a setting.
func envName(name string) string {
	return EnvPrefix + "_" + strings.ToUpper(name)
}

// EnvOverrides reports which settings are currently set through the
// environment, for diagnostics.
func EnvOverrides() []string {
	var set []string
	for _, o := range Options {
		if _, ok := os.LookupEnv(envName(o.Name)); ok {
			set = append(set, o.Name)
		}
	}
	return set
}
