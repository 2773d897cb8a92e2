// Package config loads selector and driver settings from CUE.
//
// A config file is unified with an embedded #Config schema that supplies
// defaults and closes the structure, so unknown fields are load errors:
//
//	selector: {
//		file_name_allowlist: ["\\.kzip$"]
//		output_group_allowlist: ["kythe_compilation_unit"]
//	}
//	driver: checkpoint_every: 100
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/bepsel/internal/driver"
	"github.com/roach88/bepsel/internal/pattern"
	"github.com/roach88/bepsel/internal/selector"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded configuration.
type Config struct {
	Selector SelectorConfig `json:"selector"`
	Driver   DriverConfig   `json:"driver"`
}

// SelectorConfig lists the regular expressions gating correlation.
type SelectorConfig struct {
	FileNameAllowlist     []string `json:"file_name_allowlist"`
	OutputGroupAllowlist  []string `json:"output_group_allowlist"`
	TargetAspectAllowlist []string `json:"target_aspect_allowlist"`
}

// DriverConfig controls the event loop.
type DriverConfig struct {
	Stream          string `json:"stream"`
	CheckpointEvery int    `json:"checkpoint_every"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Selector: SelectorConfig{
			FileNameAllowlist:     []string{`\.kzip$`},
			OutputGroupAllowlist:  []string{`.*`},
			TargetAspectAllowlist: []string{`.*`},
		},
		Driver: DriverConfig{
			Stream:          driver.DefaultStream,
			CheckpointEvery: 0,
		},
	}
}

// Load reads, decodes and validates the CUE file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes and validates CUE source. filename is used in positions.
func Parse(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate %s: %w", filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	lists := []struct {
		name     string
		patterns []string
	}{
		{"selector.file_name_allowlist", c.Selector.FileNameAllowlist},
		{"selector.output_group_allowlist", c.Selector.OutputGroupAllowlist},
		{"selector.target_aspect_allowlist", c.Selector.TargetAspectAllowlist},
	}
	for _, l := range lists {
		if len(l.patterns) == 0 {
			errs = append(errs, fmt.Errorf("%s must not be empty", l.name))
			continue
		}
		if _, err := pattern.Compile(l.patterns); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}

	if c.Driver.Stream == "" {
		errs = append(errs, errors.New("driver.stream is required"))
	}
	if c.Driver.CheckpointEvery < 0 {
		errs = append(errs, fmt.Errorf("invalid driver.checkpoint_every %d (must be >= 0)", c.Driver.CheckpointEvery))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SelectorOptions compiles the allowlists.
func (c *Config) SelectorOptions() (selector.Options, error) {
	files, err := pattern.Compile(c.Selector.FileNameAllowlist)
	if err != nil {
		return selector.Options{}, fmt.Errorf("file_name_allowlist: %w", err)
	}
	groups, err := pattern.Compile(c.Selector.OutputGroupAllowlist)
	if err != nil {
		return selector.Options{}, fmt.Errorf("output_group_allowlist: %w", err)
	}
	aspects, err := pattern.Compile(c.Selector.TargetAspectAllowlist)
	if err != nil {
		return selector.Options{}, fmt.Errorf("target_aspect_allowlist: %w", err)
	}
	return selector.Options{
		FileNameAllowlist:     files,
		OutputGroupAllowlist:  groups,
		TargetAspectAllowlist: aspects,
	}, nil
}

// DriverOptions converts driver settings to driver options.
func (c *Config) DriverOptions() []driver.Option {
	return []driver.Option{
		driver.WithStream(c.Driver.Stream),
		driver.WithCheckpointEvery(c.Driver.CheckpointEvery),
	}
}
