// Package config loads the filter configuration for bcal.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values for FilterConfig fields left unset.
const (
	DefaultJobs         = 1
	DefaultSpacing      = 1.0
	DefaultMergeBuffer  = 0.0
	DefaultCapacityHint = 1024
)

// maxFileSize bounds config files (1MB).
const maxFileSize = 1 * 1024 * 1024

// FilterConfig holds the options consumed by the tiling pipeline.
// Pointer fields distinguish "not set" from zero so partial files and
// command-line overrides compose; the Get* methods supply defaults.
type FilterConfig struct {
	// Jobs is the target parallelism passed to the partitioner.
	Jobs *uint32 `json:"jobs,omitempty" yaml:"jobs,omitempty"`

	// Spacing is the canopy bin size, in map units.
	Spacing *float64 `json:"spacing,omitempty" yaml:"spacing,omitempty"`

	// MergeBuffer is the overlap margin reserved for a future merge step.
	// It is carried into every working set and changes nothing else.
	MergeBuffer *float64 `json:"merge_buffer,omitempty" yaml:"merge_buffer,omitempty"`

	// Workers caps concurrent tiles. Zero means one worker per job.
	Workers *int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// CapacityHint sizes tile buffers when the source gives no estimate.
	CapacityHint *int `json:"capacity_hint,omitempty" yaml:"capacity_hint,omitempty"`

	// MemLimitMB is the estimated memory budget per job. Zero means no
	// limit. Reserved: recorded with the run, not enforced.
	MemLimitMB *int `json:"mem_limit_mb,omitempty" yaml:"mem_limit_mb,omitempty"`

	// DedupeBoundaries assigns points on shared tile edges to one tile.
	DedupeBoundaries *bool `json:"dedupe_boundaries,omitempty" yaml:"dedupe_boundaries,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint32(v uint32) *uint32    { return &v }

// EmptyFilterConfig returns a FilterConfig with all fields set to nil.
func EmptyFilterConfig() *FilterConfig {
	return &FilterConfig{}
}

// DefaultFilterConfig returns a FilterConfig with every field set to its
// default value.
func DefaultFilterConfig() *FilterConfig {
	return &FilterConfig{
		Jobs:             ptrUint32(DefaultJobs),
		Spacing:          ptrFloat64(DefaultSpacing),
		MergeBuffer:      ptrFloat64(DefaultMergeBuffer),
		Workers:          ptrInt(0),
		CapacityHint:     ptrInt(DefaultCapacityHint),
		MemLimitMB:       ptrInt(0),
		DedupeBoundaries: ptrBool(true),
	}
}

// LoadFilterConfig loads a FilterConfig from a .json, .yaml or .yml file.
// The file must be under 1MB. Fields omitted from the file stay nil and
// fall back to defaults through the Get* methods.
func LoadFilterConfig(path string) (*FilterConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFilterConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Merge copies every non-nil field of o over c.
func (c *FilterConfig) Merge(o *FilterConfig) {
	if o == nil {
		return
	}
	if o.Jobs != nil {
		c.Jobs = o.Jobs
	}
	if o.Spacing != nil {
		c.Spacing = o.Spacing
	}
	if o.MergeBuffer != nil {
		c.MergeBuffer = o.MergeBuffer
	}
	if o.Workers != nil {
		c.Workers = o.Workers
	}
	if o.CapacityHint != nil {
		c.CapacityHint = o.CapacityHint
	}
	if o.MemLimitMB != nil {
		c.MemLimitMB = o.MemLimitMB
	}
	if o.DedupeBoundaries != nil {
		c.DedupeBoundaries = o.DedupeBoundaries
	}
}

// Validate checks that the configuration values are valid.
func (c *FilterConfig) Validate() error {
	if c.Jobs != nil && *c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", *c.Jobs)
	}
	if c.Spacing != nil && !(*c.Spacing > 0) {
		return fmt.Errorf("spacing must be positive, got %g", *c.Spacing)
	}
	if c.MergeBuffer != nil && !(*c.MergeBuffer >= 0) {
		return fmt.Errorf("merge_buffer must be non-negative, got %g", *c.MergeBuffer)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.CapacityHint != nil && *c.CapacityHint < 0 {
		return fmt.Errorf("capacity_hint must be non-negative, got %d", *c.CapacityHint)
	}
	if c.MemLimitMB != nil && *c.MemLimitMB < 0 {
		return fmt.Errorf("mem_limit_mb must be non-negative, got %d", *c.MemLimitMB)
	}
	return nil
}

// JSON returns the configuration with defaults applied, as stored with a run.
func (c *FilterConfig) JSON() []byte {
	resolved := &FilterConfig{
		Jobs:             ptrUint32(c.GetJobs()),
		Spacing:          ptrFloat64(c.GetSpacing()),
		MergeBuffer:      ptrFloat64(c.GetMergeBuffer()),
		Workers:          ptrInt(c.GetWorkers()),
		CapacityHint:     ptrInt(c.GetCapacityHint()),
		MemLimitMB:       ptrInt(c.GetMemLimitMB()),
		DedupeBoundaries: ptrBool(c.GetDedupeBoundaries()),
	}
	data, _ := json.Marshal(resolved)
	return data
}

// GetJobs returns the jobs value or the default.
func (c *FilterConfig) GetJobs() uint32 {
	if c.Jobs == nil {
		return DefaultJobs
	}
	return *c.Jobs
}

// GetSpacing returns the spacing value or the default.
func (c *FilterConfig) GetSpacing() float64 {
	if c.Spacing == nil {
		return DefaultSpacing
	}
	return *c.Spacing
}

// GetMergeBuffer returns the merge_buffer value or the default.
func (c *FilterConfig) GetMergeBuffer() float64 {
	if c.MergeBuffer == nil {
		return DefaultMergeBuffer
	}
	return *c.MergeBuffer
}

// GetWorkers returns the workers value or the default (0 = one per job).
func (c *FilterConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetCapacityHint returns the capacity_hint value or the default.
func (c *FilterConfig) GetCapacityHint() int {
	if c.CapacityHint == nil || *c.CapacityHint == 0 {
		return DefaultCapacityHint
	}
	return *c.CapacityHint
}

// GetMemLimitMB returns the mem_limit_mb value or the default (0 = all).
func (c *FilterConfig) GetMemLimitMB() int {
	if c.MemLimitMB == nil {
		return 0
	}
	return *c.MemLimitMB
}

// GetDedupeBoundaries returns the dedupe_boundaries value or the default.
func (c *FilterConfig) GetDedupeBoundaries() bool {
	if c.DedupeBoundaries == nil {
		return true
	}
	return *c.DedupeBoundaries
}
