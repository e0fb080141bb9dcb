package model

import (
	"fmt"

	"media-generation-jobs/internal/domain"
)

// ToolKind identifies which external generation capability a job invokes.
type ToolKind string

const (
	ToolImageGen ToolKind = "image-gen"
	ToolVideoGen ToolKind = "video-gen"
	ToolAudioGen ToolKind = "audio-gen"
)

// CostFormula computes the balance charge for a validated parameter set.
type CostFormula func(params map[string]any) int64

// ToolSpec declares a tool's required parameters and pricing. One generic
// submission path consumes these instead of per-tool control flow.
type ToolSpec struct {
	Kind           ToolKind
	RequiredFields []string
	Cost           CostFormula
}

type ToolRegistry struct {
	specs map[ToolKind]ToolSpec
}

func NewToolRegistry(specs ...ToolSpec) *ToolRegistry {
	r := &ToolRegistry{specs: make(map[ToolKind]ToolSpec, len(specs))}
	for _, s := range specs {
		r.specs[s.Kind] = s
	}
	return r
}

func (r *ToolRegistry) Get(kind ToolKind) (ToolSpec, bool) {
	s, ok := r.specs[kind]
	return s, ok
}

// Validate checks the required-field set for a tool. A missing field rejects
// the submission before any job is created or balance touched.
func (r *ToolRegistry) Validate(kind ToolKind, params map[string]any) error {
	spec, ok := r.specs[kind]
	if !ok {
		return fmt.Errorf("unknown tool %q: %w", kind, domain.ErrInvalidArgument)
	}
	for _, field := range spec.RequiredFields {
		v, present := params[field]
		if !present || v == nil || v == "" {
			return fmt.Errorf("missing required field %q: %w", field, domain.ErrInvalidArgument)
		}
	}
	return nil
}

// DefaultToolRegistry carries the built-in tool set. Quantities and durations
// default to 1 when absent so pricing stays total over validated input.
func DefaultToolRegistry() *ToolRegistry {
	return NewToolRegistry(
		ToolSpec{
			Kind:           ToolImageGen,
			RequiredFields: []string{"prompt"},
			Cost: func(params map[string]any) int64 {
				return 10 * intParam(params, "quantity", 1)
			},
		},
		ToolSpec{
			Kind:           ToolVideoGen,
			RequiredFields: []string{"prompt", "duration_seconds"},
			Cost: func(params map[string]any) int64 {
				return 25 * intParam(params, "duration_seconds", 1)
			},
		},
		ToolSpec{
			Kind:           ToolAudioGen,
			RequiredFields: []string{"text"},
			Cost: func(params map[string]any) int64 {
				return 15
			},
		},
	)
}

func intParam(params map[string]any, key string, def int64) int64 {
	switch v := params[key].(type) {
	case int:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	case float64:
		// JSON numbers decode as float64
		if v > 0 {
			return int64(v)
		}
	}
	return def
}
