package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Dimension is one named axis of a cognitive profile.
type Dimension string

const (
	DimAttention    Dimension = "attention"
	DimMemory       Dimension = "memory"
	DimVisuospatial Dimension = "visuospatial"
	DimLanguage     Dimension = "language"
	DimReasoning    Dimension = "reasoning"
)

// Dimensions is the order in which adaptation passes are applied.
// Later passes operate on the output of earlier ones.
var Dimensions = []Dimension{
	DimAttention,
	DimMemory,
	DimVisuospatial,
	DimLanguage,
	DimReasoning,
}

const (
	MinLevel = 1
	// MaxLevel means typical ability: no adaptation needed.
	MaxLevel = 5
)

// Profile holds one level per dimension, always within [MinLevel, MaxLevel].
type Profile struct {
	levels [5]int
}

// DefaultProfile returns a profile with every dimension at MaxLevel.
func DefaultProfile() Profile {
	var p Profile
	for i := range p.levels {
		p.levels[i] = MaxLevel
	}
	return p
}

// NewProfile validates dimension names and clamps levels into range.
// Missing dimensions default to MaxLevel.
func NewProfile(levels map[string]int) (Profile, error) {
	p := DefaultProfile()
	var unknown []string
	for name, level := range levels {
		idx := dimensionIndex(Dimension(strings.ToLower(strings.TrimSpace(name))))
		if idx < 0 {
			unknown = append(unknown, name)
			continue
		}
		p.levels[idx] = clampLevel(level)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Profile{}, fmt.Errorf("unknown profile dimensions: %s", strings.Join(unknown, ", "))
	}
	return p, nil
}

// Level returns the level for d, or MaxLevel for an unknown dimension.
func (p Profile) Level(d Dimension) int {
	idx := dimensionIndex(d)
	if idx < 0 {
		return MaxLevel
	}
	if p.levels[idx] == 0 {
		return MaxLevel
	}
	return p.levels[idx]
}

// Adaptations lists, in Dimensions order, the dimensions that need a pass.
func (p Profile) Adaptations() []Dimension {
	var out []Dimension
	for _, d := range Dimensions {
		if p.Level(d) < MaxLevel {
			out = append(out, d)
		}
	}
	return out
}

// Map returns the profile as a name -> level map.
func (p Profile) Map() map[string]int {
	out := make(map[string]int, len(Dimensions))
	for _, d := range Dimensions {
		out[string(d)] = p.Level(d)
	}
	return out
}

func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

func (p *Profile) UnmarshalJSON(b []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewProfile(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func dimensionIndex(d Dimension) int {
	for i, known := range Dimensions {
		if known == d {
			return i
		}
	}
	return -1
}

func clampLevel(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
