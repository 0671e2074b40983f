package registry

import "github.com/roach88/plent/internal/artifact"

// LabelKind selects how an entry derives artifact labels.
type LabelKind int

const (
	// LabelsFixed applies the configured list or strategy.
	LabelsFixed LabelKind = iota
	// LabelsOwned applies labels taken from a forum thread's tags.
	LabelsOwned
	// LabelsForum leaves labels as they are.
	LabelsForum
)

// LabelSpec describes the labels written into stored artifacts.
type LabelSpec struct {
	Kind     LabelKind
	Labels   []string
	Strategy string
}

// Fixed returns a fixed label spec.
func Fixed(labels ...string) LabelSpec {
	return LabelSpec{Kind: LabelsFixed, Labels: labels}
}

// Strategy is evaluated against the decoded artifact at write time.
type Strategy func(a *artifact.Artifact) []string

// Strategies maps a strategy id to its implementation.
type Strategies map[string]Strategy

// UnitFactory is the id of the strategy labelling a schematic by the
// first unit factory it contains.
const UnitFactory = "unit-factory"

var factories = map[string]bool{
	"air-factory":    true,
	"ground-factory": true,
	"naval-factory":  true,
}

// DefaultStrategies returns the built-in strategies.
func DefaultStrategies() Strategies {
	return Strategies{
		UnitFactory: func(a *artifact.Artifact) []string {
			for _, t := range a.Tiles {
				if factories[t.Block] {
					return []string{t.Block}
				}
			}
			return []string{"air-factory"}
		},
	}
}

// Apply writes the spec's labels into a. It reports false when the spec
// leaves labels untouched.
func (s LabelSpec) Apply(a *artifact.Artifact, strategies Strategies) bool {
	switch s.Kind {
	case LabelsForum:
		return false
	case LabelsOwned:
		a.SetLabels(s.Labels)
		return true
	}
	if s.Strategy != "" {
		if fn, ok := strategies[s.Strategy]; ok {
			a.SetLabels(fn(a))
			return true
		}
	}
	a.SetLabels(s.Labels)
	return true
}
