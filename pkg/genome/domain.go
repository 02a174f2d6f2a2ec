package genome

import (
	"math"
	"math/rand"
	"sort"

	"github.com/XiaoConstantine/evoretrieve/pkg/errors"
)

// GeneKind discriminates the two gene value families.
type GeneKind int

const (
	Categorical GeneKind = iota
	Numeric
)

// GeneValue is a tagged union holding either a categorical or numeric value.
type GeneValue struct {
	Kind GeneKind `json:"kind"`
	Str  string   `json:"str,omitempty"`
	Num  float64  `json:"num,omitempty"`
}

// CategoricalValue constructs a categorical gene value.
func CategoricalValue(s string) GeneValue {
	return GeneValue{Kind: Categorical, Str: s}
}

// NumericValue constructs a numeric gene value.
func NumericValue(v float64) GeneValue {
	return GeneValue{Kind: Numeric, Num: v}
}

// Equal reports whether two gene values are identical.
func (v GeneValue) Equal(other GeneValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == Categorical {
		return v.Str == other.Str
	}
	return v.Num == other.Num
}

// Domain describes the set of legal values for one gene and how to sample,
// perturb and compare values within it.
type Domain interface {
	Kind() GeneKind
	Validate() error

	// Sample draws a uniform random value from the domain.
	Sample(rng *rand.Rand) GeneValue

	// Perturb replaces the current value. Categorical domains resample
	// excluding the current value so a mutation always changes the gene;
	// numeric domains apply Gaussian noise scaled to the range, then clamp
	// and snap to the nearest valid step.
	Perturb(current GeneValue, rng *rand.Rand) GeneValue

	// Distance returns a normalized [0,1] distance between two values.
	Distance(a, b GeneValue) float64
}

// CategoricalDomain enumerates the legal values of a categorical gene.
type CategoricalDomain struct {
	Values []string
}

func (d CategoricalDomain) Kind() GeneKind { return Categorical }

func (d CategoricalDomain) Validate() error {
	if len(d.Values) == 0 {
		return errors.New(errors.ValidationFailed, "categorical domain has no values")
	}
	seen := make(map[string]bool, len(d.Values))
	for _, v := range d.Values {
		if seen[v] {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "categorical domain has duplicate value"),
				errors.Fields{"value": v},
			)
		}
		seen[v] = true
	}
	return nil
}

func (d CategoricalDomain) Sample(rng *rand.Rand) GeneValue {
	return CategoricalValue(d.Values[rng.Intn(len(d.Values))])
}

func (d CategoricalDomain) Perturb(current GeneValue, rng *rand.Rand) GeneValue {
	if len(d.Values) == 1 {
		return CategoricalValue(d.Values[0])
	}
	// Resample excluding the current value so mutation is guaranteed to
	// change the gene.
	idx := rng.Intn(len(d.Values) - 1)
	for _, v := range d.Values {
		if v == current.Str {
			continue
		}
		if idx == 0 {
			return CategoricalValue(v)
		}
		idx--
	}
	// Current value not in domain; fall back to uniform sample.
	return d.Sample(rng)
}

func (d CategoricalDomain) Distance(a, b GeneValue) float64 {
	if a.Str == b.Str {
		return 0
	}
	return 1
}

// NumericDomain describes a numeric gene constrained to Min..Max in Step
// increments.
type NumericDomain struct {
	Min  float64
	Max  float64
	Step float64
}

// noiseScale is the Gaussian mutation sigma as a fraction of the range.
const noiseScale = 0.2

func (d NumericDomain) Kind() GeneKind { return Numeric }

func (d NumericDomain) Validate() error {
	if d.Max <= d.Min {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "numeric domain max must exceed min"),
			errors.Fields{"min": d.Min, "max": d.Max},
		)
	}
	if d.Step <= 0 {
		return errors.New(errors.ValidationFailed, "numeric domain step must be positive")
	}
	steps := (d.Max - d.Min) / d.Step
	if math.Abs(steps-math.Round(steps)) > 1e-9 {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "numeric domain step must divide the range"),
			errors.Fields{"min": d.Min, "max": d.Max, "step": d.Step},
		)
	}
	return nil
}

func (d NumericDomain) Sample(rng *rand.Rand) GeneValue {
	n := int(math.Round((d.Max-d.Min)/d.Step)) + 1
	return NumericValue(d.Min + float64(rng.Intn(n))*d.Step)
}

func (d NumericDomain) Perturb(current GeneValue, rng *rand.Rand) GeneValue {
	sigma := (d.Max - d.Min) * noiseScale
	v := current.Num + rng.NormFloat64()*sigma
	return NumericValue(d.snap(v))
}

// snap clamps v to [Min,Max] and rounds to the nearest step increment.
func (d NumericDomain) snap(v float64) float64 {
	if v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	steps := math.Round((v - d.Min) / d.Step)
	return d.Min + steps*d.Step
}

func (d NumericDomain) Distance(a, b GeneValue) float64 {
	return math.Abs(a.Num-b.Num) / (d.Max - d.Min)
}

// Space is the validated collection of gene domains a strategy genome is
// drawn from. Construction validates every domain once so the genetic
// operators can treat genomes as well-formed (malformed domains are a
// configuration error, not a runtime one).
type Space struct {
	domains map[string]Domain
	names   []string
}

// NewSpace validates the supplied domains and returns a Space.
func NewSpace(domains map[string]Domain) (*Space, error) {
	if len(domains) == 0 {
		return nil, errors.New(errors.ValidationFailed, "gene space has no domains")
	}
	names := make([]string, 0, len(domains))
	for name, d := range domains {
		if err := d.Validate(); err != nil {
			return nil, errors.WithFields(err, errors.Fields{"gene": name})
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return &Space{domains: domains, names: names}, nil
}

// Names returns the gene names in deterministic (sorted) order.
func (s *Space) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Domain returns the domain for a gene name.
func (s *Space) Domain(name string) (Domain, bool) {
	d, ok := s.domains[name]
	return d, ok
}

// ValidateGenes checks that a gene map covers exactly the space's genes with
// values of the right kind.
func (s *Space) ValidateGenes(genes map[string]GeneValue) error {
	if len(genes) != len(s.domains) {
		return errors.WithFields(
			errors.New(errors.ValidationFailed, "gene map does not cover the space"),
			errors.Fields{"want": len(s.domains), "got": len(genes)},
		)
	}
	for name, v := range genes {
		d, ok := s.domains[name]
		if !ok {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "unknown gene"),
				errors.Fields{"gene": name},
			)
		}
		if d.Kind() != v.Kind {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "gene value kind mismatch"),
				errors.Fields{"gene": name},
			)
		}
	}
	return nil
}
