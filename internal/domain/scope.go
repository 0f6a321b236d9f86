package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Dimension is one contextual axis a pattern can be scoped by.
// The set is fixed and enumerable so subset enumeration stays tractable.
type Dimension uint8

const (
	DimRegime     Dimension = iota // market regime phase (bull/bear/neutral/volatile)
	DimSizeBucket                  // small/medium/large relative position size
	DimTimeframe                   // 1h/4h/1d holding frame
	DimMode                        // aggressiveness mode (conservative/balanced/aggressive)
	DimSession                     // trading session (asia/europe/us/offhours)
	DimAssetClass                  // spot/perp/index

	NumDimensions = 6
)

var dimensionNames = [NumDimensions]string{
	"regime", "size_bucket", "timeframe", "mode", "session", "asset_class",
}

// String returns the canonical dimension name
func (d Dimension) String() string {
	if int(d) < len(dimensionNames) {
		return dimensionNames[d]
	}
	return fmt.Sprintf("dim_%d", d)
}

// DimensionFromString resolves a canonical name back to its Dimension
func DimensionFromString(name string) (Dimension, error) {
	for i, n := range dimensionNames {
		if n == name {
			return Dimension(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scope dimension: %s", name)
}

// ScopeMask is a presence bitmask over dimensions (bit i = dimension i set)
type ScopeMask uint16

// Has reports whether the mask includes a dimension
func (m ScopeMask) Has(d Dimension) bool {
	return m&(1<<d) != 0
}

// Bits returns the number of dimensions present
func (m ScopeMask) Bits() int {
	count := 0
	for d := Dimension(0); d < NumDimensions; d++ {
		if m.Has(d) {
			count++
		}
	}
	return count
}

// Scope is a fixed-dimension context record with a presence bitmask.
type Scope struct {
	values [NumDimensions]string
	mask   ScopeMask
}

// NewScope builds a scope from dimension values. Empty values are ignored.
func NewScope(values map[Dimension]string) Scope {
	var s Scope
	for d, v := range values {
		if v == "" || int(d) >= NumDimensions {
			continue
		}
		s.values[d] = v
		s.mask |= 1 << d
	}
	return s
}

// ParseScope builds a scope from a name->value map (e.g. decoded JSON)
func ParseScope(values map[string]string) (Scope, error) {
	byDim := make(map[Dimension]string, len(values))
	for name, v := range values {
		d, err := DimensionFromString(name)
		if err != nil {
			return Scope{}, err
		}
		byDim[d] = v
	}
	return NewScope(byDim), nil
}

// Get returns the value of a dimension and whether it is present
func (s Scope) Get(d Dimension) (string, bool) {
	if !s.mask.Has(d) {
		return "", false
	}
	return s.values[d], true
}

// Mask returns the presence bitmask
func (s Scope) Mask() ScopeMask {
	return s.mask
}

// IsEmpty reports whether no dimension is set
func (s Scope) IsEmpty() bool {
	return s.mask == 0
}

// Values returns the present dimensions as a name->value map
func (s Scope) Values() map[string]string {
	out := make(map[string]string, s.mask.Bits())
	for d := Dimension(0); d < NumDimensions; d++ {
		if s.mask.Has(d) {
			out[d.String()] = s.values[d]
		}
	}
	return out
}

// Contains reports whether sub is a subset of this scope: every dimension
// present in sub is present here with an identical value.
func (s Scope) Contains(sub Scope) bool {
	if s.mask&sub.mask != sub.mask {
		return false
	}
	for d := Dimension(0); d < NumDimensions; d++ {
		if sub.mask.Has(d) && s.values[d] != sub.values[d] {
			return false
		}
	}
	return true
}

// Restrict keeps only the dimensions named by mask
func (s Scope) Restrict(mask ScopeMask) Scope {
	var out Scope
	for d := Dimension(0); d < NumDimensions; d++ {
		if mask.Has(d) && s.mask.Has(d) {
			out.values[d] = s.values[d]
			out.mask |= 1 << d
		}
	}
	return out
}

// Subsets enumerates every non-empty sub-scope of this scope, one per
// non-empty subset of the present dimensions (up to 2^d - 1).
func (s Scope) Subsets() []Scope {
	var present []Dimension
	for d := Dimension(0); d < NumDimensions; d++ {
		if s.mask.Has(d) {
			present = append(present, d)
		}
	}

	n := len(present)
	if n == 0 {
		return nil
	}

	subsets := make([]Scope, 0, (1<<n)-1)
	for bits := 1; bits < (1 << n); bits++ {
		var sub Scope
		for i, d := range present {
			if bits&(1<<i) != 0 {
				sub.values[d] = s.values[d]
				sub.mask |= 1 << d
			}
		}
		subsets = append(subsets, sub)
	}
	return subsets
}

// Parents returns every sub-scope with exactly one dimension removed.
// A single-dimension scope has one parent: the empty (global) scope.
func (s Scope) Parents() []Scope {
	if s.mask == 0 {
		return nil
	}
	var parents []Scope
	for d := Dimension(0); d < NumDimensions; d++ {
		if s.mask.Has(d) {
			parents = append(parents, s.Restrict(s.mask&^(1<<d)))
		}
	}
	return parents
}

// Key returns the canonical string form: dimension=value pairs in fixed
// dimension order, "|"-delimited. Logically identical scopes always
// produce the same key. The empty scope's key is "global".
func (s Scope) Key() string {
	if s.mask == 0 {
		return "global"
	}
	parts := make([]string, 0, s.mask.Bits())
	for d := Dimension(0); d < NumDimensions; d++ {
		if s.mask.Has(d) {
			parts = append(parts, d.String()+"="+s.values[d])
		}
	}
	return strings.Join(parts, "|")
}

// MarshalJSON encodes the scope as a name->value object
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes a name->value object into a scope
func (s *Scope) UnmarshalJSON(data []byte) error {
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	parsed, err := ParseScope(values)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PatternKey builds a deterministic pattern key from component values.
// Components are sorted and delimited so logically identical patterns
// hash to the same key irrespective of input order.
func PatternKey(components ...string) string {
	cleaned := make([]string, 0, len(components))
	for _, c := range components {
		c = strings.TrimSpace(strings.ToLower(c))
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	sort.Strings(cleaned)
	return strings.Join(cleaned, "|")
}
