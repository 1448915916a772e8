package layout

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

type productPlanner struct{}

// New creates a Planner that enumerates the full Cartesian product.
func New() Planner {
	return &productPlanner{}
}

// Validate checks the spec invariants: at least one slot, no empty
// slots, and strictly positive well numbers.
func (s Spec) Validate() error {
	if len(s.Slots) == 0 {
		return fmt.Errorf("%w: no slots", ErrInvalidSpec)
	}
	for i, slot := range s.Slots {
		if len(slot) == 0 {
			return fmt.Errorf("%w: slot %d is empty", ErrInvalidSpec, i+1)
		}
		for _, well := range slot {
			if well <= 0 {
				return fmt.Errorf("%w: slot %d contains well %d", ErrInvalidSpec, i+1, well)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the spec.
func (s Spec) Clone() Spec {
	if len(s.Slots) == 0 {
		return Spec{}
	}
	out := make([][]int, len(s.Slots))
	for i, slot := range s.Slots {
		out[i] = make([]int, len(slot))
		copy(out[i], slot)
	}
	return Spec{Slots: out}
}

// TotalCombinations returns the product of the slot lengths without
// materializing the product.
func TotalCombinations(spec Spec) (int, error) {
	if err := spec.Validate(); err != nil {
		return 0, err
	}
	total := 1
	for _, slot := range spec.Slots {
		if total > math.MaxInt/len(slot) {
			return 0, ErrSpecTooLarge
		}
		total *= len(slot)
	}
	return total, nil
}

// Enumerate produces every combination in lexicographic product order:
// slot 0 varies slowest, the last slot varies fastest. The order is
// fully determined by the spec, so repeated calls yield identical
// output.
func Enumerate(spec Spec) ([]Combination, error) {
	total, err := TotalCombinations(spec)
	if err != nil {
		return nil, err
	}

	out := make([]Combination, 0, total)
	indices := make([]int, len(spec.Slots))
	for {
		combo := make(Combination, len(spec.Slots))
		for i, slot := range spec.Slots {
			combo[i] = slot[indices[i]]
		}
		out = append(out, combo)

		pos := len(spec.Slots) - 1
		for ; pos >= 0; pos-- {
			indices[pos]++
			if indices[pos] < len(spec.Slots[pos]) {
				break
			}
			indices[pos] = 0
		}
		if pos < 0 {
			return out, nil
		}
	}
}

func (p *productPlanner) BuildPlan(spec Spec, geom Geometry) (*Plan, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	for i, slot := range spec.Slots {
		for _, well := range slot {
			if well > geom.Wells() {
				return nil, fmt.Errorf("%w: slot %d well %d exceeds plate well %d",
					ErrInvalidSpec, i+1, well, geom.Wells())
			}
		}
	}

	// All capacity checks run on the combination count alone, before
	// the product is materialized, so an impossible spec is rejected
	// without allocating for it.
	total, err := TotalCombinations(spec)
	if err != nil {
		return nil, err
	}

	needed := ColumnsNeeded(total, geom.WellsPerColumn)
	columns, err := geom.destinationColumns(needed)
	if err != nil {
		return nil, err
	}

	standards := ExtraColumnIndex(geom.FirstColumn, needed)
	if len(geom.TemplateColumns) > 0 {
		standards = slices.Max(columns) + 1
	}
	if standards > geom.Columns {
		return nil, fmt.Errorf("%w: standards column %d on a %d-column plate",
			ErrPlateOverflow, standards, geom.Columns)
	}
	for _, col := range geom.TemplateColumns {
		if col == standards {
			return nil, fmt.Errorf("%w: column %d", ErrColumnOverlap, col)
		}
	}

	combos, err := Enumerate(spec)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Total:           total,
		Combinations:    combos,
		Columns:         columns,
		StandardsColumn: standards,
		geometry:        geom,
	}, nil
}

// destinationColumns resolves the columns that hold the combination
// wells: the configured template columns when present, otherwise a
// sequential run starting at FirstColumn.
func (g Geometry) destinationColumns(needed int) ([]int, error) {
	if len(g.TemplateColumns) > 0 {
		if needed > len(g.TemplateColumns) {
			return nil, fmt.Errorf("%w: need %d columns but only %d template columns configured",
				ErrPlateOverflow, needed, len(g.TemplateColumns))
		}
		out := make([]int, needed)
		copy(out, g.TemplateColumns)
		return out, nil
	}

	last := g.FirstColumn + needed - 1
	if last > g.Columns {
		return nil, fmt.Errorf("%w: need columns %d-%d on a %d-column plate",
			ErrPlateOverflow, g.FirstColumn, last, g.Columns)
	}
	out := make([]int, needed)
	for i := range out {
		out[i] = g.FirstColumn + i
	}
	return out, nil
}

// Transfers expands the plan into pipetting steps: for each combination,
// one step per slot value into that combination's destination well, in
// enumeration order. All steps use the same volume.
func (p *Plan) Transfers(volume decimal.Decimal) ([]TransferStep, error) {
	if !volume.IsPositive() {
		return nil, fmt.Errorf("%w: transfer volume %s", ErrInvalidVolume, volume)
	}

	steps := make([]TransferStep, 0, len(p.Combinations)*len(p.Combinations[0]))
	for i, combo := range p.Combinations {
		dest := p.destinationWell(i)
		for _, source := range combo {
			steps = append(steps, TransferStep{
				SourceWell:      source,
				DestinationWell: dest,
				Volume:          volume,
			})
		}
	}
	return steps, nil
}

// StandardsWells maps 1-indexed row positions into wells of the
// standards column, leaving unlisted rows empty for controls.
func (p *Plan) StandardsWells(rows []int) ([]int, error) {
	wells := make([]int, 0, len(rows))
	for _, row := range rows {
		if row < 1 || row > p.geometry.WellsPerColumn {
			return nil, fmt.Errorf("%w: standards row %d", ErrInvalidCount, row)
		}
		wells = append(wells, (p.StandardsColumn-1)*p.geometry.WellsPerColumn+row)
	}
	return wells, nil
}

// destinationWell returns the 1-indexed destination well of combination
// i (0-based), honouring the plan's column sequence.
func (p *Plan) destinationWell(i int) int {
	column := p.Columns[i/p.geometry.WellsPerColumn]
	row := i % p.geometry.WellsPerColumn
	return (column-1)*p.geometry.WellsPerColumn + row + 1
}
