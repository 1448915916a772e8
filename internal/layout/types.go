package layout

import "github.com/shopspring/decimal"

// Spec defines a combinatorial mixture as an ordered list of slots.
// Each slot holds the 1-indexed source-well numbers that are
// interchangeable at that position of the mixture. Slot order is
// significant: it fixes the enumeration order of the product.
type Spec struct {
	Slots [][]int
}

// Combination is one tuple drawn from the Cartesian product of a Spec,
// holding exactly one source-well number per slot, in slot order.
type Combination []int

// Geometry describes the destination plate and how the plan is laid
// onto it. WellsPerColumn and Columns are the physical plate shape
// (8x12 for a standard 96-well plate). FirstColumn is the 1-indexed
// column where combination wells start. TemplateColumns, when set,
// overrides sequential placement with an explicit column list.
type Geometry struct {
	WellsPerColumn  int
	Columns         int
	FirstColumn     int
	TemplateColumns []int
}

// Plan is the computed layout for one Spec on one plate. Combinations
// are in product order; combination i (0-based) occupies destination
// well i+1 of the column sequence in Columns. StandardsColumn is the
// trailing column reserved for internal standards and controls.
type Plan struct {
	Total           int
	Combinations    []Combination
	Columns         []int
	StandardsColumn int

	geometry Geometry
}

// TransferStep is a single planned pipetting step: move Volume
// microliters from SourceWell to DestinationWell (both 1-indexed,
// column-major).
type TransferStep struct {
	SourceWell      int
	DestinationWell int
	Volume          decimal.Decimal
}

// Rotation describes how a fixed per-dispense volume drains a series of
// reservoir wells while servicing sequential destination wells.
type Rotation struct {
	DispensesPerWell int
	ReservoirWells   int
	Steps            []RotationStep
}

// RotationStep pairs a reservoir well with the destination it services.
type RotationStep struct {
	ReservoirWell   int
	DestinationWell int
}

// Planner describes the behaviour required from a layout planner.
type Planner interface {
	BuildPlan(spec Spec, geom Geometry) (*Plan, error)
}
