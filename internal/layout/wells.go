package layout

import (
	"fmt"
	"strconv"
)

// DefaultGeometry returns the standard 96-well plate: 8 wells per
// column, 12 columns, plans starting at column 1.
func DefaultGeometry() Geometry {
	return Geometry{WellsPerColumn: 8, Columns: 12, FirstColumn: 1}
}

// Validate checks the geometry invariants.
func (g Geometry) Validate() error {
	if g.WellsPerColumn < 1 || g.Columns < 1 {
		return fmt.Errorf("%w: %d wells per column, %d columns", ErrInvalidGeometry, g.WellsPerColumn, g.Columns)
	}
	if g.WellsPerColumn > 26 {
		return fmt.Errorf("%w: %d wells per column cannot be row-lettered", ErrInvalidGeometry, g.WellsPerColumn)
	}
	if g.FirstColumn < 1 || g.FirstColumn > g.Columns {
		return fmt.Errorf("%w: first column %d", ErrInvalidGeometry, g.FirstColumn)
	}
	seen := make(map[int]bool, len(g.TemplateColumns))
	for _, col := range g.TemplateColumns {
		if col < 1 || col > g.Columns {
			return fmt.Errorf("%w: template column %d", ErrInvalidGeometry, col)
		}
		if seen[col] {
			return fmt.Errorf("%w: template column %d listed twice", ErrInvalidGeometry, col)
		}
		seen[col] = true
	}
	return nil
}

// Clone returns a deep copy of the geometry.
func (g Geometry) Clone() Geometry {
	out := g
	if len(g.TemplateColumns) > 0 {
		out.TemplateColumns = make([]int, len(g.TemplateColumns))
		copy(out.TemplateColumns, g.TemplateColumns)
	}
	return out
}

// Wells returns the total well count of the plate.
func (g Geometry) Wells() int {
	return g.WellsPerColumn * g.Columns
}

// WellName converts a 1-indexed, column-major well number into its
// plate name: wells run A1,B1..H1,A2.. on an 8-row plate.
func (g Geometry) WellName(index int) (string, error) {
	if index < 1 || index > g.Wells() {
		return "", fmt.Errorf("%w: well %d on a %d-well plate", ErrInvalidCount, index, g.Wells())
	}
	row := (index - 1) % g.WellsPerColumn
	column := (index-1)/g.WellsPerColumn + 1
	return string(rune('A'+row)) + strconv.Itoa(column), nil
}

// ParseWell converts a plate well name such as "A1" or "H12" into its
// 1-indexed, column-major well number.
func (g Geometry) ParseWell(name string) (int, error) {
	if len(name) < 2 {
		return 0, fmt.Errorf("%w: well name %q", ErrInvalidCount, name)
	}
	letter := name[0]
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	row := int(letter - 'A')
	if row < 0 || row >= g.WellsPerColumn {
		return 0, fmt.Errorf("%w: well name %q: expected row letter A-%c", ErrInvalidCount, name, 'A'+g.WellsPerColumn-1)
	}
	column, err := strconv.Atoi(name[1:])
	if err != nil || column < 1 || column > g.Columns {
		return 0, fmt.Errorf("%w: well name %q: column out of range", ErrInvalidCount, name)
	}
	return (column-1)*g.WellsPerColumn + row + 1, nil
}
