package layout

// ColumnsNeeded returns how many plate columns hold total wells, as a
// ceiling division. Both arguments must be positive; a total that is an
// exact multiple of wellsPerColumn yields no trailing empty column.
func ColumnsNeeded(total, wellsPerColumn int) int {
	return (total + wellsPerColumn - 1) / wellsPerColumn
}

// ExtraColumnIndex returns the 1-indexed column immediately after the
// last combination column, reserved for standards and controls.
func ExtraColumnIndex(firstColumn, columnsNeeded int) int {
	return firstColumn + columnsNeeded
}
