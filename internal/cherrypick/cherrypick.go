// Package cherrypick parses hand-authored cherrypicking tables into
// validated transfer steps. The expected document is a CSV with a
// header row of source_well, destination_well, volume; well names are
// validated against a plate geometry and volumes must be positive.
package cherrypick

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/biofoundry/plate-planner/internal/layout"
)

var (
	// ErrMissingHeader is returned when the document has no header row or
	// the header lacks a required column.
	ErrMissingHeader = errors.New("cherrypick table must start with a source_well, destination_well, volume header")
	// ErrEmptyTable is returned when the document has a header but no rows.
	ErrEmptyTable = errors.New("cherrypick table has no rows")
)

var requiredColumns = []string{"source_well", "destination_well", "volume"}

// Pick is one validated cherrypicking row: transfer Volume microliters
// from SourceWell to DestinationWell, both plate well names.
type Pick struct {
	SourceWell      string
	DestinationWell string
	Volume          decimal.Decimal
}

// Parse reads a cherrypicking CSV document and validates every row
// against the given plate geometry. Rows are returned in document
// order, which is the order the transfers will run in.
func Parse(r io.Reader, geom layout.Geometry) ([]Pick, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	fields, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	var picks []Pick
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		pick, err := parseRecord(record, fields, geom)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		picks = append(picks, pick)
	}

	if len(picks) == 0 {
		return nil, ErrEmptyTable
	}
	return picks, nil
}

// headerIndex maps required column names to their positions, accepting
// any column order and extra columns.
func headerIndex(header []string) (map[string]int, error) {
	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := fields[name]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMissingHeader, name)
		}
	}
	return fields, nil
}

func parseRecord(record []string, fields map[string]int, geom layout.Geometry) (Pick, error) {
	get := func(name string) (string, error) {
		idx := fields[name]
		if idx >= len(record) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(record[idx]), nil
	}

	source, err := get("source_well")
	if err != nil {
		return Pick{}, err
	}
	if _, err := geom.ParseWell(source); err != nil {
		return Pick{}, fmt.Errorf("source well: %w", err)
	}

	destination, err := get("destination_well")
	if err != nil {
		return Pick{}, err
	}
	if _, err := geom.ParseWell(destination); err != nil {
		return Pick{}, fmt.Errorf("destination well: %w", err)
	}

	rawVolume, err := get("volume")
	if err != nil {
		return Pick{}, err
	}
	volume, err := decimal.NewFromString(rawVolume)
	if err != nil {
		return Pick{}, fmt.Errorf("volume %q: %w", rawVolume, err)
	}
	if !volume.IsPositive() {
		return Pick{}, fmt.Errorf("%w: volume %s", layout.ErrInvalidVolume, volume)
	}

	return Pick{
		SourceWell:      source,
		DestinationWell: destination,
		Volume:          volume,
	}, nil
}

// TotalVolume sums the volume of all picks.
func TotalVolume(picks []Pick) decimal.Decimal {
	total := decimal.Zero
	for _, pick := range picks {
		total = total.Add(pick.Volume)
	}
	return total
}
