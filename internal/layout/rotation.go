package layout

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// maxRotationDestinations bounds a single rotation plan at ten full
// 96-well plates, the most one reservoir ever services in a run.
const maxRotationDestinations = 960

// ReservoirRotation plans how sequential dispenses drain a series of
// reservoir wells. Each reservoir well services floor(capacity/dispense)
// destinations before the plan rolls over to the next well, so no well
// is ever drawn past its declared usable volume.
func ReservoirRotation(dispense, capacity decimal.Decimal, destinations int) (*Rotation, error) {
	if !dispense.IsPositive() {
		return nil, fmt.Errorf("%w: dispense volume %s", ErrInvalidVolume, dispense)
	}
	if !capacity.IsPositive() {
		return nil, fmt.Errorf("%w: reservoir well volume %s", ErrInvalidVolume, capacity)
	}
	if destinations < 1 {
		return nil, fmt.Errorf("%w: %d destinations", ErrInvalidCount, destinations)
	}
	if destinations > maxRotationDestinations {
		return nil, fmt.Errorf("%w: %d destinations exceeds the %d-destination limit",
			ErrInvalidCount, destinations, maxRotationDestinations)
	}

	perWell := int(capacity.Div(dispense).Floor().IntPart())
	if perWell < 1 {
		return nil, fmt.Errorf("%w: dispense volume %s exceeds reservoir well volume %s",
			ErrInvalidVolume, dispense, capacity)
	}

	steps := make([]RotationStep, destinations)
	for i := range steps {
		steps[i] = RotationStep{
			ReservoirWell:   i/perWell + 1,
			DestinationWell: i + 1,
		}
	}

	return &Rotation{
		DispensesPerWell: perWell,
		ReservoirWells:   (destinations + perWell - 1) / perWell,
		Steps:            steps,
	}, nil
}
