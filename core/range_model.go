package core

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/slr-reduction/internal/crd"
	"github.com/signalsfoundry/slr-reduction/model"
	"github.com/signalsfoundry/slr-reduction/timectrl"
)

// SpeedOfLight in vacuum, m/s.
const SpeedOfLight = 299792458.0

// RangeTiming is the transmit, bounce and receive instants of one pulse
// plus the one-way range. Transmit and receive stations are co-located
// and leap seconds are ignored.
type RangeTiming struct {
	Transmit time.Time
	Bounce   time.Time
	Receive  time.Time
	Range    float64
}

// OneWayRange converts a two-way time of flight to metres.
func OneWayRange(timeOfFlight float64) float64 {
	return SpeedOfLight * timeOfFlight / 2
}

// DeriveTiming applies the epoch-event convention of a range record.
// day is the UTC midnight timeOfDay counts from. Unknown events return
// crd.ErrUnrecognizedEpochEvent with a zero timing apart from Range.
func DeriveTiming(day time.Time, timeOfDay, timeOfFlight float64, event model.EpochEvent) (RangeTiming, error) {
	tof := timectrl.Seconds(timeOfFlight)
	half := timectrl.Seconds(timeOfFlight / 2)
	event0 := day.Add(timectrl.Seconds(timeOfDay))

	var transmit time.Time
	switch event {
	case model.EpochEventBounce:
		transmit = event0.Add(-half)
	case model.EpochEventTransmit:
		transmit = event0
	default:
		return RangeTiming{Range: OneWayRange(timeOfFlight)}, fmt.Errorf("%w: code %d", crd.ErrUnrecognizedEpochEvent, event)
	}

	return RangeTiming{
		Transmit: transmit,
		Bounce:   transmit.Add(half),
		Receive:  transmit.Add(tof),
		Range:    OneWayRange(timeOfFlight),
	}, nil
}
