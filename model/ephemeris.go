package model

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// EphemerisSample is a predicted satellite position in the terrestrial
// frame, in metres.
type EphemerisSample struct {
	Epoch    time.Time
	Position r3.Vec
}
