package usecase

import (
	"time"

	"novadesk/internal/ports"
)

type systemClock struct{}

// SystemClock returns a ports.Clock backed by runtime timers.
func SystemClock() ports.Clock {
	return systemClock{}
}

func (systemClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
