package clock

import "go.uber.org/fx"

func NewSystemClock() Clock {
	return SystemClock{}
}

// Module provides the wall clock. Tests substitute FakeClock directly.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
