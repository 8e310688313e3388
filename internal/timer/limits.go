package timer

import (
	"math"
	"time"
)

// MaxTimerInterval is the largest single delay a listener will ever hand
// to the platform timer. time.Timer (and most OS timer primitives it sits
// on) is specified in terms of a signed 32-bit millisecond count once you
// cross into syscall territory on some platforms; anything larger is
// split into multiple hops via the long-interval carry in TimerListener.
const MaxTimerInterval = time.Duration(math.MaxInt32) * time.Millisecond
