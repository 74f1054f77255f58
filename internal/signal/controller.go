// internal/signal/controller.go
package signal

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LightState is the traffic signal state for the protected approach. The
// zero value is Red, which is also the initial and restart state.
type LightState int

const (
	// Red holds the approach stopped
	Red LightState = iota
	// GreenNormal is the ordinary green phase
	GreenNormal
	// GreenEmergency is a green granted because an emergency vehicle
	// was detected on a red approach
	GreenEmergency
	// GreenHeld is a green prolonged past its normal phase because the
	// detection is still active
	GreenHeld
)

// String returns a human-readable name for the state.
func (s LightState) String() string {
	switch s {
	case Red:
		return "Red"
	case GreenNormal:
		return "GreenNormal"
	case GreenEmergency:
		return "GreenEmergency"
	case GreenHeld:
		return "GreenHeld"
	default:
		return fmt.Sprintf("LightState(%d)", int(s))
	}
}

// Preempted reports whether the state grants right-of-way because of an
// active or recent detection.
func (s LightState) Preempted() bool {
	return s == GreenEmergency || s == GreenHeld
}

// Transition returns the state that follows s when a frame arrives with the
// given confirmed verdict. It is total: any unrecognized state falls back to
// Red, the safe default. A preempted state never transitions directly to
// Red; the release always passes through GreenNormal so cross traffic gets a
// clearance interval.
func Transition(s LightState, confirmed bool) LightState {
	switch s {
	case Red:
		if confirmed {
			return GreenEmergency
		}
		return Red
	case GreenNormal:
		if confirmed {
			return GreenHeld
		}
		return GreenNormal
	case GreenEmergency:
		if confirmed {
			return GreenHeld
		}
		return GreenNormal
	case GreenHeld:
		if confirmed {
			return GreenHeld
		}
		return GreenNormal
	default:
		return Red
	}
}

// PreemptionEvent is emitted when preemption engages or releases.
type PreemptionEvent struct {
	// Active is true when preemption engaged, false when it released
	Active bool
	// State is the signal state after the transition
	State LightState
	// Timestamp is when the transition was applied
	Timestamp time.Time
}

// PreemptionCallback receives preemption events. The callback runs on the
// pipeline goroutine; it must not block.
type PreemptionCallback func(PreemptionEvent)

// Controller drives the signal state from the per-frame detection verdicts.
// One confirmed verdict is applied per frame, in order. The controller is
// not safe for concurrent use; the pipeline drives it from a single
// goroutine. SetCallback may be called from any goroutine.
type Controller struct {
	state    LightState
	callback atomic.Pointer[PreemptionCallback]
}

// NewController creates a controller in the Red state.
func NewController() *Controller {
	return &Controller{state: Red}
}

// State returns the current signal state.
func (c *Controller) State() LightState {
	return c.state
}

// OnConfirmedDetection applies one frame verdict and returns the resulting
// state. A callback, if set, fires only when the preemption status changes.
func (c *Controller) OnConfirmedDetection(confirmed bool) LightState {
	prev := c.state
	c.state = Transition(prev, confirmed)
	if prev.Preempted() != c.state.Preempted() {
		c.emitEvent(PreemptionEvent{
			Active:    c.state.Preempted(),
			State:     c.state,
			Timestamp: time.Now(),
		})
	}
	return c.state
}

// SetCallback registers the function to receive preemption events.
// Pass nil to remove the callback.
func (c *Controller) SetCallback(callback PreemptionCallback) {
	if callback == nil {
		c.callback.Store(nil)
		return
	}
	c.callback.Store(&callback)
}

func (c *Controller) emitEvent(event PreemptionEvent) {
	if cb := c.callback.Load(); cb != nil {
		(*cb)(event)
	}
}

// Reset returns the controller to Red (restart support). No event is
// emitted; callers coordinating an external signal head should treat a
// reset as a release.
func (c *Controller) Reset() {
	c.state = Red
}
