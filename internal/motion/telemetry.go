package motion

import (
	"time"

	"github.com/minihead/minihead/internal/kinematics"
)

// Telemetry is one sample pushed while recording, replaying or monitoring.
type Telemetry struct {
	Time time.Time `json:"time"`
	// Pose is the forward-kinematics estimate. It is nil until every motor
	// has reported at least once.
	Pose *kinematics.Coords `json:"pose,omitempty"`
	// Joints are the latest angles in degrees, bus order. Motors that have
	// not reported yet read as zero.
	Joints []float64 `json:"joints"`
	State  State     `json:"state"`
}

// Event reports the outcome of a controller operation.
type Event struct {
	Time   time.Time `json:"time"`
	Op     string    `json:"op"`
	State  State     `json:"state"`
	Frames int       `json:"frames,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// Sink receives telemetry and operation outcomes. Implementations must not
// block: they are called from the control loops.
type Sink interface {
	Telemetry(Telemetry)
	Event(Event)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Telemetry(Telemetry) {}
func (NopSink) Event(Event)         {}
