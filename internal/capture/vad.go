package capture

import (
	"time"

	"github.com/ent0n29/talkback/internal/audio"
)

// State is the capture state machine position.
type State int

const (
	WaitingForSpeech State = iota
	Recording
	Done
)

func (s State) String() string {
	switch s {
	case WaitingForSpeech:
		return "waiting_for_speech"
	case Recording:
		return "recording"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Detector is the energy gate: a frame whose mean absolute amplitude exceeds
// Threshold is speech. Silence is measured in samples so the cutoff does not
// depend on the frame size.
type Detector struct {
	threshold     float64
	cutoffSamples int
	maxSamples    int

	state          State
	silentSamples  int
	recordedFrames [][]int16
	recorded       int
}

// NewDetector builds a detector. maxUtterance of 0 disables the length cap.
func NewDetector(threshold float64, silenceCutoff time.Duration, sampleRate int, maxUtterance time.Duration) *Detector {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &Detector{
		threshold:     threshold,
		cutoffSamples: durationToSamples(silenceCutoff, sampleRate),
		maxSamples:    durationToSamples(maxUtterance, sampleRate),
	}
}

func durationToSamples(d time.Duration, sampleRate int) int {
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// Push feeds one frame and returns the resulting state. Frames pushed after
// Done are ignored.
func (d *Detector) Push(frame []int16) State {
	if d.state == Done || len(frame) == 0 {
		return d.state
	}
	loud := audio.MeanAbsAmplitude(frame) > d.threshold

	switch d.state {
	case WaitingForSpeech:
		if !loud {
			return d.state
		}
		d.state = Recording
		d.append(frame)
	case Recording:
		d.append(frame)
		if loud {
			d.silentSamples = 0
		} else {
			d.silentSamples += len(frame)
		}
		if d.silentSamples >= d.cutoffSamples {
			d.state = Done
		}
	}
	if d.state == Recording && d.maxSamples > 0 && d.recorded >= d.maxSamples {
		d.state = Done
	}
	return d.state
}

func (d *Detector) append(frame []int16) {
	cp := make([]int16, len(frame))
	copy(cp, frame)
	d.recordedFrames = append(d.recordedFrames, cp)
	d.recorded += len(cp)
}

// State returns the current state.
func (d *Detector) State() State { return d.state }

// Heard reports whether speech was ever detected.
func (d *Detector) Heard() bool { return d.state != WaitingForSpeech }

// Samples returns every accumulated frame concatenated in order.
func (d *Detector) Samples() []int16 {
	out := make([]int16, 0, d.recorded)
	for _, f := range d.recordedFrames {
		out = append(out, f...)
	}
	return out
}
