// internal/metrics/recorder.go

// Package metrics collects detection quality figures for a run: confirmation
// latency against ground truth, false positives, deadline overruns, and the
// measured input SNR. The recorder is a passive sink; it never influences
// the detection path.
package metrics

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ColonelBlimp/sirengate/internal/dsp"
	"github.com/ColonelBlimp/sirengate/internal/signal"
)

// Interval is a ground-truth span of siren presence, in sample positions.
// End is exclusive.
type Interval struct {
	OnsetSample int64 `json:"onsetSample"`
	EndSample   int64 `json:"endSample"`
}

// Episode is one matched detection of a ground-truth interval. Latency is
// measured from the truth onset to the end of the first confirmed frame,
// since the decision cannot exist before the frame is complete.
type Episode struct {
	ID              string  `json:"id"`
	OnsetSample     int64   `json:"onsetSample"`
	ConfirmedSample int64   `json:"confirmedSample"`
	LatencySamples  int64   `json:"latencySamples"`
	LatencyMs       float64 `json:"latencyMs"`
	WithinTarget    bool    `json:"withinTarget"`
}

// Config holds configuration for the recorder. SampleRate, FrameSize, Hop
// and DebounceFrames must match the pipeline; Truth may be empty for live
// runs where no ground truth exists.
type Config struct {
	SampleRate      float64
	FrameSize       int
	Hop             int
	DebounceFrames  int
	LatencyTargetMs float64
	Truth           []Interval
}

// Report is the summary of a run, suitable for JSON output.
type Report struct {
	RunID               string    `json:"runId"`
	GeneratedAt         time.Time `json:"generatedAt"`
	SampleRate          float64   `json:"sampleRate"`
	FramesProcessed     int64     `json:"framesProcessed"`
	ConfirmedFrames     int64     `json:"confirmedFrames"`
	Episodes            []Episode `json:"episodes"`
	MissedEpisodes      int       `json:"missedEpisodes"`
	FalsePositiveFrames int64     `json:"falsePositiveFrames"`
	Overruns            int64     `json:"overruns"`
	LatencyTargetMs     float64   `json:"latencyTargetMs"`
	AllWithinTarget     bool      `json:"allWithinTarget"`
	MeasuredSNRdB       float64   `json:"measuredSnrDb"`
	PreemptionEngages   int64     `json:"preemptionEngages"`
	PreemptionReleases  int64     `json:"preemptionReleases"`
	EmergencyGrants     int64     `json:"emergencyGrants"`
}

// Recorder accumulates metrics over one run. It is not safe for concurrent
// use; the pipeline drives it from a single goroutine.
type Recorder struct {
	config Config
	runID  string

	framesProcessed int64
	confirmedFrames int64
	falsePositives  int64
	overruns        int64
	measuredSNR     float64

	episodes []Episode
	matched  []bool

	engages         int64
	releases        int64
	emergencyGrants int64
}

// NewRecorder creates a recorder for one run.
func NewRecorder(cfg Config) *Recorder {
	return &Recorder{
		config:  cfg,
		runID:   uuid.NewString(),
		matched: make([]bool, len(cfg.Truth)),
	}
}

// RunID returns the unique identifier of this run.
func (r *Recorder) RunID() string {
	return r.runID
}

// Record accumulates one frame verdict. A confirmed frame is attributed to
// the ground-truth interval whose span covers the decision point, allowing
// the debounce window one hop-multiple of slack past the interval end; the
// first attribution per interval becomes an episode and fixes its latency.
// A confirmed frame covered by no interval counts as a false positive.
func (r *Recorder) Record(s dsp.DetectionSample) {
	r.framesProcessed++
	if !s.Confirmed {
		return
	}
	r.confirmedFrames++

	// The verdict exists once the whole frame has been observed
	decision := s.Start + int64(r.config.FrameSize)
	slack := int64(r.config.DebounceFrames) * int64(r.config.Hop)

	for i, truth := range r.config.Truth {
		if decision < truth.OnsetSample || decision >= truth.EndSample+slack {
			continue
		}
		if !r.matched[i] {
			r.matched[i] = true
			latency := decision - truth.OnsetSample
			latencyMs := float64(latency) * 1000.0 / r.config.SampleRate
			r.episodes = append(r.episodes, Episode{
				ID:              "det_" + uuid.NewString(),
				OnsetSample:     truth.OnsetSample,
				ConfirmedSample: s.Start,
				LatencySamples:  latency,
				LatencyMs:       latencyMs,
				WithinTarget:    latencyMs <= r.config.LatencyTargetMs,
			})
		}
		return
	}
	r.falsePositives++
}

// RecordOverrun counts one missed frame deadline.
func (r *Recorder) RecordOverrun() {
	r.overruns++
}

// RecordTransition accumulates signal state changes.
func (r *Recorder) RecordTransition(from, to signal.LightState) {
	if !from.Preempted() && to.Preempted() {
		r.engages++
	}
	if from.Preempted() && !to.Preempted() {
		r.releases++
	}
	if from == signal.Red && to == signal.GreenEmergency {
		r.emergencyGrants++
	}
}

// SetMeasuredSNR stores the measured input SNR in dB. Non-finite values are
// stored as zero so the report stays encodable.
func (r *Recorder) SetMeasuredSNR(db float64) {
	if math.IsNaN(db) || math.IsInf(db, 0) {
		db = 0
	}
	r.measuredSNR = db
}

// Overruns returns the overrun count so far (for testing/monitoring).
func (r *Recorder) Overruns() int64 {
	return r.overruns
}

// Report summarizes the run. AllWithinTarget is true only when every
// ground-truth interval was detected inside the latency target.
func (r *Recorder) Report() Report {
	missed := 0
	for _, m := range r.matched {
		if !m {
			missed++
		}
	}
	all := missed == 0
	for _, e := range r.episodes {
		if !e.WithinTarget {
			all = false
		}
	}
	episodes := make([]Episode, len(r.episodes))
	copy(episodes, r.episodes)

	return Report{
		RunID:               r.runID,
		GeneratedAt:         time.Now().UTC(),
		SampleRate:          r.config.SampleRate,
		FramesProcessed:     r.framesProcessed,
		ConfirmedFrames:     r.confirmedFrames,
		Episodes:            episodes,
		MissedEpisodes:      missed,
		FalsePositiveFrames: r.falsePositives,
		Overruns:            r.overruns,
		LatencyTargetMs:     r.config.LatencyTargetMs,
		AllWithinTarget:     all,
		MeasuredSNRdB:       r.measuredSNR,
		PreemptionEngages:   r.engages,
		PreemptionReleases:  r.releases,
		EmergencyGrants:     r.emergencyGrants,
	}
}

// Reset clears all accumulated figures but keeps the run identity.
func (r *Recorder) Reset() {
	r.framesProcessed = 0
	r.confirmedFrames = 0
	r.falsePositives = 0
	r.overruns = 0
	r.measuredSNR = 0
	r.episodes = nil
	for i := range r.matched {
		r.matched[i] = false
	}
	r.engages = 0
	r.releases = 0
	r.emergencyGrants = 0
}
