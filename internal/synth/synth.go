// internal/synth/synth.go

// Package synth generates deterministic test signals for the simulator and
// tests: tones, frequency sweeps, Gaussian noise, and SNR-controlled mixes.
package synth

import (
	"math"
	"math/rand"
)

// Tone returns n samples of a sine at the given frequency.
func Tone(freq, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2.0 * math.Pi * freq * float64(i) / sampleRate)
	}
	return out
}

// Chirp returns n samples sweeping linearly from startHz to endHz. The
// phase accumulates per sample so the sweep stays continuous at every
// instantaneous frequency.
func Chirp(startHz, endHz, sampleRate float64, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	var phase float64
	for i := range out {
		out[i] = math.Sin(phase)
		frac := 0.0
		if n > 1 {
			frac = float64(i) / float64(n-1)
		}
		freq := startHz + (endHz-startHz)*frac
		phase += 2.0 * math.Pi * freq / sampleRate
	}
	return out
}

// Silence returns n zero samples.
func Silence(n int) []float64 {
	return make([]float64, n)
}

// Noise returns n samples of unit-variance Gaussian noise drawn from rng.
// Callers seed rng for reproducible runs.
func Noise(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

// Power returns the mean square of x, or 0 for an empty slice.
func Power(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum / float64(len(x))
}

// SNRdB returns the signal-to-noise ratio in decibels. A zero-power noise
// yields +Inf, a zero-power signal -Inf.
func SNRdB(signal, noise []float64) float64 {
	ps := Power(signal)
	pn := Power(noise)
	if pn == 0 {
		return math.Inf(1)
	}
	if ps == 0 {
		return math.Inf(-1)
	}
	return 10.0 * math.Log10(ps/pn)
}

// MixAtSNR adds noise to signal, scaled so the mix carries the requested
// signal-to-noise ratio, and returns the mix together with the achieved
// ratio. The mix length is the shorter of the two inputs. A zero-power
// signal or noise leaves the signal unscaled.
func MixAtSNR(signal, noise []float64, snrDB float64) ([]float64, float64) {
	n := len(signal)
	if len(noise) < n {
		n = len(noise)
	}
	out := make([]float64, n)

	ps := Power(signal[:n])
	pn := Power(noise[:n])
	if ps == 0 || pn == 0 {
		copy(out, signal[:n])
		return out, SNRdB(signal[:n], noise[:n])
	}

	// Scale factor that places the noise power at ps / 10^(snr/10)
	k := math.Sqrt(ps / (pn * math.Pow(10.0, snrDB/10.0)))
	scaled := make([]float64, n)
	for i := 0; i < n; i++ {
		scaled[i] = k * noise[i]
		out[i] = signal[i] + scaled[i]
	}
	return out, SNRdB(signal[:n], scaled)
}

// Concat joins segments into one signal.
func Concat(segments ...[]float64) []float64 {
	var total int
	for _, s := range segments {
		total += len(s)
	}
	out := make([]float64, 0, total)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}

// ToFloat32 converts samples to the capture stream format.
func ToFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}
