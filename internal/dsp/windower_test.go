// internal/dsp/windower_test.go
package dsp

import (
	"testing"
)

// rampSamples returns samples where sample i carries the value i, so frame
// contents can be checked against absolute positions.
func rampSamples(start, n int) []float64 {
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = float64(start + i)
	}
	return samples
}

func newTestWindower(t *testing.T, pad bool) *Windower {
	t.Helper()
	w, err := NewWindower(WindowerConfig{FrameSize: testFrameSize, Hop: testHop, PadPartial: pad})
	if err != nil {
		t.Fatalf("NewWindower failed: %v", err)
	}
	return w
}

func TestNewWindower_ValidConfig(t *testing.T) {
	w, err := NewWindower(WindowerConfig{FrameSize: 256, Hop: 128})
	if err != nil {
		t.Fatalf("NewWindower failed with valid config: %v", err)
	}
	if w == nil {
		t.Fatal("NewWindower returned nil with valid config")
	}

	if w.Config().FrameSize != 256 {
		t.Errorf("FrameSize mismatch: got %v, want 256", w.Config().FrameSize)
	}
	if w.Config().Hop != 128 {
		t.Errorf("Hop mismatch: got %v, want 128", w.Config().Hop)
	}
}

func TestNewWindower_InvalidFrameSize(t *testing.T) {
	testCases := []struct {
		name      string
		frameSize int
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWindower(WindowerConfig{FrameSize: tc.frameSize, Hop: 128})
			if err != ErrInvalidFrameSize {
				t.Errorf("expected ErrInvalidFrameSize, got: %v", err)
			}
		})
	}
}

func TestNewWindower_InvalidHop(t *testing.T) {
	testCases := []struct {
		name string
		hop  int
	}{
		{"zero", 0},
		{"negative", -1},
		{"equal to frame size", 256},
		{"greater than frame size", 300},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWindower(WindowerConfig{FrameSize: 256, Hop: tc.hop})
			if err != ErrInvalidHop {
				t.Errorf("expected ErrInvalidHop, got: %v", err)
			}
		})
	}
}

func TestWindower_Push_NoFrameUntilFull(t *testing.T) {
	w := newTestWindower(t, false)

	frames := w.Push(rampSamples(0, testFrameSize-1))
	if len(frames) != 0 {
		t.Fatalf("expected no frames before a full window, got %d", len(frames))
	}
	if w.Buffered() != testFrameSize-1 {
		t.Errorf("Buffered() = %d, want %d", w.Buffered(), testFrameSize-1)
	}

	frames = w.Push(rampSamples(testFrameSize-1, 1))
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame after completing the window, got %d", len(frames))
	}
	if frames[0].Start != 0 {
		t.Errorf("first frame Start = %d, want 0", frames[0].Start)
	}
}

func TestWindower_Push_FrameContentsAndOrder(t *testing.T) {
	w := newTestWindower(t, false)

	// Deliver 10000 samples in uneven chunks and collect every frame
	const total = 10000
	var frames []AudioFrame
	chunkSizes := []int{100, 37, 256, 1, 511, 95}
	pos := 0
	for i := 0; pos < total; i++ {
		n := chunkSizes[i%len(chunkSizes)]
		if pos+n > total {
			n = total - pos
		}
		frames = append(frames, w.Push(rampSamples(pos, n))...)
		pos += n
	}

	wantFrames := (total-testFrameSize)/testHop + 1
	if len(frames) != wantFrames {
		t.Fatalf("frame count = %d, want %d", len(frames), wantFrames)
	}

	for i, frame := range frames {
		wantStart := int64(i * testHop)
		if frame.Start != wantStart {
			t.Fatalf("frame %d Start = %d, want %d", i, frame.Start, wantStart)
		}
		if len(frame.Samples) != testFrameSize {
			t.Fatalf("frame %d length = %d, want %d", i, len(frame.Samples), testFrameSize)
		}
		// Spot-check both ends of the window against absolute positions
		if frame.Samples[0] != float64(wantStart) {
			t.Fatalf("frame %d first sample = %v, want %v", i, frame.Samples[0], float64(wantStart))
		}
		last := float64(wantStart) + float64(testFrameSize-1)
		if frame.Samples[testFrameSize-1] != last {
			t.Fatalf("frame %d last sample = %v, want %v", i, frame.Samples[testFrameSize-1], last)
		}
	}
}

func TestWindower_Push_FramesDoNotAliasBuffer(t *testing.T) {
	w := newTestWindower(t, false)

	frames := w.Push(rampSamples(0, testFrameSize))
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %d", len(frames))
	}

	// Corrupt the returned frame, push more samples, and verify the next
	// frame is unaffected
	for i := range frames[0].Samples {
		frames[0].Samples[i] = -1
	}
	next := w.Push(rampSamples(testFrameSize, testHop))
	if len(next) != 1 {
		t.Fatalf("expected one more frame, got %d", len(next))
	}
	if next[0].Samples[0] != float64(testHop) {
		t.Errorf("frame after corruption starts with %v, want %v", next[0].Samples[0], float64(testHop))
	}
}

func TestWindower_Flush_PadPartial(t *testing.T) {
	w := newTestWindower(t, true)

	extra := 10
	frames := w.Push(rampSamples(0, testFrameSize+extra))
	if len(frames) != 1 {
		t.Fatalf("expected one full frame, got %d", len(frames))
	}

	frame, ok := w.Flush()
	if !ok {
		t.Fatal("Flush() with PadPartial and buffered samples should emit a frame")
	}
	if frame.Start != int64(testHop) {
		t.Errorf("flushed frame Start = %d, want %d", frame.Start, testHop)
	}

	remainder := testFrameSize - testHop + extra
	for i := 0; i < remainder; i++ {
		if frame.Samples[i] != float64(testHop+i) {
			t.Fatalf("flushed sample %d = %v, want %v", i, frame.Samples[i], float64(testHop+i))
		}
	}
	for i := remainder; i < testFrameSize; i++ {
		if frame.Samples[i] != 0 {
			t.Fatalf("flushed padding at %d = %v, want 0", i, frame.Samples[i])
		}
	}
	if w.Buffered() != 0 {
		t.Errorf("Buffered() after Flush = %d, want 0", w.Buffered())
	}
}

func TestWindower_Flush_DiscardPartial(t *testing.T) {
	w := newTestWindower(t, false)

	w.Push(rampSamples(0, testFrameSize+10))
	if _, ok := w.Flush(); ok {
		t.Error("Flush() without PadPartial should discard the remainder")
	}
	if w.Buffered() != 0 {
		t.Errorf("Buffered() after Flush = %d, want 0", w.Buffered())
	}
}

func TestWindower_Flush_EmptyBuffer(t *testing.T) {
	w := newTestWindower(t, true)

	if _, ok := w.Flush(); ok {
		t.Error("Flush() with nothing buffered should not emit a frame")
	}
}

func TestWindower_Reset(t *testing.T) {
	w := newTestWindower(t, false)

	w.Push(rampSamples(0, testFrameSize+50))
	w.Reset()

	if w.Buffered() != 0 {
		t.Errorf("Buffered() after Reset = %d, want 0", w.Buffered())
	}

	frames := w.Push(rampSamples(0, testFrameSize))
	if len(frames) != 1 {
		t.Fatalf("expected one frame after Reset, got %d", len(frames))
	}
	if frames[0].Start != 0 {
		t.Errorf("Start after Reset = %d, want 0 (timestamps restart)", frames[0].Start)
	}
}

func BenchmarkWindower_Push(b *testing.B) {
	w, err := NewWindower(WindowerConfig{FrameSize: testFrameSize, Hop: testHop})
	if err != nil {
		b.Fatalf("NewWindower failed: %v", err)
	}
	chunk := rampSamples(0, testHop)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = w.Push(chunk)
	}
}
