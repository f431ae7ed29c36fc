package tests_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	truehd "github.com/mycophonic/truehd"
	"github.com/mycophonic/truehd/internal/synth"
)

const testSampleRate = 48000

// stereoFrame builds one access unit's worth of channel-major PCM: 40
// samples per channel at 48kHz, deterministic but distinct per channel so
// a channel swap or off-by-one would be caught by compareLosslessPCM.
func stereoFrame(base int32) []int32 {
	samplesPerAU := synth.SamplesPerAU(testSampleRate)
	frame := make([]int32, 2*samplesPerAU)

	for i := 0; i < samplesPerAU; i++ {
		frame[i] = base + int32(i)                  // channel 0
		frame[samplesPerAU+i] = -base - int32(i) - 1 // channel 1
	}

	return frame
}

func wantPCM(frame []int32, samplesPerAU int) [][]int32 {
	ch0 := append([]int32(nil), frame[:samplesPerAU]...)
	ch1 := append([]int32(nil), frame[samplesPerAU:]...)

	return [][]int32{ch0, ch1}
}

// Scenario 1: a single AU, 48kHz, MajorSync, 2ch, substream 0 only,
// order-0 filters, empty matrix, residuals equal to the PCM samples,
// valid lossless check. Expected: 40 PCM samples per channel, no
// diagnostics.
func TestScenario1_SingleAU(t *testing.T) {
	t.Parallel()

	samplesPerAU := synth.SamplesPerAU(testSampleRate)
	frame := stereoFrame(1000)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      [][]int32{frame},
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	dec := truehd.NewDecoder(bytes.NewReader(stream), truehd.DefaultConfig())

	au, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if au.SampleCount != samplesPerAU {
		t.Errorf("sample count: got %d, want %d", au.SampleCount, samplesPerAU)
	}

	if len(au.Diagnostics) != 0 {
		t.Errorf("expected no diagnostics, got %+v", au.Diagnostics)
	}

	compareLosslessPCM(t, "scenario1", wantPCM(frame, samplesPerAU), au.PCM)

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after the only AU, got %v", err)
	}
}

// Scenario 2: two AUs; the second omits its MajorSync. Expected: both
// decode using the configuration latched from the first AU's MajorSync.
func TestScenario2_LatchedMajorSync(t *testing.T) {
	t.Parallel()

	samplesPerAU := synth.SamplesPerAU(testSampleRate)
	frames := [][]int32{stereoFrame(100), stereoFrame(5000)}

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      frames,
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	dec := truehd.NewDecoder(bytes.NewReader(stream), truehd.DefaultConfig())

	for i, frame := range frames {
		au, err := dec.Next()
		if err != nil {
			t.Fatalf("Next(AU %d): %v", i, err)
		}

		if len(au.Diagnostics) != 0 {
			t.Errorf("AU %d: expected no diagnostics, got %+v", i, au.Diagnostics)
		}

		compareLosslessPCM(t, "scenario2", wantPCM(frame, samplesPerAU), au.PCM)
	}

	if dec.Format().SampleRate != testSampleRate {
		t.Errorf("format sample rate: got %d, want %d", dec.Format().SampleRate, testSampleRate)
	}
}

// Scenario 3: an AU whose substream payload has one bit flipped.
// Expected: a CrcMismatch diagnostic at Warning severity; samples are
// still emitted.
func TestScenario3_CorruptedSubstreamCRC(t *testing.T) {
	t.Parallel()

	frame := stereoFrame(42)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      [][]int32{frame},
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	// Flip one bit well inside the sample payload, 10 bytes before the
	// end of the stream.
	flipIdx := len(stream) - 10
	stream[flipIdx] ^= 0x01

	dec := truehd.NewDecoder(bytes.NewReader(stream), truehd.DefaultConfig())

	au, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if len(au.PCM) == 0 || len(au.PCM[0]) == 0 {
		t.Fatalf("expected samples to still be emitted despite the corruption")
	}

	found := false

	for _, diag := range au.Diagnostics {
		if diag.Kind == truehd.KindSubstreamCRCMismatch {
			found = true

			if diag.Severity != truehd.SeverityWarning {
				t.Errorf("diagnostic severity: got %s, want %s", diag.Severity, truehd.SeverityWarning)
			}
		}
	}

	if !found {
		t.Errorf("expected a %s diagnostic, got %+v", truehd.KindSubstreamCRCMismatch, au.Diagnostics)
	}
}

// Scenario 4: a peak-data-rate change between two AUs' MajorSyncs (a
// seamless-branch point, per DESIGN.md's HasBranch derivation), both
// otherwise valid. Expected: no diagnostic, since nothing actually
// mismatches at the branch.
func TestScenario4_ValidBranch(t *testing.T) {
	t.Parallel()

	frameA := stereoFrame(7)
	frameB := stereoFrame(900)

	streamA, err := synth.Generate(synth.Options{
		SampleRate:        testSampleRate,
		NumChannels:       2,
		Frames:            [][]int32{frameA},
		PeakDataRateUnits: 100,
	})
	if err != nil {
		t.Fatalf("synth.Generate (A): %v", err)
	}

	streamB, err := synth.Generate(synth.Options{
		SampleRate:        testSampleRate,
		NumChannels:       2,
		Frames:            [][]int32{frameB},
		PeakDataRateUnits: 500,
		// Distinct from streamA's AU so the splice isn't mistaken for a
		// duplicate AU (see StartInputTiming's doc comment).
		StartInputTiming: uint16(synth.SamplesPerAU(testSampleRate)),
	})
	if err != nil {
		t.Fatalf("synth.Generate (B): %v", err)
	}

	combined := append(append([]byte(nil), streamA...), streamB...)

	dec := truehd.NewDecoder(bytes.NewReader(combined), truehd.DefaultConfig())

	for i, frame := range [][]int32{frameA, frameB} {
		au, err := dec.Next()
		if err != nil {
			t.Fatalf("Next(AU %d): %v", i, err)
		}

		if len(au.Diagnostics) != 0 {
			t.Errorf("AU %d: expected no diagnostic at the branch, got %+v", i, au.Diagnostics)
		}

		compareLosslessPCM(t, "scenario4", wantPCM(frame, synth.SamplesPerAU(testSampleRate)), au.PCM)
	}
}

// Boundary (spec.md §8): two concatenated identical streams at a
// seamless branch. Expected: the first AU of the second stream is
// marked IsDuplicate.
func TestBoundary_DuplicateAUAtSplice(t *testing.T) {
	t.Parallel()

	frame := stereoFrame(3)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      [][]int32{frame},
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	combined := append(append([]byte(nil), stream...), stream...)

	dec := truehd.NewDecoder(bytes.NewReader(combined), truehd.DefaultConfig())

	first, err := dec.Next()
	if err != nil {
		t.Fatalf("Next(first): %v", err)
	}

	if first.IsDuplicate {
		t.Errorf("first AU should not be marked duplicate")
	}

	second, err := dec.Next()
	if err != nil {
		t.Fatalf("Next(second): %v", err)
	}

	if !second.IsDuplicate {
		t.Errorf("second (spliced) AU should be marked duplicate")
	}
}

// Boundary: empty input yields io.EOF (no AU ever pulled) on the first
// pull.
func TestBoundary_EmptyInput(t *testing.T) {
	t.Parallel()

	dec := truehd.NewDecoder(bytes.NewReader(nil), truehd.DefaultConfig())

	_, err := dec.Next()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on empty input, got %v", err)
	}
}

// Boundary: a byte source truncated mid-AU yields a read failure.
func TestBoundary_TruncatedMidAU(t *testing.T) {
	t.Parallel()

	frame := stereoFrame(9)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      [][]int32{frame},
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	truncated := stream[:len(stream)-5]

	dec := truehd.NewDecoder(bytes.NewReader(truncated), truehd.DefaultConfig())

	if _, err := dec.Next(); err == nil {
		t.Errorf("expected a read failure for a truncated access unit")
	}
}

// Boundary: requesting a presentation the stream cannot offer falls back
// to the highest available one and reports KindPresentationUnavailable.
func TestBoundary_PresentationFallback(t *testing.T) {
	t.Parallel()

	frame := stereoFrame(11)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  testSampleRate,
		NumChannels: 2,
		Frames:      [][]int32{frame},
	})
	if err != nil {
		t.Fatalf("synth.Generate: %v", err)
	}

	cfg := truehd.DefaultConfig()
	cfg.Presentation = 3 // this stream only ever declares substream 0

	dec := truehd.NewDecoder(bytes.NewReader(stream), cfg)

	au, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	found := false

	for _, diag := range au.Diagnostics {
		if diag.Kind == truehd.KindPresentationUnavailable {
			found = true
		}
	}

	if !found {
		t.Errorf("expected a %s diagnostic, got %+v", truehd.KindPresentationUnavailable, au.Diagnostics)
	}

	if au.Presentation != 0 {
		t.Errorf("fallback presentation: got %d, want 0", au.Presentation)
	}
}
