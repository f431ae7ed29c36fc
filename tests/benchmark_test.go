/*
   Copyright Mycophonic.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package tests_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/mycophonic/agar/pkg/agar"

	truehd "github.com/mycophonic/truehd"
	"github.com/mycophonic/truehd/internal/synth"
)

const benchDuration = 250 * time.Millisecond

type benchFormat struct {
	Name       string
	SampleRate uint32
}

//nolint:gochecknoglobals
var benchFormats = []benchFormat{
	{"44.1kHz/2ch", 44100},
	{"48kHz/2ch", 48000},
	{"96kHz/2ch", 96000},
	{"192kHz/2ch", 192000},
}

// pcmToFrames de-interleaves agar's generated white noise (signed
// little-endian, 24 bits per sample packed into 3 bytes, interleaved by
// channel) into synth.Generate's per-AU, channel-major frame format.
func pcmToFrames(pcm []byte, sampleRate uint32, channels int) [][]int32 {
	bytesPerSample := 3
	frameSize := bytesPerSample * channels
	totalSamples := len(pcm) / frameSize

	samplesPerAU := synth.SamplesPerAU(sampleRate)
	numAUs := totalSamples / samplesPerAU

	frames := make([][]int32, numAUs)

	for au := range frames {
		frame := make([]int32, channels*samplesPerAU)

		for i := range samplesPerAU {
			srcIdx := (au*samplesPerAU + i) * frameSize

			for ch := range channels {
				off := srcIdx + ch*bytesPerSample
				v := int32(pcm[off]) | int32(pcm[off+1])<<8 | int32(pcm[off+2])<<16

				if v&0x800000 != 0 {
					v |= -1 << 24 // sign-extend 24 -> 32 bits
				}

				frame[ch*samplesPerAU+i] = v
			}
		}

		frames[au] = frame
	}

	return frames
}

func buildBenchStream(tb testing.TB, bf benchFormat) ([]byte, int) {
	tb.Helper()

	pcm := agar.GenerateWhiteNoise(int(bf.SampleRate), 24, 2, benchDuration)
	frames := pcmToFrames(pcm, bf.SampleRate, 2)

	stream, err := synth.Generate(synth.Options{
		SampleRate:  bf.SampleRate,
		NumChannels: 2,
		Frames:      frames,
	})
	if err != nil {
		tb.Fatalf("synth.Generate: %v", err)
	}

	return stream, len(pcm)
}

func decodeAll(t *testing.T, stream []byte) int {
	t.Helper()

	dec := truehd.NewDecoder(bytes.NewReader(stream), truehd.DefaultConfig())

	samples := 0

	for {
		au, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			t.Fatalf("decode: %v", err)
		}

		if len(au.PCM) > 0 {
			samples += len(au.PCM[0])
		}
	}

	return samples
}

//nolint:paralleltest // Benchmark must run sequentially for accurate timing.
func TestBenchmarkDecode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping benchmark in short mode")
	}

	var results []benchResult

	for _, bf := range benchFormats {
		t.Logf("=== %s ===", bf.Name)

		stream, pcmBytes := buildBenchStream(t, bf)

		t.Logf("  stream size: %d bytes (%.1f MB PCM)", len(stream), float64(pcmBytes)/(1024*1024))

		durations := make([]time.Duration, benchIterations)

		for iter := range benchIterations {
			start := time.Now()

			decodeAll(t, stream)

			durations[iter] = time.Since(start)
		}

		results = append(results, computeResult(bf.Name, "decode", durations, len(stream)))
	}

	printResults(t, results)
}

// TestBenchmarkDecodeFile decodes a real elementary stream pointed to by
// BENCH_TRUEHD_FILE, for profiling against captured material rather than
// synthetic fixtures. Skipped when unset.
//
//nolint:paralleltest // Benchmark must run sequentially for accurate timing.
func TestBenchmarkDecodeFile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping benchmark in short mode")
	}

	filePath := os.Getenv("BENCH_TRUEHD_FILE")
	if filePath == "" {
		t.Skip("set BENCH_TRUEHD_FILE to run this benchmark")
	}

	encoded, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}

	t.Logf("File: %s (%.1f MB)", filePath, float64(len(encoded))/(1024*1024))

	durations := make([]time.Duration, benchIterations)

	for iter := range benchIterations {
		start := time.Now()

		decodeAll(t, encoded)

		durations[iter] = time.Since(start)
	}

	printResults(t, []benchResult{computeResult(filePath, "decode", durations, len(encoded))})
}
