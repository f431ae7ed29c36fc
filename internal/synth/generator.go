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

package synth

import (
	"fmt"

	"github.com/mycophonic/truehd/internal/crc"
)

const substreamParityXORMask = 0xA9

// restartSyncA is the channel-substream restart sync word (0x31EA);
// duplicated from the root package's RestartSyncA rather than imported,
// since importing the root package here to reach one constant would
// create an import of the decoder into its own test-fixture builder for
// no benefit beyond a name.
const restartSyncA = 0x31EA

const majorSyncSignature = 0xF8726FBA

// Options configures a synthetic TrueHD stream.
type Options struct {
	SampleRate        uint32    // 44100/48000 family; only the two representative base rates are supported
	NumChannels       int       // 2 only, for now (see DESIGN.md)
	Frames            [][]int32 // one entry per access unit; each entry is NumChannels*SamplesPerAU samples, channel-interleaved-by-slice: Frames[au][ch*samplesPerAU+i]
	MajorSyncEveryAU  bool      // if false, only the first AU carries a major sync
	DuplicateAUIndex  int       // if > 0, the AU at this index is emitted twice with identical input timing (seamless-branch duplicate simulation); the zero value disables duplication
	PeakDataRateUnits uint16    // written into every major sync this call emits; vary it across two Generate calls to simulate a branch point (see DESIGN.md)
	StartInputTiming  uint16    // input timing of the first AU this call emits; set this to a distinct value when concatenating independently-generated streams so the splice isn't mistaken for a duplicate AU
}

// SamplesPerAU mirrors the root package's fixed-AU-size rule for the two
// base rates this generator supports.
func SamplesPerAU(sampleRate uint32) int {
	if sampleRate%44100 == 0 {
		return 40 * int(sampleRate/44100)
	}

	return 40 * int(sampleRate/48000)
}

func sampleRateCode(sampleRate uint32) (uint8, error) {
	switch sampleRate {
	case 48000:
		return 0, nil
	case 96000:
		return 1, nil
	case 192000:
		return 2, nil
	case 44100:
		return 8, nil
	case 88200:
		return 9, nil
	case 176400:
		return 10, nil
	default:
		return 0, fmt.Errorf("synth: unsupported sample rate %d", sampleRate)
	}
}

// Generate builds a complete TrueHD elementary stream per opts, suitable
// as decoder test input. It always emits single-substream, two-channel,
// no-prediction, no-matrixing, no-Huffman streams: the residual IS the
// final sample, which makes expected-output assertions a direct
// byte-for-byte comparison against the input Frames. Samples are written
// as 15-bit two's-complement values, so only values in -16384..16383
// round-trip unchanged.
func Generate(opts Options) ([]byte, error) {
	if opts.NumChannels != 2 {
		return nil, fmt.Errorf("synth: only 2-channel generation is supported, got %d", opts.NumChannels)
	}

	rateCode, err := sampleRateCode(opts.SampleRate)
	if err != nil {
		return nil, err
	}

	samplesPerAU := SamplesPerAU(opts.SampleRate)

	var out []byte

	inputTiming := opts.StartInputTiming

	// prevLosslessCheck is the check value accumulated over the
	// previously-written AU's segment; every AU restarts its substream
	// here (see writeSubstreamSegment), so each AU's restart header
	// declares the check that validates the one before it, mirroring
	// the decoder's substate.LosslessAccum bookkeeping (parse.go).
	var prevLosslessCheck uint8

	for auIdx, frame := range opts.Frames {
		if len(frame) != opts.NumChannels*samplesPerAU {
			return nil, fmt.Errorf("synth: AU %d: frame has %d samples, want %d", auIdx, len(frame), opts.NumChannels*samplesPerAU)
		}

		includeMajorSync := auIdx == 0 || opts.MajorSyncEveryAU

		auBytes, err := buildAU(frame, samplesPerAU, rateCode, includeMajorSync, inputTiming, opts.PeakDataRateUnits, prevLosslessCheck)
		if err != nil {
			return nil, fmt.Errorf("synth: AU %d: %w", auIdx, err)
		}

		out = append(out, auBytes...)

		if opts.DuplicateAUIndex > 0 && auIdx == opts.DuplicateAUIndex {
			out = append(out, auBytes...)
		}

		inputTiming += uint16(samplesPerAU)
		prevLosslessCheck = losslessCheckOf(frame, samplesPerAU, opts.NumChannels)
	}

	return out, nil
}

// losslessCheckOf computes the same XOR-of-shifted-sample-bytes check
// dsp.go's applyOutputShiftAndCheck computes on the decode side, for a
// frame written with output shift 0 on every channel (see
// writeSubstreamSegment).
func losslessCheckOf(frame []int32, samplesPerAU, numChannels int) uint8 {
	var parity uint8

	for ch := 0; ch < numChannels; ch++ {
		for i := 0; i < samplesPerAU; i++ {
			v := frame[ch*samplesPerAU+i]
			parity ^= uint8(v) ^ uint8(v>>8) ^ uint8(v>>16) ^ uint8(v>>24)
		}
	}

	return parity
}

func buildAU(frame []int32, samplesPerAU int, rateCode uint8, includeMajorSync bool, inputTiming uint16, peakDataRateUnits uint16, prevLosslessCheck uint8) ([]byte, error) {
	w := newBitWriter()

	auHeaderLengthPos := 4 // bit offset of the 12-bit length field, right after the 4-bit parity nibble
	w.writeBits(0, 4)      // parity nibble patched below
	w.writeBits(0, 12)     // length field patched below
	w.writeBits(uint64(inputTiming), 16)

	if includeMajorSync {
		writeMajorSync(w, rateCode, peakDataRateUnits)
	}

	// Substream directory: one entry, check data present, no extra data.
	w.writeBool(false) // extra data present
	w.writeBool(true)  // check data present
	w.writeBits(0, 2)   // reserved
	dirOffsetPos := w.position()
	w.writeBits(0, 12) // substream end offset in words, patched below

	segStartBit := w.position()

	writeSubstreamSegment(w, frame, samplesPerAU, prevLosslessCheck)

	// The directory offset counts whole 16-bit words from segStartBit.
	for (w.position()-segStartBit)%16 != 0 {
		w.writeBits(0, 1)
	}

	segEndBit := w.position()

	offsetWords := (segEndBit - segStartBit) / 16
	w.overwriteBits(dirOffsetPos, uint64(offsetWords), 12)

	writeSubstreamTerminator(w, segStartBit, segEndBit)

	// Pad to an even word boundary: the AU length field counts 16-bit
	// words, so total size must be a multiple of 2 bytes.
	for w.position()%16 != 0 {
		w.writeBits(0, 1)
	}

	totalBits := w.position()
	lengthWords := totalBits / 16

	lengthField := uint64(lengthWords)
	parityNibble := uint8(lengthField>>8) ^ uint8(lengthField>>4) ^ uint8(lengthField)
	parityNibble &= 0xF

	w.overwriteBits(0, uint64(parityNibble), 4)
	w.overwriteBits(auHeaderLengthPos, lengthField, 12)

	return w.bytes(), nil
}

func writeMajorSync(w *bitWriter, rateCode uint8, peakDataRateUnits uint16) {
	infoStart := w.position()

	w.writeBits(majorSyncSignature, 32)

	// format info
	w.writeBits(uint64(rateCode), 4)
	w.writeBits(0, 4) // reserved
	w.writeBits(0, 8) // secondary rate group, unused
	w.writeBits(0, 4) // reserved
	w.writeBits(0, 5) // sixch channel assignment: stereo only
	w.writeBits(0, 2) // reserved
	w.writeBits(0, 13) // eightch channel assignment: stereo only

	w.writeBits(0, 16) // flags
	w.writeBits(0, 16) // reserved
	w.writeBool(false) // variable rate
	w.writeBits(0, 15) // reserved
	w.writeBits(uint64(peakDataRateUnits)&0x7FFF, 15) // peak data rate
	w.writeBits(0, 1)  // reserved
	w.writeBits(0, 4)  // num substreams - 1 (one substream)
	w.writeBits(0, 2)  // extended substream info
	w.writeBits(0, 2)  // substream info
	w.writeBits(0, 8)  // reserved

	infoEnd := w.position()

	infoBytes := w.bytesRange(infoStart, infoEnd)
	checksum := crc.NewCrc16(crc.MajorSyncInfo).Checksum(infoBytes)

	w.writeBits(uint64(checksum), 16)
}

func writeSubstreamSegment(w *bitWriter, frame []int32, samplesPerAU int, prevLosslessCheck uint8) {
	blockStartBit := w.position()

	w.writeBool(true) // restart sync exists

	headerStartBit := blockStartBit

	w.writeBits(restartSyncA, 16)
	w.writeBits(0, 16) // output timing
	w.writeBits(0, 4)  // reserved
	w.writeBits(0, 4)  // min channel
	w.writeBits(1, 4)  // max channel
	w.writeBits(1, 4)  // max matrix channel
	w.writeBool(false) // noise type
	w.writeBits(0, 4)  // reserved
	w.writeBits(0, 15) // dither seed
	w.writeBits(0, 2)  // reserved
	w.writeBool(false) // error_protect, not modeled separately (see DESIGN.md)
	w.writeBits(uint64(prevLosslessCheck), 8)

	for ch := 0; ch < 2; ch++ {
		w.writeBits(0, 4) // output shift
	}

	for ch := 0; ch < 2; ch++ {
		w.writeBits(0, 4) // quantizer step size
	}

	w.writeBits(0, 4) // num matrices (none)

	for ch := 0; ch < 2; ch++ {
		w.writeBool(false) // filter A present
		w.writeBool(false) // filter B present
	}

	w.alignToByte()

	parityEndBit := w.position()

	parityBytes := w.bytesRange(headerStartBit, parityEndBit)
	parity := xorFoldNibble(parityBytes)
	w.writeBits(uint64(parity), 8)

	headerBytes := w.bytesRange(headerStartBit, parityEndBit+8)
	crcByte := crc.NewCrc8(crc.RestartBlockHeader).Checksum(headerBytes)
	w.writeBits(uint64(crcByte), 8)

	// Per-channel params: no filters (guards were false above), no
	// Huffman offset, table 0 (bypass), 15 raw bypassed bits per sample
	// (the widest value the 4-bit width field can carry).
	for ch := 0; ch < 2; ch++ {
		w.writeBool(false) // huffman offset present
		w.writeBits(0, 2)   // huffman table: 0 = bypass
		w.writeBits(15, 4)  // bypassed LSB width
	}

	for s := 0; s < samplesPerAU; s++ {
		for ch := 0; ch < 2; ch++ {
			w.writeSigned(int64(frame[ch*samplesPerAU+s]), 15)
		}
	}

	w.writeBits(0b10, 2) // block terminator: final block
}

func writeSubstreamTerminator(w *bitWriter, segStartBit, segEndBit int) {
	payload := w.bytesRange(segStartBit, segEndBit)

	crcByte := crc.NewCrc8(crc.Substream).Checksum(payload)
	w.writeBits(uint64(crcByte), 8)

	var xorAcc uint8
	for _, b := range payload {
		xorAcc ^= b
	}

	parity := xorAcc ^ substreamParityXORMask
	w.writeBits(uint64(parity), 8)
}

func xorFoldNibble(data []byte) uint8 {
	var acc uint8

	for _, b := range data {
		acc ^= b
	}

	folded := (acc >> 4) ^ (acc & 0x0F)

	return folded | folded<<4
}
