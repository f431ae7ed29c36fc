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

package truehd

import (
	"fmt"

	"github.com/mycophonic/truehd/internal/bitio"
)

// AUHeader is the 4-byte prologue of every access unit: a nibble parity
// check over the 12-bit length field, the AU's total size in 16-bit
// words, and a 16-bit input-timing counter used to detect duplicate AUs
// at seamless-branch splice points.
type AUHeader struct {
	ParityNibble uint8
	ParityValid  bool
	LengthWords  int
	InputTiming  uint16
}

// ByteLength is the total size of this access unit, header included.
func (h AUHeader) ByteLength() int {
	return h.LengthWords * 2
}

// readAUHeader parses the 4-byte AU header beginning at the current bit
// position (must be byte-aligned).
func readAUHeader(r *bitio.Reader) (AUHeader, error) {
	nibble, err := r.Bits(4)
	if err != nil {
		return AUHeader{}, err
	}

	lengthField, err := r.Bits(12)
	if err != nil {
		return AUHeader{}, err
	}

	inputTiming, err := r.Bits(16)
	if err != nil {
		return AUHeader{}, err
	}

	// The parity nibble is a fold of the 12-bit length field against
	// itself; this is a documented simplification of the reference's
	// exact check (a byte-serial parity accumulated across the whole AU
	// header) substituted because the precise algorithm could not be
	// recovered from static reading alone. See DESIGN.md.
	computed := uint8(lengthField>>8) ^ uint8(lengthField>>4) ^ uint8(lengthField)
	computed &= 0xF

	h := AUHeader{
		ParityNibble: uint8(nibble),
		ParityValid:  computed == uint8(nibble),
		LengthWords:  int(lengthField),
		InputTiming:  uint16(inputTiming),
	}

	if h.LengthWords == 0 {
		return AUHeader{}, fmt.Errorf("truehd: %w: zero-length access unit", ErrAborted)
	}

	return h, nil
}

// AccessUnit is one fully parsed TrueHD access unit.
type AccessUnit struct {
	Header              AUHeader
	MajorSync           *MajorSync
	Directory           []SubstreamDirectoryEntry
	Substreams          []SubstreamSegment
	PCM                 [][]int32 // PCM[channel][sample], synthesized through the selected presentation's substreams
	IsDuplicate         bool
	PresentationChanged bool
	Presentation        int
	OAMD                *OAMD // taken from whichever substream's terminator carried an embedded EVO frame, if any
	Diagnostics         []Diagnostic
}

// auTimingState tracks the input-timing counter across AUs to detect
// duplicates reinserted at a seamless-branch splice point, per
// original_source/truehd/src/parse.rs's duplicate-AU handling.
type auTimingState struct {
	lastInputTiming uint16
	haveLast        bool
}

func (s *auTimingState) observe(timing uint16) bool {
	duplicate := s.haveLast && timing == s.lastInputTiming
	s.lastInputTiming = timing
	s.haveLast = true

	return duplicate
}
