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
	"github.com/mycophonic/truehd/internal/crc"
)

// Guards are the per-channel "exists" bitflags carried in a restart
// header: which channels have an FIR filter and which have an IIR filter.
type Guards struct {
	FilterAPresent [maxMatrixRows]bool
	FilterBPresent [maxMatrixRows]bool
}

// RestartHeader resets decoder state at the start of a segment: output
// timing, channel assignment, and the matrix/filter parameters every
// subsequent block in the segment inherits until the next restart.
type RestartHeader struct {
	SyncWord          RestartSyncWord
	OutputTiming      uint16
	MinChannel        int
	MaxChannel        int
	MaxMatrixChan     int
	NoiseType         bool
	DitherSeed        uint16
	LosslessCheck     uint8
	NumMatrices       int
	Matrices          []MatrixParams
	OutputShift       [maxMatrixRows]int
	QuantizerStepSize [maxMatrixRows]int
	Guards            Guards
	ParityByte        uint8
	ParityValid       bool
	CRC               uint8
	CRCValid          bool
}

// readRestartHeader parses a restart header, starting with its 16-bit
// sync word (0x31EA/0x31EB/0x31EC), which it reads itself. headerStartBit
// is the bit position of the "restart exists" flag bit just before that
// sync word; the parity/CRC windows cover from there to just before the
// trailing parity/CRC bytes.
func readRestartHeader(r *bitio.Reader, headerStartBit int, atBranch bool) (RestartHeader, Diagnostic, error) {
	syncField, err := r.Bits(16)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	sync := RestartSyncWord(syncField)
	if sync != RestartSyncA && sync != RestartSyncB && sync != RestartSyncC {
		return RestartHeader{}, Diagnostic{}, fmt.Errorf("truehd: unrecognized restart sync word 0x%04x", syncField)
	}

	outputTiming, err := r.Bits(16)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	if err := r.Skip(4); err != nil { // reserved
		return RestartHeader{}, Diagnostic{}, err
	}

	minChan, err := r.Bits(4)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	maxChan, err := r.Bits(4)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	maxMatrixChan, err := r.Bits(4)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	if int(maxMatrixChan) >= maxMatrixRows {
		return RestartHeader{}, Diagnostic{}, fmt.Errorf("truehd: %w: max_matrix_chan %d out of range", ErrAborted, maxMatrixChan)
	}

	noiseType, err := r.Bool()
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	if err := r.Skip(4); err != nil { // reserved (and high bits of dither seed on some variants)
		return RestartHeader{}, Diagnostic{}, err
	}

	ditherSeed, err := r.Bits(15)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	if err := r.Skip(2); err != nil { // reserved
		return RestartHeader{}, Diagnostic{}, err
	}

	if err := r.Skip(1); err != nil { // error_protect, not modeled separately (see DESIGN.md)
		return RestartHeader{}, Diagnostic{}, err
	}

	losslessCheck, err := r.Bits(8)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	rh := RestartHeader{
		SyncWord:      sync,
		OutputTiming:  uint16(outputTiming),
		MinChannel:    int(minChan),
		MaxChannel:    int(maxChan),
		MaxMatrixChan: int(maxMatrixChan),
		NoiseType:     noiseType,
		DitherSeed:    uint16(ditherSeed),
		LosslessCheck: uint8(losslessCheck),
	}

	for ch := 0; ch <= rh.MaxMatrixChan; ch++ {
		shift, err := r.Bits(4)
		if err != nil {
			return RestartHeader{}, Diagnostic{}, err
		}

		rh.OutputShift[ch] = int(shift)
	}

	for ch := 0; ch <= rh.MaxMatrixChan; ch++ {
		qss, err := r.Bits(4)
		if err != nil {
			return RestartHeader{}, Diagnostic{}, err
		}

		rh.QuantizerStepSize[ch] = int(qss)
	}

	numMatrices, err := r.Bits(4)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	rh.NumMatrices = int(numMatrices)
	rh.Matrices = make([]MatrixParams, 0, rh.NumMatrices)

	numOperands := rh.MaxMatrixChan + 3 // matrix channels + 2 dither pseudo-channels

	for i := 0; i < rh.NumMatrices; i++ {
		mp, err := readMatrixParams(r, sync, numOperands)
		if err != nil {
			return RestartHeader{}, Diagnostic{}, fmt.Errorf("truehd: matrix %d: %w", i, err)
		}

		rh.Matrices = append(rh.Matrices, mp)
	}

	for ch := rh.MinChannel; ch <= rh.MaxChannel; ch++ {
		a, err := r.Bool()
		if err != nil {
			return RestartHeader{}, Diagnostic{}, err
		}

		rh.Guards.FilterAPresent[ch] = a

		b, err := r.Bool()
		if err != nil {
			return RestartHeader{}, Diagnostic{}, err
		}

		rh.Guards.FilterBPresent[ch] = b
	}

	r.AlignToByte()

	parityStartBit := headerStartBit
	parityEndBit := r.Position()

	parityByte, err := r.Bits(8)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	rh.ParityByte = uint8(parityByte)

	parityBytes, err := r.BytesRange(parityStartBit, parityEndBit)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	rh.ParityValid = xorFoldNibble(parityBytes) == rh.ParityByte

	crcByte, err := r.Bits(8)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	rh.CRC = uint8(crcByte)

	headerBytes, err := r.BytesRange(headerStartBit, parityEndBit+8)
	if err != nil {
		return RestartHeader{}, Diagnostic{}, err
	}

	c := crc.NewCrc8(crc.RestartBlockHeader)
	rh.CRCValid = c.Checksum(headerBytes) == rh.CRC

	var diag Diagnostic

	if !rh.ParityValid {
		diag = newDiagnostic(KindRestartParityMismatch, atBranch, headerStartBit/8, -1, -1, "restart header parity mismatch")
	} else if !rh.CRCValid {
		diag = newDiagnostic(KindSubstreamCRCMismatch, atBranch, headerStartBit/8, -1, -1, "restart header CRC mismatch")
	}

	return rh, diag, nil
}

// xorFoldNibble XORs every byte in data together, then folds the
// resulting byte's two nibbles against each other and replicates the
// result into both nibble positions, matching the restart header's
// byte-wide nibble-parity convention (original_source/truehd/src/structs/restart_header.rs).
func xorFoldNibble(data []byte) uint8 {
	var acc uint8

	for _, b := range data {
		acc ^= b
	}

	folded := (acc >> 4) ^ (acc & 0x0F)

	return folded | folded<<4
}
