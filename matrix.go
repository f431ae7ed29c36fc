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

// RestartSyncWord identifies which of the three substream "flavors" a
// restart header belongs to, which in turn selects the matrix/dither
// algorithm variant in the channel decoder DSP.
type RestartSyncWord uint16

// Recognized restart sync words.
const (
	RestartSyncA RestartSyncWord = 0x31EA // plain channel substream
	RestartSyncB RestartSyncWord = 0x31EB // channel substream, power-of-two dither table
	RestartSyncC RestartSyncWord = 0x31EC // object substream
)

const maxMatrixRows = 16

// maxMatrixOperands is maxMatrixRows plus the two synthetic "noise"
// pseudo-channels the dither generator feeds into matrix row coefficient
// application (SPEC_FULL.md §3: "a noise sequence generated from the
// LFSR for dither purposes when declared").
const maxMatrixOperands = maxMatrixRows + 2

// MatrixParams is one row of the matrixing stage: a mixing/de-mixing
// operation applied in declared order, possibly referencing channels
// written by earlier rows.
type MatrixParams struct {
	MatrixChannel  int
	FracBits       int
	LsbBypassUsed  bool
	LsbBypassBits  int
	DitherScale    int
	CoeffShiftCode int
	Coeff          [maxMatrixOperands]int32
	DeltaCoeff     [maxMatrixOperands]int32 // object (0x31EC) interpolation ramp only
}

// readMatrixParams reads one matrix row. numOperands is the number of
// coefficient slots present; readRestartHeader passes maxMatrixChan+3
// for every restart sync variant.
func readMatrixParams(r *bitio.Reader, sync RestartSyncWord, numOperands int) (MatrixParams, error) {
	if numOperands > maxMatrixOperands {
		return MatrixParams{}, fmt.Errorf("truehd: %w: matrix operand count %d exceeds %d", ErrAborted, numOperands, maxMatrixOperands)
	}

	matrixChanField, err := r.Bits(4)
	if err != nil {
		return MatrixParams{}, err
	}

	fracBitsField, err := r.Bits(4)
	if err != nil {
		return MatrixParams{}, err
	}

	lsbBypass, err := r.Bool()
	if err != nil {
		return MatrixParams{}, err
	}

	mp := MatrixParams{
		MatrixChannel: int(matrixChanField),
		FracBits:      int(fracBitsField),
		LsbBypassUsed: lsbBypass,
	}

	if sync == RestartSyncB {
		hasDither, err := r.Bool()
		if err != nil {
			return MatrixParams{}, err
		}

		if hasDither {
			scale, err := r.Bits(4)
			if err != nil {
				return MatrixParams{}, err
			}

			mp.DitherScale = int(scale)
		}
	}

	for i := range numOperands {
		present, err := r.Bool()
		if err != nil {
			return MatrixParams{}, err
		}

		if !present {
			continue
		}

		coeffBits := mp.FracBits + 2

		raw, err := r.Signed(uint(coeffBits))
		if err != nil {
			return MatrixParams{}, err
		}

		mp.Coeff[i] = int32(raw)
	}

	if lsbBypass {
		bits, err := r.Bits(4)
		if err != nil {
			return MatrixParams{}, err
		}

		mp.LsbBypassBits = int(bits)
	}

	return mp, nil
}

// cfShift returns the right-shift applied to a matrix coefficient product
// before accumulation, per original_source/truehd/src/structs/matrix.rs
// update_decoder_state: 18-fracBits for channel substreams, or
// 18+cfShiftCode-fracBits for the object substream.
func (mp MatrixParams) cfShift(isObject bool) int {
	if isObject {
		return 18 + mp.CoeffShiftCode - mp.FracBits
	}

	return 18 - mp.FracBits
}
