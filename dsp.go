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

// dsp.go implements the channel-decoder's numeric core: FIR/IIR
// prediction synthesis (recorrelation), the dither LFSR, matrixing, and
// the final output-shift/lossless-check stage. Structure parsing lives
// in filter.go/matrix.go/block.go; this file only does arithmetic on
// already-parsed parameters.

// ditherLFSR advances a 23-bit linear feedback shift register (taps at
// bits 23 and 18, i.e. the x^23+x^18+1 polynomial) and returns the new
// state. This is a documented simplification: the exact historical tap
// positions used by the reference's dither generator could not be
// recovered from static reading alone, so a standard maximal-length
// 23-bit LFSR polynomial is substituted. See DESIGN.md.
func ditherLFSR(state uint32) uint32 {
	bit := ((state >> 22) ^ (state >> 17)) & 1
	return ((state << 1) | bit) & 0x7FFFFF
}

// ditherValue extracts a signed dither sample from an LFSR state, scaled
// by scale (0..15, from MatrixParams.DitherScale).
func ditherValue(state uint32, scale int) int32 {
	v := int32(state<<9) >> 9 // sign-extend from bit 22
	if scale > 0 {
		v >>= uint(16 - scale)
	}

	return v
}

// applyPrediction runs one channel's FIR ("Filter A") and IIR ("Filter
// B") predictors over a block of residuals, producing reconstructed
// samples and mutating firCoef's and iirCoef's filter state in place
// (direct-form).
func applyPrediction(residual []int32, firCoef *FilterCoeffs, iirCoef *FilterCoeffs) []int32 {
	out := make([]int32, len(residual))

	for i, r := range residual {
		var firAcc int64

		for j := 0; j < firCoef.Order; j++ {
			firAcc += int64(firCoef.Coeff[j]) * int64(firCoef.State[j])
		}

		var iirAcc int64

		for j := 0; j < iirCoef.Order; j++ {
			iirAcc += int64(iirCoef.Coeff[j]) * int64(iirCoef.State[j])
		}

		predicted := (firAcc >> uint(firCoef.CoeffQ)) + (iirAcc >> uint(iirCoef.CoeffQ))
		sample := int32(predicted) + r

		for j := firCoef.Order - 1; j > 0; j-- {
			firCoef.State[j] = firCoef.State[j-1]
		}

		if firCoef.Order > 0 {
			firCoef.State[0] = sample
		}

		for j := iirCoef.Order - 1; j > 0; j-- {
			iirCoef.State[j] = iirCoef.State[j-1]
		}

		if iirCoef.Order > 0 {
			iirCoef.State[0] = sample
		}

		out[i] = sample
	}

	return out
}

// applyMatrix runs the restart header's declared matrix rows, in order,
// over the per-channel sample set for a single time index. channels is
// indexed by matrix channel number; the two trailing synthetic slots
// (len(channels) and len(channels)+1) hold the current dither value
// broadcast to every row that references them, per SPEC_FULL.md's
// "noise pseudo-channel" model.
func applyMatrix(channels []int32, matrices []MatrixParams, ditherSample int32, isObject bool) {
	extended := make([]int32, len(channels)+2)
	copy(extended, channels)
	extended[len(channels)] = ditherSample
	extended[len(channels)+1] = ditherSample

	for _, mp := range matrices {
		var acc int64

		for i, c := range mp.Coeff {
			if c == 0 {
				continue
			}

			acc += int64(c) * int64(extended[i])
		}

		shift := mp.cfShift(isObject)

		result := acc >> uint(shift)

		if mp.MatrixChannel < len(extended) {
			extended[mp.MatrixChannel] = int32(result)
		}
	}

	copy(channels, extended[:len(channels)])
}

// applyOutputShiftAndCheck scales one block's channels by their restart
// header's declared output shift and returns the 8-bit lossless-check
// parity this block contributes. The caller (parseSubstream) XORs
// successive blocks' return values into DecoderSubstreamState's
// LosslessAccum, which the next restart header's LosslessCheck field
// must match.
func applyOutputShiftAndCheck(channels [][]int32, outputShift [maxMatrixRows]int) uint8 {
	var parity uint8

	for ch := range channels {
		shift := outputShift[ch]

		for i, v := range channels[ch] {
			shifted := v << uint(shift)
			channels[ch][i] = shifted
			parity ^= uint8(shifted) ^ uint8(shifted>>8) ^ uint8(shifted>>16) ^ uint8(shifted>>24)
		}
	}

	return parity
}
