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

// DecoderSubstreamState is the persistent, per-substream state carried
// from one access unit to the next: the currently latched restart
// header and each channel's predictor/entropy parameters, which a block
// may choose to leave unchanged.
type DecoderSubstreamState struct {
	Restart       *RestartHeader
	ChannelParams [maxMatrixRows]ChannelParams
	DitherState   uint32

	// LosslessAccum accumulates applyOutputShiftAndCheck's per-block
	// parity across every block decoded since the last restart. The
	// restart header that closes this segment (either the next restart
	// in this substream, or none, if the stream ends first) declares
	// the value this must equal; see parse.go's restart handling.
	LosslessAccum uint8
}

// DecoderState is the full cross-AU state of a Parser: one substream
// state per substream index, the latched major sync, and AU-duplicate
// detection.
type DecoderState struct {
	MajorSync     *MajorSync
	Substreams    [maxSubstreamDirectoryEntries]DecoderSubstreamState
	Timing        auTimingState
	Presentations PresentationMap

	// HasBranch is true for the AU currently being parsed when its major
	// sync's peak data rate changed from the previously latched one, the
	// criterion original_source/truehd/src/structs/sync.rs uses to flag a
	// seamless branch point. Integrity-anomaly diagnostics observed
	// within such an AU are demoted one severity level (see
	// newDiagnostic); outside a branch, a substream CRC/parity mismatch
	// is a plain corruption signal and keeps its default severity.
	HasBranch bool
}

// reset clears per-segment state for substream idx when a restart header
// is seen, reseeding the dither LFSR from the header's declared seed.
func (s *DecoderSubstreamState) reset(rh RestartHeader) {
	s.Restart = &rh
	s.DitherState = uint32(rh.DitherSeed)
	s.LosslessAccum = 0

	for i := range s.ChannelParams {
		s.ChannelParams[i] = ChannelParams{}
	}
}
