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

// BlockHeader precedes each block's sample data. A block either carries a
// fresh restart header (segment start) or continues the previous
// segment's state, optionally updating individual channels' predictor
// parameters.
type BlockHeader struct {
	RestartSyncExists bool
	Restart           *RestartHeader
	ChannelParamChanged [maxMatrixRows]bool
	BlockSizeOverride   int // 0 means "use the segment's default block size"
}

// Block is one decoded block: per-channel residual samples prior to
// matrixing/prediction synthesis, plus the header state that produced
// them.
type Block struct {
	Header    BlockHeader
	NumSamples int
	Residual  [][]int32 // Residual[channel][sample]
}

// readBlockHeader parses the header of a single block. blockStartBit is
// the bit position where the block begins; atBranch marks a seamless
// branch point, at which integrity diagnostics are demoted one level.
func readBlockHeader(r *bitio.Reader, blockStartBit int, atBranch bool) (BlockHeader, Diagnostic, error) {
	var bh BlockHeader
	var diag Diagnostic

	restartExists, err := r.Bool()
	if err != nil {
		return BlockHeader{}, Diagnostic{}, err
	}

	bh.RestartSyncExists = restartExists

	if restartExists {
		syncWord, err := r.Bits(16)
		if err != nil {
			return BlockHeader{}, Diagnostic{}, err
		}

		if err := r.Seek(r.Position() - 16); err != nil {
			return BlockHeader{}, Diagnostic{}, err
		}

		if syncWord != uint64(RestartSyncA) && syncWord != uint64(RestartSyncB) && syncWord != uint64(RestartSyncC) {
			return BlockHeader{}, Diagnostic{}, fmt.Errorf("truehd: block claims restart but sync word 0x%04x unrecognized", syncWord)
		}

		rh, rhDiag, err := readRestartHeader(r, blockStartBit, atBranch)
		if err != nil {
			return BlockHeader{}, Diagnostic{}, err
		}

		bh.Restart = &rh
		diag = rhDiag
	}

	return bh, diag, nil
}

// readBlockChannelFlags reads, for each channel in [minChan,maxChan], the
// single bit indicating whether that channel's ChannelParams changed for
// this block (always true on a restart block).
func readBlockChannelFlags(r *bitio.Reader, bh *BlockHeader, minChan, maxChan int, forceAll bool) error {
	for ch := minChan; ch <= maxChan; ch++ {
		if forceAll {
			bh.ChannelParamChanged[ch] = true
			continue
		}

		changed, err := r.Bool()
		if err != nil {
			return err
		}

		bh.ChannelParamChanged[ch] = changed
	}

	return nil
}

// readBlockData decodes one block's per-channel residuals. channelParams
// is indexed by channel and updated in place for channels whose params
// changed this block; it must be sized maxMatrixRows and carry forward
// unchanged entries from the previous block within the segment.
func readBlockData(r *bitio.Reader, bh BlockHeader, minChan, maxChan, numSamples int, channelParams []ChannelParams) (Block, error) {
	if len(channelParams) <= maxChan {
		return Block{}, fmt.Errorf("truehd: %w: channelParams too short for max channel %d", ErrAborted, maxChan)
	}

	guards := Guards{}
	if bh.Restart != nil {
		guards = bh.Restart.Guards
	}

	for ch := minChan; ch <= maxChan; ch++ {
		if !bh.ChannelParamChanged[ch] {
			continue
		}

		cp, err := readChannelParams(r, guards.FilterAPresent[ch], guards.FilterBPresent[ch])
		if err != nil {
			return Block{}, fmt.Errorf("truehd: channel %d params: %w", ch, err)
		}

		channelParams[ch] = cp
	}

	numChannels := maxChan - minChan + 1
	residual := make([][]int32, numChannels)
	for i := range residual {
		residual[i] = make([]int32, numSamples)
	}

	for s := 0; s < numSamples; s++ {
		for ch := minChan; ch <= maxChan; ch++ {
			v, err := readResidual(r, channelParams[ch])
			if err != nil {
				return Block{}, fmt.Errorf("truehd: sample %d channel %d: %w", s, ch, err)
			}

			residual[ch-minChan][s] = v
		}
	}

	return Block{Header: bh, NumSamples: numSamples, Residual: residual}, nil
}

// blockTerminatorValid checks the two-bit block-end marker: 0b00 means
// more blocks follow in this AU, 0b10 marks the final block.
func blockTerminatorValid(marker uint64) (isFinal bool, ok bool) {
	switch marker {
	case 0b00:
		return false, true
	case 0b10:
		return true, true
	default:
		return false, false
	}
}
