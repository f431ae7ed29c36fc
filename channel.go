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
	"github.com/mycophonic/truehd/internal/huffman"
)

// ChannelMeaning and ExtraChannelMeaning describe the extra-data block
// carried alongside the 2ch/6ch/8ch presentations: speaker assignment and
// dialogue normalization metadata not needed to reconstruct PCM but
// required to render it correctly.
type ChannelMeaning struct {
	DRCGainUnits    uint8
	DRCStartUpGain  uint8
	DialogNorm      uint8
	ChannelAssigned bool
}

// ExtraChannelMeaning is the per-substream wrapper around ChannelMeaning,
// present only on substreams that declare extra data in their restart
// header guard bits.
type ExtraChannelMeaning struct {
	Meaning     ChannelMeaning
	Has6ChAssign bool
	Has8ChAssign bool
}

func readChannelMeaning(r *bitio.Reader) (ChannelMeaning, error) {
	drcGain, err := r.Bits(8)
	if err != nil {
		return ChannelMeaning{}, err
	}

	drcStartup, err := r.Bits(4)
	if err != nil {
		return ChannelMeaning{}, err
	}

	dialogNorm, err := r.Bits(7)
	if err != nil {
		return ChannelMeaning{}, err
	}

	assigned, err := r.Bool()
	if err != nil {
		return ChannelMeaning{}, err
	}

	return ChannelMeaning{
		DRCGainUnits:    uint8(drcGain),
		DRCStartUpGain:  uint8(drcStartup),
		DialogNorm:      uint8(dialogNorm),
		ChannelAssigned: assigned,
	}, nil
}

// ChannelParams is one channel's per-block decode parameters: its
// predictor filters, residual coding table, and bypassed-LSB width.
type ChannelParams struct {
	FilterA        FilterCoeffs
	FilterB        FilterCoeffs
	HuffmanTable   int // 1, 2 or 3; selects internal/huffman tree
	HuffmanLSBs    int // number of bypassed low-order bits appended per residual
	HuffmanOffset  int32
	HasHuffmanOffset bool
}

// readChannelParams parses the per-channel header that precedes each
// channel's residual data in a block, grounded on
// original_source/truehd/src/structs/channel_params.rs.
func readChannelParams(r *bitio.Reader, haveFilterA, haveFilterB bool) (ChannelParams, error) {
	var cp ChannelParams

	if haveFilterA {
		fc, err := readFilterCoeffs(r, CoeffTypeFIR)
		if err != nil {
			return ChannelParams{}, fmt.Errorf("truehd: filter A: %w", err)
		}

		cp.FilterA = fc
	}

	if haveFilterB {
		fc, err := readFilterCoeffs(r, CoeffTypeIIR)
		if err != nil {
			return ChannelParams{}, fmt.Errorf("truehd: filter B: %w", err)
		}

		cp.FilterB = fc
	}

	if cp.FilterA.Order+cp.FilterB.Order > maxFilterOrderSum {
		return ChannelParams{}, fmt.Errorf("truehd: %w: combined filter order %d exceeds %d",
			ErrAborted, cp.FilterA.Order+cp.FilterB.Order, maxFilterOrderSum)
	}

	hasOffset, err := r.Bool()
	if err != nil {
		return ChannelParams{}, err
	}

	cp.HasHuffmanOffset = hasOffset

	if hasOffset {
		huffOffsetBits, err := r.Bits(4)
		if err != nil {
			return ChannelParams{}, err
		}

		offset, err := r.Signed(uint(huffOffsetBits) + 1)
		if err != nil {
			return ChannelParams{}, err
		}

		cp.HuffmanOffset = int32(offset)
	}

	table, err := r.Bits(2)
	if err != nil {
		return ChannelParams{}, err
	}

	cp.HuffmanTable = int(table)

	lsbs, err := r.Bits(4)
	if err != nil {
		return ChannelParams{}, err
	}

	cp.HuffmanLSBs = int(lsbs)

	return cp, nil
}

// readResidual decodes one sample's residual for a channel whose Huffman
// table selection is cp.HuffmanTable (0 means "no entropy coding, raw
// bypassed bits only" per the reference's table-index convention).
func readResidual(r *bitio.Reader, cp ChannelParams) (int32, error) {
	var value int32

	if cp.HuffmanTable != 0 {
		tree, err := huffman.ByIndex(cp.HuffmanTable)
		if err != nil {
			return 0, err
		}

		decoded, err := huffman.Decode(r, tree)
		if err != nil {
			return 0, err
		}

		value = decoded
	}

	if cp.HuffmanLSBs > 0 {
		if cp.HuffmanTable == 0 {
			// No entropy stage: the bypassed bits are the whole residual,
			// so they carry their own sign rather than an unsigned tail
			// appended to a Huffman-decoded high part.
			raw, err := r.Signed(uint(cp.HuffmanLSBs))
			if err != nil {
				return 0, err
			}

			value = int32(raw)
		} else {
			lsb, err := r.Bits(uint(cp.HuffmanLSBs))
			if err != nil {
				return 0, err
			}

			value = (value << uint(cp.HuffmanLSBs)) | int32(lsb)
		}
	}

	if cp.HasHuffmanOffset {
		value += cp.HuffmanOffset
	}

	return value, nil
}
