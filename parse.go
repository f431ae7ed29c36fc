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

//nolint:gochecknoglobals
var majorSyncCRCAlg = crc.NewCrc16(crc.MajorSyncInfo)

// Parser holds cross-AU decoder state and turns one AU's raw bytes into
// a fully decoded AccessUnit, applying the Config's failure policy along
// the way.
//
// Grounded on original_source/truehd/src/parse.rs's Parser/ParserState
// split, adapted to Go's explicit-state, no-panics idiom.
type Parser struct {
	cfg   Config
	state DecoderState
}

// NewParser builds a Parser with the given configuration.
func NewParser(cfg Config) *Parser {
	return &Parser{cfg: cfg}
}

// LastMajorSync returns the most recently latched major sync, or nil if
// none has been seen yet.
func (p *Parser) LastMajorSync() *MajorSync {
	return p.state.MajorSync
}

// ParseAU decodes one access unit's raw bytes (as framed by Extractor).
func (p *Parser) ParseAU(auBytes []byte) (AccessUnit, error) {
	r := bitio.NewReader(auBytes)

	return p.parseAU(r)
}

func (p *Parser) parseAU(r *bitio.Reader) (AccessUnit, error) {
	var au AccessUnit

	hdr, err := readAUHeader(r)
	if err != nil {
		return AccessUnit{}, err
	}

	au.Header = hdr

	if !hdr.ParityValid {
		au.Diagnostics = append(au.Diagnostics, newDiagnostic(KindAUHeaderCRCMismatch, false, 0, -1, -1, "AU header parity mismatch"))
	}

	au.IsDuplicate = p.state.Timing.observe(hdr.InputTiming)

	if au.IsDuplicate {
		au.Diagnostics = append(au.Diagnostics, newDiagnostic(KindDuplicateAU, false, 0, -1, -1, "duplicate AU at splice point"))
		return au, nil
	}

	p.state.HasBranch = false

	if r.Available() >= 32 {
		peekPos := r.Position()

		sigBits, err := r.Bits(32)
		// Only the current FBA signature is treated as a major-sync
		// candidate here; the legacy FBB variant (majorSyncLegacySignature)
		// is out of scope per the Non-goals and must be ignored rather than
		// handed to readMajorSync, which would abort the whole AU on it.
		if err == nil && uint32(sigBits) == MajorSyncSignature {
			if seekErr := r.Seek(peekPos); seekErr != nil {
				return AccessUnit{}, seekErr
			}

			ms, msDiag, err := readMajorSync(r, majorSyncCRCAlg)
			if err != nil {
				return AccessUnit{}, err
			}

			if msDiag.Message != "" {
				au.Diagnostics = append(au.Diagnostics, msDiag)
			}

			p.state.HasBranch = p.state.MajorSync != nil && ms.PeakDataRateUnits != p.state.MajorSync.PeakDataRateUnits
			p.state.MajorSync = &ms
			p.state.Presentations = NewPresentationMap(ms.NumSubstreams)
		} else if err == nil {
			if seekErr := r.Seek(peekPos); seekErr != nil {
				return AccessUnit{}, seekErr
			}
		}
	}

	if p.state.MajorSync == nil {
		return AccessUnit{}, fmt.Errorf("truehd: %w: no major sync seen yet", ErrAborted)
	}

	au.MajorSync = p.state.MajorSync

	dir, err := readSubstreamDirectory(r, p.state.MajorSync.NumSubstreams)
	if err != nil {
		return AccessUnit{}, err
	}

	au.Directory = dir

	presentation, pdiag := resolvePresentation(p.cfg.Presentation, p.state.Presentations, 0)
	if pdiag != nil {
		au.Diagnostics = append(au.Diagnostics, *pdiag)
	}

	au.Presentation = presentation

	segmentStartBit := r.Position()

	for idx, entry := range dir {
		seg, diags, err := p.parseSubstream(r, idx, entry, au.MajorSync.SamplesPerAU)
		if err != nil {
			return AccessUnit{}, fmt.Errorf("truehd: substream %d: %w", idx, err)
		}

		au.Substreams = append(au.Substreams, seg)
		au.Diagnostics = append(au.Diagnostics, diags...)
	}

	_ = segmentStartBit

	pcm, err := p.synthesizePresentation(au, presentation)
	if err != nil {
		return AccessUnit{}, err
	}

	au.PCM = pcm

	for _, seg := range au.Substreams {
		if seg.Terminator.OAMD != nil {
			au.OAMD = seg.Terminator.OAMD

			break
		}
	}

	return au, nil
}

// parseSubstream decodes every block of one substream segment, up to its
// directory-declared end offset, honoring the restart/continuation
// block structure.
func (p *Parser) parseSubstream(r *bitio.Reader, idx int, entry SubstreamDirectoryEntry, samplesPerAU int) (SubstreamSegment, []Diagnostic, error) {
	var diags []Diagnostic

	segStartBit := r.Position()
	endBit := segStartBit + entry.EndOffsetWords*16

	substate := &p.state.Substreams[idx]

	var blocks []Block

	samplesRemaining := samplesPerAU

	for r.Position() < endBit && samplesRemaining > 0 {
		blockStartBit := r.Position()

		bh, bhDiag, err := readBlockHeader(r, blockStartBit, p.state.HasBranch)
		if err != nil {
			return SubstreamSegment{}, nil, err
		}

		if bhDiag.Message != "" {
			diags = append(diags, bhDiag)
		}

		if bh.Restart != nil {
			if substate.Restart != nil && substate.LosslessAccum != bh.Restart.LosslessCheck {
				diags = append(diags, newDiagnostic(KindLosslessCheckMismatch, p.state.HasBranch, blockStartBit/8, idx, -1, "lossless check mismatch"))
			}

			substate.reset(*bh.Restart)
		}

		if substate.Restart == nil {
			return SubstreamSegment{}, nil, fmt.Errorf("truehd: %w: block with no restart header in effect", ErrAborted)
		}

		rh := substate.Restart

		if err := readBlockChannelFlags(r, &bh, rh.MinChannel, rh.MaxChannel, bh.Restart != nil); err != nil {
			return SubstreamSegment{}, nil, err
		}

		blockSamples := samplesRemaining
		if blockSamples > samplesPerAU {
			blockSamples = samplesPerAU
		}

		block, err := readBlockData(r, bh, rh.MinChannel, rh.MaxChannel, blockSamples, substate.ChannelParams[:])
		if err != nil {
			return SubstreamSegment{}, nil, err
		}

		for ch := rh.MinChannel; ch <= rh.MaxChannel; ch++ {
			i := ch - rh.MinChannel
			fa := substate.ChannelParams[ch].FilterA
			fb := substate.ChannelParams[ch].FilterB
			block.Residual[i] = applyPrediction(block.Residual[i], &fa, &fb)
			substate.ChannelParams[ch].FilterA = fa
			substate.ChannelParams[ch].FilterB = fb
		}

		for s := 0; s < blockSamples; s++ {
			row := make([]int32, rh.MaxChannel-rh.MinChannel+1)
			for ch := range row {
				row[ch] = block.Residual[ch][s]
			}

			substate.DitherState = ditherLFSR(substate.DitherState)
			dither := ditherValue(substate.DitherState, 0)

			applyMatrix(row, rh.Matrices, dither, rh.SyncWord == RestartSyncC)

			for ch := range row {
				block.Residual[ch][s] = row[ch]
			}
		}

		substate.LosslessAccum ^= applyOutputShiftAndCheck(block.Residual, rh.OutputShift)

		blocks = append(blocks, block)

		samplesRemaining -= blockSamples

		marker, err := r.Bits(2)
		if err != nil {
			return SubstreamSegment{}, nil, err
		}

		isFinal, ok := blockTerminatorValid(marker)
		if !ok {
			return SubstreamSegment{}, nil, fmt.Errorf("truehd: bad block terminator marker 0b%02b", marker)
		}

		if isFinal {
			break
		}
	}

	if err := r.Seek(endBit); err != nil {
		return SubstreamSegment{}, nil, err
	}

	term, termDiags, err := readTerminator(r, entry, segStartBit, endBit, p.state.HasBranch)
	if err != nil {
		return SubstreamSegment{}, nil, err
	}

	diags = append(diags, termDiags...)

	return SubstreamSegment{Entry: entry, Blocks: blocks, Terminator: term}, diags, nil
}

// synthesizePresentation flattens a presentation's substreams' blocks
// into a single per-channel PCM buffer. Output shift and the
// lossless-check accumulation are already applied per block, per
// substream, in parseSubstream — each substream carries its own
// restart-declared shift, which a single shared array applied here
// could not represent once a presentation combines more than one
// substream.
func (p *Parser) synthesizePresentation(au AccessUnit, presentation int) ([][]int32, error) {
	mask := p.state.Presentations.SubstreamMaskForPresentation(presentation)

	var channels [][]int32

	for idx, seg := range au.Substreams {
		if mask&(1<<uint(idx)) == 0 {
			continue
		}

		for _, block := range seg.Blocks {
			if channels == nil {
				channels = make([][]int32, len(block.Residual))
			}

			for ch := range block.Residual {
				if ch >= len(channels) {
					continue
				}

				channels[ch] = append(channels[ch], block.Residual[ch]...)
			}
		}
	}

	return channels, nil
}
