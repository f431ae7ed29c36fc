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

const maxSubstreamDirectoryEntries = 4

// SubstreamDirectoryEntry is one entry of the AU header's substream
// directory: where a substream's segment ends within the AU, and which
// trailing fields (extra data, check byte) it carries.
type SubstreamDirectoryEntry struct {
	ExtraDataPresent bool
	CheckDataPresent bool
	EndOffsetWords   int // length of this substream's segment in 16-bit words, counted from the segment's own first bit (not from the AU start)
}

// readSubstreamDirectory reads numSubstreams entries (1..4).
func readSubstreamDirectory(r *bitio.Reader, numSubstreams int) ([]SubstreamDirectoryEntry, error) {
	if numSubstreams < 1 || numSubstreams > maxSubstreamDirectoryEntries {
		return nil, fmt.Errorf("truehd: %w: substream count %d out of range", ErrAborted, numSubstreams)
	}

	entries := make([]SubstreamDirectoryEntry, numSubstreams)

	for i := range entries {
		extraData, err := r.Bool()
		if err != nil {
			return nil, err
		}

		checkData, err := r.Bool()
		if err != nil {
			return nil, err
		}

		if err := r.Skip(2); err != nil { // reserved
			return nil, err
		}

		offset, err := r.Bits(12)
		if err != nil {
			return nil, err
		}

		entries[i] = SubstreamDirectoryEntry{
			ExtraDataPresent: extraData,
			CheckDataPresent: checkData,
			EndOffsetWords:   int(offset),
		}
	}

	return entries, nil
}

// evoFrameSyncLen is the byte length of the 0xFB 0xA1 sync pattern
// readExtraData matches to recognize an embedded EVO frame, consumed
// before the OAMD payload proper begins.
const evoFrameSyncLen = 2

// Terminator is the trailing byte(s) closing a substream segment: an
// optional extra-data block (itself optionally carrying an OAMD
// payload), then (when CheckDataPresent) a CRC byte and a parity byte
// XOR'd with the fixed mask 0xA9.
type Terminator struct {
	ExtraData   *ExtraData
	OAMD        *OAMD
	CRC         uint8
	CRCValid    bool
	Parity      uint8
	ParityValid bool
}

const substreamParityXORMask = 0xA9

// readTerminator parses a substream's trailing fields. segmentStartBit
// and segmentEndBit delimit the substream segment's payload (excluding
// the terminator itself) for CRC/parity computation.
func readTerminator(r *bitio.Reader, entry SubstreamDirectoryEntry, segmentStartBit, segmentEndBit int, atBranch bool) (Terminator, []Diagnostic, error) {
	var term Terminator
	var diags []Diagnostic

	if entry.ExtraDataPresent {
		ed, err := readExtraData(r)
		if err != nil {
			return Terminator{}, nil, err
		}

		term.ExtraData = &ed

		if len(ed.EvoFrame) > evoFrameSyncLen {
			oamdReader := bitio.NewReader(ed.EvoFrame[evoFrameSyncLen:])

			oamd, oamdDiag, err := readOAMD(oamdReader, len(ed.EvoFrame)-evoFrameSyncLen)
			if err == nil {
				term.OAMD = &oamd

				if oamdDiag.Message != "" {
					diags = append(diags, oamdDiag)
				}
			}
		}
	}

	if !entry.CheckDataPresent {
		return term, diags, nil
	}

	payload, err := r.BytesRange(segmentStartBit, segmentEndBit)
	if err != nil {
		return Terminator{}, nil, err
	}

	crcByteField, err := r.Bits(8)
	if err != nil {
		return Terminator{}, nil, err
	}

	term.CRC = uint8(crcByteField)

	c := crc.NewCrc8(crc.Substream)
	computedCRC := c.Checksum(payload)
	term.CRCValid = computedCRC == term.CRC

	parityByteField, err := r.Bits(8)
	if err != nil {
		return Terminator{}, nil, err
	}

	term.Parity = uint8(parityByteField)

	var xorAcc uint8
	for _, b := range payload {
		xorAcc ^= b
	}

	computedParity := xorAcc ^ substreamParityXORMask
	term.ParityValid = computedParity == term.Parity

	if !term.CRCValid {
		diags = append(diags, newDiagnostic(KindSubstreamCRCMismatch, atBranch, segmentStartBit/8, -1, -1, "substream CRC mismatch"))
	} else if !term.ParityValid {
		diags = append(diags, newDiagnostic(KindRestartParityMismatch, atBranch, segmentStartBit/8, -1, -1, "substream parity mismatch"))
	}

	return term, diags, nil
}

// SubstreamSegment is one substream's fully parsed contents within an AU:
// its directory entry, the blocks it carries, and its terminator.
type SubstreamSegment struct {
	Entry      SubstreamDirectoryEntry
	Blocks     []Block
	Terminator Terminator
}
