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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrNoMoreAUs is returned by Extractor.Next when the input is exhausted
// cleanly (no partial trailing data).
var ErrNoMoreAUs = errors.New("truehd: no more access units")

const (
	minAUHeaderBytes        = 4
	maxAUSearchWindow       = 1 << 20 // give up resyncing after a megabyte with no valid major sync
	timestampPrefixBytes    = 16
	majorSyncSignatureBytes = 4 // length of the 0xF8726FBA/0xF8726FBB signature itself
)

// Extractor performs the byte-level framing step: given a raw TrueHD
// elementary stream, it locates AU boundaries by scanning for the major
// sync signature, validates the candidate with the major-sync info CRC,
// and locks onto the stream once a valid sync is found; thereafter it
// slices out one AU at a time using each AU header's length field.
//
// Grounded on original_source/truehd/src/process/extract.rs's
// Extractor: buffer/resync/locked state machine, adapted from its
// VecDeque ring buffer to a growable byte slice fed by a bufio.Reader.
type Extractor struct {
	r   *bufio.Reader
	buf []byte

	inited bool // resync has located at least one candidate (timestamp-prefix window no longer applies)
	locked bool // the current buf[0:] position is a CRC-validated major sync

	auOffset int

	pendingTimestamp *Timestamp
	lastTimestamp    *Timestamp
}

// NewExtractor wraps r for AU-level extraction.
func NewExtractor(r io.Reader) *Extractor {
	return &Extractor{r: bufio.NewReaderSize(r, 64*1024)}
}

// AUOffset returns the byte offset, from the start of the stream, of the
// most recently returned access unit.
func (e *Extractor) AUOffset() int {
	return e.auOffset
}

// LastTimestamp returns the SMPTE timestamp embedded immediately ahead
// of the most recently returned access unit's major sync, or nil if
// none was present (only the access unit that follows the detected
// prefix carries one; see resync).
func (e *Extractor) LastTimestamp() *Timestamp {
	return e.lastTimestamp
}

// fill grows buf until it holds at least atLeast bytes or the
// underlying reader errors (typically io.EOF).
func (e *Extractor) fill(atLeast int) error {
	for len(e.buf) < atLeast {
		chunk := make([]byte, 8192)

		n, err := e.r.Read(chunk)
		if n > 0 {
			e.buf = append(e.buf, chunk[:n]...)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// discard drops the first n bytes of buf, advancing auOffset.
func (e *Extractor) discard(n int) {
	if n <= 0 {
		return
	}

	if n > len(e.buf) {
		n = len(e.buf)
	}

	e.buf = e.buf[n:]
	e.auOffset += n
}

// findMajorSync scans buf, from index from onward, for the 4-byte
// signature 0xF8 0x72 0x6F 0xBA, or its legacy Meridian counterpart
// 0xF8 0x72 0x6F 0xBB. legacy reports which variant matched so the
// caller can reject the obsolete one instead of locking onto it. from
// is never allowed below minAUHeaderBytes, so a match always has at
// least minAUHeaderBytes of preceding buffer left to treat as this AU's
// header, the same way original_source's resync starts its scan at
// buffer index 4.
func findMajorSync(buf []byte, from int) (sigPos int, legacy bool, found bool) {
	start := from
	if start < minAUHeaderBytes {
		start = minAUHeaderBytes
	}

	for i := start; i+majorSyncSignatureBytes <= len(buf); i++ {
		if buf[i] != 0xF8 || buf[i+1] != 0x72 || buf[i+2] != 0x6F {
			continue
		}

		switch buf[i+3] {
		case 0xBA:
			return i, false, true
		case 0xBB:
			return i, true, true
		}
	}

	return 0, false, false
}

// majorSyncInfoLen returns the byte length of the CRC-covered part of
// the major sync block starting at buf[minAUHeaderBytes:] (signature
// included, CRC excluded): the same fixed 19-byte block readMajorSync
// parses and checksums. buf must start at the AU header (index 0), not
// at the signature.
func majorSyncInfoLen(buf []byte) (int, bool) {
	const infoLen = 19

	if len(buf) < minAUHeaderBytes+infoLen {
		return 0, false
	}

	return infoLen, true
}

// resync scans forward for a CRC-validated major sync and locks onto
// it, treating the minAUHeaderBytes immediately preceding a matched
// signature as this AU's header (original_source/truehd/src/process/
// extract.rs's "frame candidate is at offset 0" convention). When this
// is the very first sync this Extractor has located, a 16-byte SMPTE
// timestamp block immediately ahead of that header is recognized and
// stashed for the AU that follows.
func (e *Extractor) resync() error {
	e.locked = false

	searchFrom := minAUHeaderBytes

	for {
		if len(e.buf) < searchFrom+majorSyncSignatureBytes {
			if err := e.fill(searchFrom + 4096); err != nil {
				if len(e.buf) < searchFrom+majorSyncSignatureBytes {
					return err
				}
			}
		}

		sigPos, legacy, found := findMajorSync(e.buf, searchFrom)
		if !found {
			if len(e.buf) >= maxAUSearchWindow {
				return fmt.Errorf("truehd: %w: no major sync found within %d bytes", ErrNoMoreAUs, maxAUSearchWindow)
			}

			prevLen := len(e.buf)

			searchFrom = len(e.buf) - (majorSyncSignatureBytes - 1)
			if searchFrom < minAUHeaderBytes {
				searchFrom = minAUHeaderBytes
			}

			err := e.fill(len(e.buf) + 4096)
			if len(e.buf) == prevLen {
				// The underlying reader made no progress (clean EOF with no
				// sync ever found); stop instead of spinning.
				if err == nil {
					err = io.EOF
				}

				return err
			}

			if err != nil && len(e.buf) < searchFrom+majorSyncSignatureBytes {
				return err
			}

			continue
		}

		if legacy {
			// The legacy Meridian FBB sync word is out of scope per the
			// Non-goals; treat a match on it as noise and keep scanning
			// past it rather than locking onto it.
			searchFrom = sigPos + 1

			continue
		}

		auHeaderStart := sigPos - minAUHeaderBytes

		if !e.inited && auHeaderStart >= timestampPrefixBytes {
			e.discard(auHeaderStart - timestampPrefixBytes)

			if ts, err := TimestampFromBytes(e.buf[:timestampPrefixBytes]); err == nil {
				e.pendingTimestamp = &ts
			}

			e.discard(timestampPrefixBytes)
		} else {
			e.discard(auHeaderStart)
		}

		e.inited = true

		// e.buf[0:minAUHeaderBytes) is now this AU's header, and the
		// signature starts immediately after it.
		if err := e.fill(31); err != nil && len(e.buf) < 31 {
			return err
		}

		msLen, ok := majorSyncInfoLen(e.buf)
		if !ok {
			e.discard(1)
			searchFrom = minAUHeaderBytes

			continue
		}

		crcRegionEnd := minAUHeaderBytes + msLen
		crcFieldEnd := crcRegionEnd + 2

		if err := e.fill(crcFieldEnd); err != nil && len(e.buf) < crcFieldEnd {
			return err
		}

		want := binary.BigEndian.Uint16(e.buf[crcRegionEnd:crcFieldEnd])
		got := majorSyncCRCAlg.Checksum(e.buf[minAUHeaderBytes:crcRegionEnd])

		if want != got {
			// Candidate's info CRC doesn't check out; it was a coincidental
			// byte match, not a real sync. Keep looking past it.
			e.discard(1)
			searchFrom = minAUHeaderBytes

			continue
		}

		e.locked = true

		return nil
	}
}

// Next returns the raw bytes of the next access unit, header included.
func (e *Extractor) Next() ([]byte, error) {
	for {
		if !e.locked {
			if err := e.resync(); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, ErrNoMoreAUs) {
					return nil, ErrNoMoreAUs
				}

				return nil, err
			}
		}

		if err := e.fill(2); err != nil {
			if len(e.buf) == 0 {
				return nil, ErrNoMoreAUs
			}

			if len(e.buf) < 2 {
				return nil, fmt.Errorf("truehd: truncated access unit header: %w", io.ErrUnexpectedEOF)
			}
		}

		lengthField := int(e.buf[0]&0x0F)<<8 | int(e.buf[1])
		byteLength := lengthField * 2

		if byteLength < minAUHeaderBytes || byteLength > maxAUSearchWindow {
			e.locked = false

			continue
		}

		if err := e.fill(byteLength); err != nil && len(e.buf) < byteLength {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("truehd: truncated access unit at offset %d (%d of %d bytes): %w", e.auOffset, len(e.buf), byteLength, io.ErrUnexpectedEOF)
			}

			return nil, err
		}

		out := make([]byte, byteLength)
		copy(out, e.buf[:byteLength])

		e.discard(byteLength)

		e.lastTimestamp = e.pendingTimestamp
		e.pendingTimestamp = nil

		return out, nil
	}
}
