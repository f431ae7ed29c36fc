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

// MaxPresentations is the number of selectable presentations (2ch, 6ch,
// 8ch, object).
const MaxPresentations = 4

// PresentationType classifies how a presentation index relates to the
// substreams actually carried by the stream.
type PresentationType int

// Presentation classifications.
const (
	PresentationInvalid PresentationType = iota
	PresentationCopyOf
	PresentationDownmixOf
	PresentationIndependent
)

// PresentationMap derives, for each presentation index 0..3, whether it is
// decodable and which substream count it requires.
//
// This is a simplified derivation grounded directly on SPEC_FULL.md §3's
// stated contract ("presentation k uses substreams 0..k; if the stream
// declares fewer substreams than k, presentation k is unavailable") rather
// than a bit-for-bit port of the reference implementation's
// substream_info/extended_substream_info CopyOf/DownmixOf bit-classifier,
// whose exact bitmask constants could not be reliably recovered without
// executing the reference decoder. See DESIGN.md.
type PresentationMap struct {
	numSubstreams int
}

// NewPresentationMap builds a map for a stream declaring numSubstreams
// substreams (1..4).
func NewPresentationMap(numSubstreams int) PresentationMap {
	return PresentationMap{numSubstreams: numSubstreams}
}

// TypeByIndex classifies presentation index idx (0..3).
func (p PresentationMap) TypeByIndex(idx int) PresentationType {
	if idx < 0 || idx >= MaxPresentations {
		return PresentationInvalid
	}

	if idx < p.numSubstreams {
		return PresentationIndependent
	}

	return PresentationInvalid
}

// MaxIndependentPresentation returns the highest available presentation
// index, or -1 if none is decodable.
func (p PresentationMap) MaxIndependentPresentation() int {
	if p.numSubstreams <= 0 {
		return -1
	}

	if p.numSubstreams > MaxPresentations {
		return MaxPresentations - 1
	}

	return p.numSubstreams - 1
}

// SubstreamMaskForPresentation returns the bitmask of substream indices
// (0..3) required to decode presentation idx.
func (p PresentationMap) SubstreamMaskForPresentation(idx int) uint8 {
	if p.TypeByIndex(idx) == PresentationInvalid {
		return 0
	}

	var mask uint8
	for i := 0; i <= idx; i++ {
		mask |= 1 << uint(i)
	}

	return mask
}

// resolvePresentation picks the presentation to decode given the caller's
// requested index and the stream's actual substream count, demoting with
// a Diagnostic when the request is unavailable.
func resolvePresentation(requested int, pm PresentationMap, auOffset int) (int, *Diagnostic) {
	if pm.TypeByIndex(requested) == PresentationIndependent {
		return requested, nil
	}

	fallback := pm.MaxIndependentPresentation()
	diag := newDiagnostic(KindPresentationUnavailable, false, auOffset, -1, -1, "requested presentation unavailable, falling back")

	if fallback < 0 {
		return 0, &diag
	}

	return fallback, &diag
}
