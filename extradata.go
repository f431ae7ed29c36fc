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

// ExtraData is the block trailing a substream segment when its directory
// entry's ExtraDataPresent flag is set. Most substreams carry nothing
// but zero padding to the next word boundary; the last substream of a
// presentation may instead carry an embedded EVO frame (object audio
// metadata delivered out of band from the OAMD substream proper).
type ExtraData struct {
	LengthWords int
	PaddingOnly bool
	EvoFrame    []byte
}

// readExtraData parses one extra-data block: a 16-bit length-in-words
// field followed by a payload. An all-zero payload is padding; any other
// payload is stored in EvoFrame, whether or not its first two bytes
// match the EVO frame sync pattern 0xFBA1.
func readExtraData(r *bitio.Reader) (ExtraData, error) {
	lengthField, err := r.Bits(16)
	if err != nil {
		return ExtraData{}, err
	}

	lengthWords := int(lengthField)
	if lengthWords == 0 {
		return ExtraData{LengthWords: 0, PaddingOnly: true}, nil
	}

	payloadBits := lengthWords*16 - 16
	if payloadBits < 0 {
		return ExtraData{}, fmt.Errorf("truehd: %w: extra data length %d too short", ErrAborted, lengthWords)
	}

	startBit := r.Position()

	if err := r.Skip(payloadBits); err != nil {
		return ExtraData{}, err
	}

	raw, err := r.BytesRange(startBit, r.Position())
	if err != nil {
		return ExtraData{}, err
	}

	ed := ExtraData{LengthWords: lengthWords}

	if len(raw) >= 2 && raw[0] == 0xFB && raw[1] == 0xA1 {
		ed.EvoFrame = raw
		return ed, nil
	}

	for _, b := range raw {
		if b != 0 {
			ed.PaddingOnly = false
			ed.EvoFrame = raw
			return ed, nil
		}
	}

	ed.PaddingOnly = true

	return ed, nil
}
