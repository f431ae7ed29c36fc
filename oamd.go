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

// ObjectGainPosition is one object's per-AU gain and 3D position,
// expressed as fixed-point fractions the way the object substream
// carries them.
type ObjectGainPosition struct {
	Gain8Bit int
	X, Y, Z  int // 8-bit fixed point, 0..255 mapping to 0.0..1.0
}

// OAMD is the Object Audio Metadata carried by the object substream
// (presentation index 3). This is a simplified rendition: it captures
// the program and object counts, per-object gain/position, and a
// bed-conform flag, but does not attempt the
// reference's full trim/ducking/snap-to-speaker metadata surface — see
// SPEC_FULL.md §3 and DESIGN.md.
type OAMD struct {
	Version        int
	ProgramCount   int
	ObjectCount    int
	BedConform     bool
	Objects        []ObjectGainPosition
	LengthMismatch bool
}

const maxOAMDObjects = 118

// readOAMD parses one OAMD block. declaredLengthBytes is the length the
// enclosing EVO frame or extra-data wrapper declared for this block; if
// the parse consumes a different number of bytes, LengthMismatch is set
// and a KindOAMDLengthMismatch diagnostic (default severity Error) is
// returned; whether that aborts decoding is up to the fail-level policy.
func readOAMD(r *bitio.Reader, declaredLengthBytes int) (OAMD, Diagnostic, error) {
	startBit := r.Position()

	version, err := r.Bits(8)
	if err != nil {
		return OAMD{}, Diagnostic{}, err
	}

	programCount, err := r.Bits(4)
	if err != nil {
		return OAMD{}, Diagnostic{}, err
	}

	objectCountField, err := r.Bits(8)
	if err != nil {
		return OAMD{}, Diagnostic{}, err
	}

	objectCount := int(objectCountField)
	if objectCount > maxOAMDObjects {
		return OAMD{}, Diagnostic{}, fmt.Errorf("truehd: %w: object count %d exceeds %d", ErrAborted, objectCount, maxOAMDObjects)
	}

	bedConform, err := r.Bool()
	if err != nil {
		return OAMD{}, Diagnostic{}, err
	}

	if err := r.Skip(3); err != nil { // reserved
		return OAMD{}, Diagnostic{}, err
	}

	objects := make([]ObjectGainPosition, objectCount)

	for i := range objects {
		gain, err := r.Bits(8)
		if err != nil {
			return OAMD{}, Diagnostic{}, err
		}

		x, err := r.Bits(8)
		if err != nil {
			return OAMD{}, Diagnostic{}, err
		}

		y, err := r.Bits(8)
		if err != nil {
			return OAMD{}, Diagnostic{}, err
		}

		z, err := r.Bits(8)
		if err != nil {
			return OAMD{}, Diagnostic{}, err
		}

		objects[i] = ObjectGainPosition{
			Gain8Bit: int(gain),
			X:        int(x),
			Y:        int(y),
			Z:        int(z),
		}
	}

	oamd := OAMD{
		Version:      int(version),
		ProgramCount: int(programCount),
		ObjectCount:  objectCount,
		BedConform:   bedConform,
		Objects:      objects,
	}

	consumedBytes := (r.Position() - startBit) / 8
	if declaredLengthBytes > 0 && consumedBytes != declaredLengthBytes {
		oamd.LengthMismatch = true

		diag := newDiagnostic(KindOAMDLengthMismatch, false, startBit/8, -1, -1,
			fmt.Sprintf("OAMD consumed %d bytes, declared %d", consumedBytes, declaredLengthBytes))

		return oamd, diag, nil
	}

	return oamd, Diagnostic{}, nil
}
