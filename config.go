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

// WarpMode is the default downmix/object-rendering warp mode substituted
// when an OAMD block omits one.
type WarpMode int

// Recognized warp modes, per SPEC_FULL.md §6.3.
const (
	WarpNormal WarpMode = iota
	WarpWarping
	WarpProLogicIIx
	WarpLoRo
)

// Config is the closed, small configuration set accepted by the façade
// constructor. There is no global state and no environment reads inside
// the core; every caller-visible knob is named here.
type Config struct {
	// FailLevel is the minimum anomaly severity that aborts decoding.
	// Defaults to FailError.
	FailLevel FailLevel

	// Strict treats Warning as the effective fail level regardless of
	// FailLevel.
	Strict bool

	// Presentation selects which of the four presentations (0..3) to
	// decode. If the stream offers fewer, the façade falls back to the
	// highest available and reports KindPresentationUnavailable at Info.
	Presentation int

	// BedConform is carried in the configuration only: the decoder does
	// not read it, and no bed remapping to 7.1.2 is performed.
	BedConform bool

	// WarpMode is carried in the configuration only: the decoder does not
	// read it, and parsed OAMD frames have no warp-mode field to fill.
	WarpMode WarpMode
}

// DefaultConfig returns the façade's default configuration: fail on Error,
// decode presentation 0, BedConform false, WarpMode Normal.
func DefaultConfig() Config {
	return Config{
		FailLevel:    FailError,
		Presentation: 0,
		WarpMode:     WarpNormal,
	}
}
