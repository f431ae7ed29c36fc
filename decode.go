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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrReadFailure wraps any I/O or bitstream error surfaced while pulling
// access units from the underlying stream.
var ErrReadFailure = errors.New("truehd: read failure")

// DecodedAccessUnit is one fully decoded access unit: its PCM samples
// (one slice per channel), the channel layout they correspond to, and
// any out-of-band metadata/anomalies observed while producing it.
type DecodedAccessUnit struct {
	PCM                 [][]int32
	SampleCount         int
	ChannelLayout       []ChannelLabel
	Presentation        int
	PresentationChanged bool
	IsDuplicate         bool
	OAMD                *OAMD
	Timestamp           *Timestamp
	Diagnostics         []Diagnostic
}

// Decoder streams decoded PCM access units from a TrueHD elementary
// stream, applying Config's fail-level policy at each step.
type Decoder struct {
	extractor        *Extractor
	parser           *Parser
	cfg              Config
	format           PCMFormat
	haveFormat       bool
	lastPresentation int

	buf    []byte
	bufOff int
	eof    bool
}

// NewDecoder wraps r for streaming TrueHD decode using cfg.
func NewDecoder(r io.Reader, cfg Config) *Decoder {
	return &Decoder{
		extractor: NewExtractor(r),
		parser:    NewParser(cfg),
		cfg:       cfg,
	}
}

// Format returns the PCM output format latched from the most recent
// major sync. Valid only after the first successful Next/Read call.
func (d *Decoder) Format() PCMFormat { return d.format }

// Next pulls and decodes the next access unit. It returns io.EOF when the
// stream is exhausted cleanly.
func (d *Decoder) Next() (DecodedAccessUnit, error) {
	auBytes, err := d.extractor.Next()
	if err != nil {
		if errors.Is(err, ErrNoMoreAUs) {
			return DecodedAccessUnit{}, io.EOF
		}

		return DecodedAccessUnit{}, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}

	au, err := d.parser.ParseAU(auBytes)
	if err != nil {
		return DecodedAccessUnit{}, fmt.Errorf("%w: %w", ErrReadFailure, err)
	}

	for _, diag := range au.Diagnostics {
		if shouldAbort(diag, d.cfg) {
			return DecodedAccessUnit{}, abortError(diag)
		}
	}

	if au.MajorSync != nil {
		d.format = PCMFormat{
			SampleRate: int(au.MajorSync.SamplingFrequency),
			Channels:   len(au.PCM),
		}
		d.haveFormat = true
	}

	var layout []ChannelLabel
	if au.MajorSync != nil {
		switch len(au.PCM) {
		case 6:
			layout = LabelsFromSixchAssignment(au.MajorSync.FormatInfo.SixchChannelAssign)
		case 8:
			layout = LabelsFromEightchAssignment(au.MajorSync.FormatInfo.EightchChannelAssign)
		default:
			layout = []ChannelLabel{ChanL, ChanR}
		}
	}

	presentationChanged := au.Presentation != d.lastPresentation
	d.lastPresentation = au.Presentation

	sampleCount := 0
	if len(au.PCM) > 0 {
		sampleCount = len(au.PCM[0])
	}

	return DecodedAccessUnit{
		PCM:                 au.PCM,
		SampleCount:         sampleCount,
		ChannelLayout:       layout,
		Presentation:        au.Presentation,
		PresentationChanged: presentationChanged,
		IsDuplicate:         au.IsDuplicate,
		OAMD:                au.OAMD,
		Timestamp:           d.extractor.LastTimestamp(),
		Diagnostics:         au.Diagnostics,
	}, nil
}

// Read implements io.Reader, interleaving decoded PCM as signed 32-bit
// little-endian samples. Most callers needing per-channel access should
// prefer Next; Read exists for parity with the ambient io.Reader-based
// streaming idiom used elsewhere in the stack.
func (d *Decoder) Read(p []byte) (int, error) { //nolint:varnamelen // p is idiomatic for io.Reader.Read
	total := 0

	for len(p) > 0 {
		if d.bufOff < len(d.buf) {
			n := copy(p, d.buf[d.bufOff:])
			d.bufOff += n
			total += n
			p = p[n:]

			continue
		}

		if d.eof {
			if total > 0 {
				return total, nil
			}

			return 0, io.EOF
		}

		au, err := d.Next()
		if errors.Is(err, io.EOF) {
			d.eof = true

			if total > 0 {
				return total, nil
			}

			return 0, io.EOF
		}

		if err != nil {
			return total, err
		}

		d.buf = interleavePCM(au.PCM)
		d.bufOff = 0
	}

	return total, nil
}

// interleavePCM packs per-channel int32 PCM into interleaved little-endian
// 32-bit sample bytes.
func interleavePCM(channels [][]int32) []byte {
	if len(channels) == 0 {
		return nil
	}

	numSamples := len(channels[0])
	out := make([]byte, numSamples*len(channels)*4)

	for s := 0; s < numSamples; s++ {
		for ch, samples := range channels {
			off := (s*len(channels) + ch) * 4
			binary.LittleEndian.PutUint32(out[off:], uint32(samples[s]))
		}
	}

	return out
}

// ParsedAUs returns an iterator (Go 1.23 range-over-func style) over
// decoded access units, without the Decoder's Read-oriented byte
// buffering — useful for tools that need AU-level metadata (timestamps,
// OAMD, diagnostics) without committing to a PCM byte layout.
func (d *Decoder) ParsedAUs() func(yield func(DecodedAccessUnit, error) bool) {
	return func(yield func(DecodedAccessUnit, error) bool) {
		for {
			au, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}

			if !yield(au, err) {
				return
			}

			if err != nil {
				return
			}
		}
	}
}

// DecodedAUs is an alias of ParsedAUs kept for call sites that only ever
// want fully decoded PCM; the two never actually diverge in this
// implementation since Next always decodes to PCM (see DESIGN.md).
func (d *Decoder) DecodedAUs() func(yield func(DecodedAccessUnit, error) bool) {
	return d.ParsedAUs()
}

// Decode reads an entire TrueHD elementary stream and decodes it to
// interleaved little-endian signed 32-bit PCM bytes.
func Decode(r io.Reader, cfg Config) ([]byte, PCMFormat, error) {
	dec := NewDecoder(r, cfg)

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, PCMFormat{}, fmt.Errorf("decoding truehd: %w", err)
	}

	return pcm, dec.Format(), nil
}
