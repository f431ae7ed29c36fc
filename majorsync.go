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

// MajorSyncSignature is the 32-bit value identifying a TrueHD major sync
// block (the legacy Meridian FBB variant, 0xF8726FBB, is out of scope per
// SPEC_FULL.md's Non-goals and rejected wherever it is seen).
const MajorSyncSignature uint32 = 0xF8726FBA

const majorSyncLegacySignature uint32 = 0xF8726FBB

const (
	baseSamplingRateCD  = 44100
	baseSamplingRateDVD = 48000
	baseSamplesPerAU    = 40
	majorSyncFlagsMask  = 0x67FF // reserved-bit mask; set bits outside this are invalid
)

// FormatInfo carries the per-AU sample-rate code and 6/8-channel
// assignment bitmaps, per original_source/truehd/src/structs/sync.rs.
type FormatInfo struct {
	SamplingFrequencyCode uint8
	SixchChannelAssign    uint16
	EightchChannelAssign  uint16
}

// SamplingFrequency derives the actual sample rate from the 4-bit code:
// codes 0..2 select the 48kHz family (48000<<code), codes 8..10 select
// the 44.1kHz family (44100<<(code-8)).
func (fi FormatInfo) SamplingFrequency() (uint32, error) {
	switch {
	case fi.SamplingFrequencyCode <= 2:
		return baseSamplingRateDVD << fi.SamplingFrequencyCode, nil
	case fi.SamplingFrequencyCode >= 8 && fi.SamplingFrequencyCode <= 10:
		return baseSamplingRateCD << (fi.SamplingFrequencyCode - 8), nil
	default:
		return 0, fmt.Errorf("truehd: unknown sampling frequency code %d", fi.SamplingFrequencyCode)
	}
}

// SamplesPerAU returns the fixed access-unit sample count for this
// sample rate: baseSamplesPerAU scaled by how many multiples of the
// family's base rate the actual rate represents.
func SamplesPerAU(freq uint32) int {
	if freq%baseSamplingRateCD == 0 {
		return baseSamplesPerAU * int(freq/baseSamplingRateCD)
	}

	return baseSamplesPerAU * int(freq/baseSamplingRateDVD)
}

func readFormatInfo(r *bitio.Reader) (FormatInfo, error) {
	rateCode, err := r.Bits(4)
	if err != nil {
		return FormatInfo{}, err
	}

	if err := r.Skip(4); err != nil { // reserved
		return FormatInfo{}, err
	}

	if err := r.Skip(8); err != nil { // second (unused/legacy) sample-rate group
		return FormatInfo{}, err
	}

	if err := r.Skip(4); err != nil { // reserved
		return FormatInfo{}, err
	}

	sixch, err := r.Bits(5)
	if err != nil {
		return FormatInfo{}, err
	}

	if err := r.Skip(2); err != nil { // reserved
		return FormatInfo{}, err
	}

	eightch, err := r.Bits(13)
	if err != nil {
		return FormatInfo{}, err
	}

	return FormatInfo{
		SamplingFrequencyCode: uint8(rateCode),
		SixchChannelAssign:    uint16(sixch),
		EightchChannelAssign:  uint16(eightch),
	}, nil
}

// MajorSync is the AU-level header establishing the stream's fixed
// parameters. It is present on the first AU of a sequence and at every
// restart point; its fields are latched until the next MajorSync.
type MajorSync struct {
	FormatInfo           FormatInfo
	SamplingFrequency    uint32
	SamplesPerAU         int
	VariableRate         bool
	PeakDataRateUnits    uint16 // 15-bit units of 10 kbit/s
	NumSubstreams        int
	ExtendedSubstreamInfo uint8
	SubstreamInfo         uint8
	Flags                 uint16
	CRC                   uint16
	CRCValid              bool
}

// readMajorSync parses a major sync block; r must be positioned at the
// 32-bit signature itself. The 16-bit CRC, validated against crcAlg,
// covers every byte from the signature through the trailing reserved
// byte, i.e. everything before the CRC field.
func readMajorSync(r *bitio.Reader, crcAlg *crc.Crc16) (MajorSync, Diagnostic, error) {
	infoStart := r.Position()

	sig, err := r.Bits(32)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	if uint32(sig) == majorSyncLegacySignature {
		return MajorSync{}, Diagnostic{}, fmt.Errorf("truehd: legacy FBB major sync not supported")
	}

	if uint32(sig) != MajorSyncSignature {
		return MajorSync{}, Diagnostic{}, fmt.Errorf("truehd: bad major sync signature 0x%08x", sig)
	}

	formatInfo, err := readFormatInfo(r)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	flags, err := r.Bits(16)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	if err := r.Skip(16); err != nil { // reserved
		return MajorSync{}, Diagnostic{}, err
	}

	variableRate, err := r.Bool()
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	if err := r.Skip(15); err != nil { // reserved
		return MajorSync{}, Diagnostic{}, err
	}

	peakDataRate, err := r.Bits(15)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	if err := r.Skip(1); err != nil { // reserved
		return MajorSync{}, Diagnostic{}, err
	}

	numSubstreamsField, err := r.Bits(4)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	extSubInfo, err := r.Bits(2)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	subInfo, err := r.Bits(2)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	if err := r.Skip(8); err != nil { // reserved
		return MajorSync{}, Diagnostic{}, err
	}

	infoEnd := r.Position()

	checksum, err := r.Bits(16)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	infoBytes, err := r.BytesRange(infoStart, infoEnd)
	if err != nil {
		return MajorSync{}, Diagnostic{}, err
	}

	computed := crcAlg.Checksum(infoBytes)
	crcValid := computed == uint16(checksum)

	var diag Diagnostic
	if !crcValid {
		diag = newDiagnostic(KindAUHeaderCRCMismatch, false, infoStart/8, -1, -1,
			fmt.Sprintf("major sync info CRC mismatch: got 0x%04x want 0x%04x", checksum, computed))
	}

	if uint16(flags)&^uint16(majorSyncFlagsMask) != 0 {
		diag = newDiagnostic(KindInvalidSyncSignature, false, infoStart/8, -1, -1,
			fmt.Sprintf("reserved major sync flag bits set: 0x%04x", flags))
	}

	freq, err := formatInfo.SamplingFrequency()
	if err != nil {
		return MajorSync{}, diag, err
	}

	numSubstreams := int(numSubstreamsField) + 1
	if numSubstreams > 4 {
		numSubstreams = 4
	}

	return MajorSync{
		FormatInfo:            formatInfo,
		SamplingFrequency:     freq,
		SamplesPerAU:          SamplesPerAU(freq),
		VariableRate:          variableRate,
		PeakDataRateUnits:     uint16(peakDataRate),
		NumSubstreams:         numSubstreams,
		ExtendedSubstreamInfo: uint8(extSubInfo),
		SubstreamInfo:         uint8(subInfo),
		Flags:                 uint16(flags),
		CRC:                   uint16(checksum),
		CRCValid:              crcValid,
	}, diag, nil
}

// PeakDataRateBps converts the stored 15-bit peak-data-rate field (units
// of 10 kbit/s) to bits per second.
func (m MajorSync) PeakDataRateBps() uint64 {
	return uint64(m.PeakDataRateUnits) * 10000
}
