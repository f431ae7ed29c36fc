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

import "fmt"

// PCMFormat describes the output format of a decoded presentation.
// TrueHD's core always reconstructs signed 24-bit samples carried in
// 32-bit words (SPEC_FULL.md §6.2); SampleRate and Channels vary with the
// stream's latched MajorSync and selected presentation.
type PCMFormat struct {
	SampleRate int
	Channels   int
}

// ChannelLabel names one output channel position. Values and groupings
// are grounded on original_source/truehd/src/structs/channel.rs.
type ChannelLabel int

// Recognized channel labels.
const (
	ChanL ChannelLabel = iota
	ChanR
	ChanC
	ChanLFE
	ChanLs
	ChanRs
	ChanTfl
	ChanTfr
	ChanTsl
	ChanTsr
	ChanTbl
	ChanTbr
	ChanLsc
	ChanRsc
	ChanLb
	ChanRb
	ChanCb
	ChanTc
	ChanLsd
	ChanRsd
	ChanLw
	ChanRw
	ChanTfc
	ChanLFE2
)

//nolint:gochecknoglobals
var channelLabelNames = map[ChannelLabel]string{
	ChanL: "L", ChanR: "R", ChanC: "C", ChanLFE: "LFE",
	ChanLs: "Ls", ChanRs: "Rs", ChanTfl: "Tfl", ChanTfr: "Tfr",
	ChanTsl: "Tsl", ChanTsr: "Tsr", ChanTbl: "Tbl", ChanTbr: "Tbr",
	ChanLsc: "Lsc", ChanRsc: "Rsc", ChanLb: "Lb", ChanRb: "Rb",
	ChanCb: "Cb", ChanTc: "Tc", ChanLsd: "Lsd", ChanRsd: "Rsd",
	ChanLw: "Lw", ChanRw: "Rw", ChanTfc: "Tfc", ChanLFE2: "LFE2",
}

func (c ChannelLabel) String() string {
	if name, ok := channelLabelNames[c]; ok {
		return name
	}

	return fmt.Sprintf("chan(%d)", int(c))
}

// sixchChannelBits maps each bit of the 6-ch channel-assignment bitmap (as
// read from MajorSync.FormatInfo) to the label it contributes, in
// bitstream-declared order.
//
//nolint:gochecknoglobals
var sixchChannelBits = []struct {
	bit    uint
	labels []ChannelLabel
}{
	{0, []ChannelLabel{ChanC}},
	{1, []ChannelLabel{ChanLFE}},
	{2, []ChannelLabel{ChanLs, ChanRs}},
	{3, []ChannelLabel{ChanLsd, ChanRsd}},
	{4, []ChannelLabel{ChanLw, ChanRw}},
	{5, []ChannelLabel{ChanLsc, ChanRsc}},
}

// eightchChannelBits maps each bit of the 8-ch channel-assignment bitmap
// to the labels it adds beyond the 6-ch set.
//
//nolint:gochecknoglobals
var eightchChannelBits = []struct {
	bit    uint
	labels []ChannelLabel
}{
	{0, []ChannelLabel{ChanCb}},
	{1, []ChannelLabel{ChanTc}},
	{2, []ChannelLabel{ChanTfl, ChanTfr}},
	{3, []ChannelLabel{ChanTfc}},
	{4, []ChannelLabel{ChanTbl, ChanTbr}},
	{5, []ChannelLabel{ChanTsl, ChanTsr}},
	{6, []ChannelLabel{ChanLb, ChanRb}},
}

// LabelsFromSixchAssignment expands a 6-ch channel-assignment bitmap into
// its ordered channel labels (L/R are implicit and always present).
func LabelsFromSixchAssignment(assignment uint16) []ChannelLabel {
	labels := []ChannelLabel{ChanL, ChanR}

	for _, e := range sixchChannelBits {
		if assignment&(1<<e.bit) != 0 {
			labels = append(labels, e.labels...)
		}
	}

	return labels
}

// LabelsFromEightchAssignment expands an 8-ch channel-assignment bitmap
// into the labels it adds on top of the 6-ch set.
func LabelsFromEightchAssignment(assignment uint16) []ChannelLabel {
	var labels []ChannelLabel

	for _, e := range eightchChannelBits {
		if assignment&(1<<e.bit) != 0 {
			labels = append(labels, e.labels...)
		}
	}

	return labels
}
