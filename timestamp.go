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
	"errors"
	"fmt"
)

// ErrInvalidTimestamp is returned when a timestamp descriptor fails its
// sync-byte or BCD validation.
var ErrInvalidTimestamp = errors.New("truehd: invalid timestamp")

// Framerate names the frame rate code carried by a Timestamp.
type Framerate int

// Recognized frame rates, grounded on
// original_source/truehd/src/structs/timestamp.rs.
const (
	Rate23_976 Framerate = iota
	Rate24
	Rate25
	Rate29_97
	Rate30
	Rate50
	Rate59_94
	Rate60
	RateInvalid
)

//nolint:gochecknoglobals
var framerateStrings = map[Framerate]string{
	Rate23_976: "23.976", Rate24: "24", Rate25: "25", Rate29_97: "29.97",
	Rate30: "30", Rate50: "50", Rate59_94: "59.94", Rate60: "60",
}

func (f Framerate) String() string {
	if s, ok := framerateStrings[f]; ok {
		return s + " fps"
	}

	return "invalid fps"
}

func framerateFromCode(code uint8) Framerate {
	switch code {
	case 0:
		return Rate23_976
	case 1:
		return Rate24
	case 2:
		return Rate25
	case 3:
		return Rate29_97
	case 4:
		return Rate30
	case 5:
		return Rate50
	case 6:
		return Rate59_94
	case 7:
		return Rate60
	default:
		return RateInvalid
	}
}

// Timestamp is an embedded SMPTE-style hh:mm:ss:ff descriptor, optionally
// present ahead of the first major sync and inside Extra Data.
type Timestamp struct {
	Hours     uint8
	Minutes   uint8
	Seconds   uint8
	Frames    uint8
	Samples   uint16
	Framerate Framerate
	DropFrame bool
}

// String formats a Timestamp as "HH:MM:SS:FF[+samples] @ RATE [DF]".
func (t Timestamp) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d:%02d", t.Hours, t.Minutes, t.Seconds, t.Frames)
	if t.Samples != 0 {
		s += fmt.Sprintf("+%d", t.Samples)
	}

	s += " @ " + t.Framerate.String()

	if t.DropFrame {
		s += " [DF]"
	}

	return s
}

func parseBCD8(b uint8) (uint8, error) {
	hi, lo := b>>4, b&0xF
	if hi > 9 || lo > 9 {
		return 0, fmt.Errorf("%w: bad BCD digit in byte 0x%02x", ErrInvalidTimestamp, b)
	}

	return hi*10 + lo, nil
}

// TimestampFromBytes parses a 16-byte embedded timestamp block. buffer[0]
// and buffer[1] must be the sync bytes 0x01,0x10 and buffer[14],buffer[15]
// must be 0x80,0x00.
func TimestampFromBytes(buffer []byte) (Timestamp, error) {
	if len(buffer) < 16 {
		return Timestamp{}, fmt.Errorf("%w: short buffer (%d bytes)", ErrInvalidTimestamp, len(buffer))
	}

	if buffer[0] != 0x01 || buffer[1] != 0x10 || buffer[14] != 0x80 || buffer[15] != 0x00 {
		return Timestamp{}, fmt.Errorf("%w: bad sync bytes", ErrInvalidTimestamp)
	}

	hours, err := parseBCD8(buffer[2])
	if err != nil {
		return Timestamp{}, err
	}

	minutes, err := parseBCD8(buffer[3])
	if err != nil {
		return Timestamp{}, err
	}

	seconds, err := parseBCD8(buffer[4])
	if err != nil {
		return Timestamp{}, err
	}

	frames, err := parseBCD8(buffer[5])
	if err != nil {
		return Timestamp{}, err
	}

	samples := uint16(buffer[6])<<8 | uint16(buffer[7])

	packed := uint16(buffer[12])<<8 | uint16(buffer[13])
	rateCode := uint8((packed >> 8) & 0xF)
	dropFrame := packed&0x1 != 0

	return Timestamp{
		Hours:     hours,
		Minutes:   minutes,
		Seconds:   seconds,
		Frames:    frames,
		Samples:   samples,
		Framerate: framerateFromCode(rateCode),
		DropFrame: dropFrame,
	}, nil
}
