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

// truehd-example-decoder decodes a TrueHD elementary stream to WAV or raw
// PCM on stdout.
//
// Usage:
//
//	truehd-example-decoder [-format wav|pcm] [-presentation N] [-strict] <input.thd | ->
//
//nolint:gosec // Integer conversions are bounded by audio format constraints; file paths from CLI args.
package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	truehd "github.com/mycophonic/truehd"
	"github.com/mycophonic/truehd/version"
)

const formatWAV = "wav"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	outputFormat := flag.String("format", formatWAV, "output format: wav or pcm")
	presentation := flag.Int("presentation", 3, "presentation index to decode (0=2ch, 1=6ch, 2=8ch, 3=object)")
	strict := flag.Bool("strict", false, "abort on any anomaly of Warning severity or above, whatever -fail-level says")
	failLevel := flag.String("fail-level", "error", "minimum anomaly severity that aborts decoding: off, error, warning, info, debug, trace")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-format wav|pcm] [-presentation N] [-strict] <input.thd | ->\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Fprintln(os.Stdout, version.String())
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if *outputFormat != formatWAV && *outputFormat != "pcm" {
		fmt.Fprintf(os.Stderr, "unknown format %q (use wav or pcm)\n", *outputFormat)
		os.Exit(1)
	}

	level, err := parseFailLevel(*failLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := truehd.Config{
		FailLevel:    level,
		Strict:       *strict,
		Presentation: *presentation,
		WarpMode:     truehd.WarpNormal,
	}

	os.Exit(run(*outputFormat, flag.Arg(0), cfg))
}

func parseFailLevel(s string) (truehd.FailLevel, error) {
	switch s {
	case "off":
		return truehd.FailOff, nil
	case "error":
		return truehd.FailError, nil
	case "warning":
		return truehd.FailWarning, nil
	case "info":
		return truehd.FailInfo, nil
	case "debug":
		return truehd.FailDebug, nil
	case "trace":
		return truehd.FailTrace, nil
	default:
		return 0, fmt.Errorf("unknown fail level %q", s)
	}
}

func run(outputFormat, inputPath string, cfg truehd.Config) int {
	reader, cleanup, err := openInput(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)

		return 1
	}

	defer cleanup()

	pcm, pcmFormat, err := truehd.Decode(reader, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)

		return 1
	}

	printSummary(pcmFormat, len(pcm))

	if outputFormat == formatWAV {
		err = writeWAV(os.Stdout, pcm, pcmFormat)
	} else {
		_, err = os.Stdout.Write(pcm)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)

		return 1
	}

	return 0
}

// printSummary writes a one-line decode summary to stderr. The extra
// detail line (intended for a human watching a terminal, not a script
// piping stdout elsewhere) only appears when stderr is actually a tty.
func printSummary(pcmFormat truehd.PCMFormat, pcmBytes int) {
	fmt.Fprintf(os.Stderr, "%d Hz, %d ch, %d bytes PCM\n", pcmFormat.SampleRate, pcmFormat.Channels, pcmBytes)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintf(os.Stderr, "(32-bit signed PCM, one sample slot per declared channel)\n")
	}
}

// openInput returns a Reader for the given path, or buffers stdin when path is "-".
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, func() {}, fmt.Errorf("reading stdin: %w", err)
		}

		return bytes.NewReader(data), func() {}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening %s: %w", path, err)
	}

	return file, func() { _ = file.Close() }, nil
}

// writeWAV writes a standard PCM WAV (32-bit signed samples) to writer.
func writeWAV(writer io.Writer, pcm []byte, pcmFmt truehd.PCMFormat) error {
	if pcmFmt.Channels <= 0 {
		return errors.New("truehd-example-decoder: no channels in decoded format")
	}

	const bytesPerSample = 4

	blockAlign := pcmFmt.Channels * bytesPerSample
	byteRate := pcmFmt.SampleRate * blockAlign
	dataSize := len(pcm)

	var hdr [44]byte

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataSize))
	copy(hdr[8:12], "WAVE")

	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(pcmFmt.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(pcmFmt.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(bytesPerSample*8))

	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataSize))

	if _, err := writer.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing WAV header: %w", err)
	}

	if _, err := writer.Write(pcm); err != nil {
		return fmt.Errorf("writing WAV data: %w", err)
	}

	return nil
}
