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

// Severity classifies an anomaly encountered while parsing or decoding.
type Severity int

// Severity levels, ordered from least to most serious. Off is only valid
// as a configured FailLevel, never as an anomaly's own severity.
const (
	SeverityTrace Severity = iota
	SeverityDebug
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityOff
)

//nolint:gochecknoglobals
var severityNames = map[Severity]string{
	SeverityOff:     "off",
	SeverityError:   "error",
	SeverityWarning: "warning",
	SeverityInfo:    "info",
	SeverityDebug:   "debug",
	SeverityTrace:   "trace",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}

	return fmt.Sprintf("severity(%d)", int(s))
}

// Kind identifies the category of anomaly, independent of its severity.
type Kind int

// Anomaly kinds, grouped by the taxonomy of SPEC_FULL.md §7: structural,
// integrity, semantic, advisory.
const (
	KindUnderflow Kind = iota
	KindMissingMajorSync
	KindSubstreamDirectoryOverflow
	KindUnknownSampleRate
	KindInvalidSyncSignature

	KindAUHeaderCRCMismatch
	KindSubstreamCRCMismatch
	KindRestartParityMismatch
	KindLosslessCheckMismatch

	KindFilterOrderExceeded
	KindMatrixRowOverflow
	KindQuantizerStepOutOfRange
	KindOAMDLengthMismatch
	KindPresentationUnavailable
	KindHuffmanOverflow

	KindPeakDataRateJump
	KindSubstreamInfoChanged
	KindDuplicateAU
	KindTimestampDiscontinuity
)

//nolint:gochecknoglobals
var kindNames = map[Kind]string{
	KindUnderflow:                  "underflow",
	KindMissingMajorSync:           "missing_major_sync",
	KindSubstreamDirectoryOverflow: "substream_directory_overflow",
	KindUnknownSampleRate:          "unknown_sample_rate",
	KindInvalidSyncSignature:       "invalid_sync_signature",
	KindAUHeaderCRCMismatch:        "au_header_crc_mismatch",
	KindSubstreamCRCMismatch:       "substream_crc_mismatch",
	KindRestartParityMismatch:      "restart_parity_mismatch",
	KindLosslessCheckMismatch:      "lossless_check_mismatch",
	KindFilterOrderExceeded:        "filter_order_exceeded",
	KindMatrixRowOverflow:          "matrix_row_overflow",
	KindQuantizerStepOutOfRange:    "quantizer_step_out_of_range",
	KindOAMDLengthMismatch:         "oamd_length_mismatch",
	KindPresentationUnavailable:    "presentation_unavailable",
	KindHuffmanOverflow:            "huffman_overflow",
	KindPeakDataRateJump:           "peak_data_rate_jump",
	KindSubstreamInfoChanged:       "substream_info_changed",
	KindDuplicateAU:                "duplicate_au",
	KindTimestampDiscontinuity:     "timestamp_discontinuity",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

// defaultSeverity is the severity an anomaly kind carries absent any
// branch-point demotion.
//
//nolint:gochecknoglobals
var defaultSeverity = map[Kind]Severity{
	KindUnderflow:                  SeverityError,
	KindMissingMajorSync:           SeverityError,
	KindSubstreamDirectoryOverflow: SeverityError,
	KindUnknownSampleRate:          SeverityError,
	KindInvalidSyncSignature:       SeverityError,

	KindAUHeaderCRCMismatch:   SeverityError,
	KindSubstreamCRCMismatch:  SeverityWarning,
	KindRestartParityMismatch: SeverityWarning,
	KindLosslessCheckMismatch: SeverityWarning,

	KindFilterOrderExceeded:     SeverityError,
	KindMatrixRowOverflow:       SeverityError,
	KindQuantizerStepOutOfRange: SeverityError,
	KindOAMDLengthMismatch:      SeverityError,
	KindPresentationUnavailable: SeverityInfo,
	KindHuffmanOverflow:         SeverityError,

	KindPeakDataRateJump:       SeverityInfo,
	KindSubstreamInfoChanged:   SeverityInfo,
	KindDuplicateAU:            SeverityInfo,
	KindTimestampDiscontinuity: SeverityInfo,
}

// Diagnostic is a single anomaly observed while parsing or decoding. The
// core never logs; it returns Diagnostics alongside whatever partial
// result it produced so the caller can log, collect, or escalate them as
// it sees fit.
type Diagnostic struct {
	Kind            Kind
	Severity        Severity
	Message         string
	AUOffset        int
	SubstreamIndex  int
	BlockIndex      int
	DemotedAtBranch bool
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("truehd: %s (%s) at au_offset=%d substream=%d block=%d: %s",
		d.Kind, d.Severity, d.AUOffset, d.SubstreamIndex, d.BlockIndex, d.Message)
}

// newDiagnostic builds a Diagnostic at its kind's default severity,
// demoting by one level (never below Info) when atBranch is true, per the
// seamless-branch demotion rule of SPEC_FULL.md §3.
func newDiagnostic(kind Kind, atBranch bool, auOffset, substreamIndex, blockIndex int, msg string) Diagnostic {
	sev := defaultSeverity[kind]
	demoted := false

	if atBranch && sev > SeverityInfo && isIntegrityKind(kind) {
		sev--
		demoted = true
	}

	return Diagnostic{
		Kind:            kind,
		Severity:        sev,
		Message:         msg,
		AUOffset:        auOffset,
		SubstreamIndex:  substreamIndex,
		BlockIndex:      blockIndex,
		DemotedAtBranch: demoted,
	}
}

func isIntegrityKind(k Kind) bool {
	switch k {
	case KindSubstreamCRCMismatch, KindRestartParityMismatch, KindLosslessCheckMismatch:
		return true
	default:
		return false
	}
}

// FailLevel is the minimum severity that aborts decoding.
type FailLevel int

// Recognized fail levels, per SPEC_FULL.md §6.3.
const (
	FailOff FailLevel = iota
	FailError
	FailWarning
	FailInfo
	FailDebug
	FailTrace
)

func (f FailLevel) severity() Severity {
	switch f {
	case FailOff:
		return SeverityOff
	case FailError:
		return SeverityError
	case FailWarning:
		return SeverityWarning
	case FailInfo:
		return SeverityInfo
	case FailDebug:
		return SeverityDebug
	case FailTrace:
		return SeverityTrace
	default:
		return SeverityError
	}
}

// ErrAborted is the sentinel wrapped by the error returned when a
// Diagnostic at or above the configured fail level is encountered.
var ErrAborted = errors.New("truehd: decoding aborted by fail level policy")

// shouldAbort reports whether d's severity is serious enough to stop the
// pull, given the effective fail level (Strict collapses FailLevel to
// Warning, per SPEC_FULL.md §6.3/§7).
func shouldAbort(d Diagnostic, cfg Config) bool {
	effective := cfg.FailLevel
	if cfg.Strict {
		effective = FailWarning
	}

	if effective == FailOff {
		return false
	}

	return d.Severity >= effective.severity()
}

// abortError wraps a Diagnostic that crossed the fail-level threshold.
func abortError(d Diagnostic) error {
	return fmt.Errorf("%w: %w", ErrAborted, d)
}
