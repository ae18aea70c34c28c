// Package lma decodes raw Lightning Mapping Array (LMA) sensor captures: the
// per-second status records, the peak-detection data records between them,
// and the GPS almanac fields multiplexed across the status stream. It also
// locates record boundaries inside the unframed byte stream and materializes
// per-second frames of peaks.
//
// # Wire format
//
// A capture is a sequence of little-endian 16-bit signed words with no
// framing. The sign bits form the only structure: every word of a status
// record is negative, while a data record's three words go non-negative,
// negative, non-negative. Status records are 6 words for versions 8-9 and 9
// words for versions 10+, which add phase and GPS fields. Data records are
// always 3 words (6 bytes).
//
// A file always opens with one bootstrap status record that has no data
// records of its own; it establishes the format version, sensor id, and
// network id for the rest of the file.
package lma

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/couchcryptid/lma-phasor-service/internal/geo"
)

// Fixed wire-format sizes and constants.
const (
	// StatusSizeLegacy is the status record size in bytes for versions 8-9.
	StatusSizeLegacy = 12
	// StatusSizeModern is the status record size in bytes for versions 10+.
	StatusSizeModern = 18
	// DataRecordSize is the data record size in bytes for all versions.
	DataRecordSize = 6

	// NominalSampleRateHz is the digitizer sample rate. The actual rate
	// drifts by the status record's phase-difference correction.
	NominalSampleRateHz = 25000000

	// WindowLength80us and WindowLength10us are the trigger window lengths
	// in nanoseconds. Even format versions use 80 us windows, odd use 10 us.
	WindowLength80us = 80000
	WindowLength10us = 10000

	yearBase = 2000
)

// StatusRecord is the decoded per-second header for one sensor-second.
type StatusRecord struct {
	Version int

	// ID is the sensor identity character. NetID is the network identity
	// character; zero for versions that predate it (v10/v11) and for the
	// legacy v8/v9 family.
	ID    byte
	NetID byte

	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
	// Epoch is seconds since the Unix epoch, derived from the calendar
	// fields. Non-decreasing across a well-formed file.
	Epoch int64

	Threshold  int
	FIFOStatus int
	// PhaseDiff is the local-oscillator drift against the nominal sample
	// rate, in Hz. Its sign bit lives in a different word than its magnitude.
	PhaseDiff    int
	TriggerCount int
	// Track is a v8/v9 field of unknown meaning, kept as decoded.
	Track int

	// GPSInfo is the raw 16-bit multiplexed GPS field; its meaning depends
	// on Second mod 12. See Almanac.
	GPSInfo uint16

	// Geodetic and Cartesian are the sensor position attached by the file
	// scanner once the almanac has latched one; they are not part of the
	// record encoding.
	Geodetic  *geo.Geodetic
	Cartesian *geo.Cartesian
}

// DataRecord is one peak detection within a sensor-second. Value type; no
// aliasing.
type DataRecord struct {
	// Nano is the nanosecond-of-second timestamp of the peak.
	Nano int64 `json:"nano"`
	// Power is the received power in dBm.
	Power float64 `json:"power"`
	// AboveThresh counts samples above threshold within the trigger window.
	AboveThresh int `json:"above_thresh"`
}

// StatusSize returns the status record size in bytes for a format version.
func StatusSize(version int) int {
	if version < 10 {
		return StatusSizeLegacy
	}
	return StatusSizeModern
}

// versionOf extracts the 6-bit format version tag from the first word.
// The v12 hardware notes describe 7 bits, but bit 13 doubles as a phase
// count bit in v8/v9, so only 6 bits are safe to trust until version 64
// ships.
func versionOf(w0 int) int {
	return (w0 >> 7) & 0x3F
}

// DecodeStatus decodes one status record. The slice must hold at least
// StatusSizeLegacy bytes for v8/v9 or StatusSizeModern bytes for v10+;
// excess bytes are ignored, so callers scanning a stream may pass a fixed
// StatusSizeModern-sized window.
func DecodeStatus(b []byte) (*StatusRecord, error) {
	if len(b) < StatusSizeLegacy {
		return nil, fmt.Errorf("%w: status record needs %d bytes, have %d", ErrMalformedRecord, StatusSizeLegacy, len(b))
	}

	version := versionOf(int(int16(binary.LittleEndian.Uint16(b[0:2]))))

	var wordCount int
	switch version {
	case 8, 9:
		wordCount = 6
	case 10, 11, 12, 13:
		wordCount = 9
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if len(b) < wordCount*2 {
		return nil, fmt.Errorf("%w: status record needs %d bytes, have %d", ErrMalformedRecord, wordCount*2, len(b))
	}

	words := make([]int, wordCount)
	for i := range words {
		words[i] = int(int16(binary.LittleEndian.Uint16(b[2*i : 2*i+2])))
	}

	// Every word of a valid status record has its sign bit set.
	for _, w := range words {
		if w >= 0 {
			return nil, fmt.Errorf("%w: status word not negative", ErrMalformedRecord)
		}
	}

	s := &StatusRecord{Version: version}
	switch version {
	case 8, 9:
		s.decodeLegacy(words)
	case 10, 11:
		s.decodeV1011(words)
	case 12, 13:
		s.decodeV1213(words)
	}
	s.Epoch = calendarToEpoch(s.Year, s.Month, s.Day, s.Hour, s.Minute, s.Second)
	return s, nil
}

// decodeCalendar unpacks the calendar and threshold fields shared by every
// status layout family.
func (s *StatusRecord) decodeCalendar(words []int) {
	s.Year = (words[0] & 0x7F) + yearBase
	s.Threshold = words[1] & 0xFF
	s.FIFOStatus = (words[2] >> 12) & 0x07
	s.Second = (words[2] >> 6) & 0x3F
	s.Minute = words[2] & 0x3F
	s.Hour = (words[3] >> 9) & 0x1F
	s.Day = (words[3] >> 4) & 0x1F
	s.Month = words[3] & 0x0F
}

// decodeLegacy is the 6-word v8/v9 layout. The phase field here is the
// narrower "phase count" with its sign in word 1 bit 14, and the trigger
// count is split across words 4 and 5.
func (s *StatusRecord) decodeLegacy(words []int) {
	s.decodeCalendar(words)
	s.PhaseDiff = (words[1] >> 8) & 0x1F
	if (words[1]>>14)&0x1 == 1 {
		s.PhaseDiff = -s.PhaseDiff
	}
	s.TriggerCount = (words[5] & 0x1FF) | (words[4]&0x7F)<<9
	// TODO: confirm the v8 id character encoding against a sample capture;
	// the modern families offset the id by 64 but v8 may not.
	s.ID = byte((words[4] >> 8) & 0x7F)
	s.Track = (words[5] >> 12) & 0xF
}

// decodeV1011 is the 9-word layout before the network id was introduced.
func (s *StatusRecord) decodeV1011(words []int) {
	s.decodeCalendar(words)
	s.TriggerCount = words[4] & 0x3FFF
	// The id character is offset by 64 to skip the non-printable range, with
	// its high bit parked in word 1.
	s.ID = byte(((words[1]>>5)&0x80|(words[5]>>8)&0x7F) + 64)
	s.decodePhaseAndGPS(words)
}

// decodeV1213 is the current 9-word layout with a network id.
func (s *StatusRecord) decodeV1213(words []int) {
	s.decodeCalendar(words)
	s.TriggerCount = words[4] & 0x3FFF
	s.ID = byte(((words[1]>>5)&0x80|(words[5]>>8)&0x7F) + 64)
	s.NetID = byte((words[5] & 0xFF) + 64)
	s.decodePhaseAndGPS(words)
}

func (s *StatusRecord) decodePhaseAndGPS(words []int) {
	// The phase-difference magnitude and sign live in different words.
	s.PhaseDiff = words[6] & 0x7FFF
	if (words[1]>>14)&0x1 == 1 {
		s.PhaseDiff = -s.PhaseDiff
	}
	// The GPS field's top bit also lives in word 1.
	s.GPSInfo = uint16(words[7]&0x7FFF | (words[1]&0x2000)<<2)
}

// calendarToEpoch converts the status record's calendar fields into seconds
// since the Unix epoch (UTC).
func calendarToEpoch(year, month, day, hour, minute, second int) int64 {
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC).Unix()
}

// DecodeData decodes one data record. version selects the field layout and
// phaseDiff corrects the sample period; both come from the governing status
// record. Only the current 80 us layout (versions 10 and 12) is dispatched;
// the v8/v9 legacy layouts are decoded by tests only until their field
// positions are confirmed against a format specification.
func DecodeData(b []byte, version, phaseDiff int) (DataRecord, error) {
	words, err := dataWords(b)
	if err != nil {
		return DataRecord{}, err
	}

	switch version {
	case 10, 12:
		return decodeDataCurrent(words, phaseDiff), nil
	default:
		return DataRecord{}, fmt.Errorf("%w: no data record layout for version %d", ErrUnsupportedVersion, version)
	}
}

// dataWords unpacks and validates the three words of a data record. The sign
// sequence must be exactly non-negative, negative, non-negative.
func dataWords(b []byte) ([3]int, error) {
	var words [3]int
	if len(b) < DataRecordSize {
		return words, fmt.Errorf("%w: data record needs %d bytes, have %d", ErrMalformedRecord, DataRecordSize, len(b))
	}
	for i := range words {
		words[i] = int(int16(binary.LittleEndian.Uint16(b[2*i : 2*i+2])))
	}
	if words[0] < 0 || words[1] >= 0 || words[2] < 0 {
		return words, fmt.Errorf("%w: data word sign sequence violated", ErrMalformedRecord)
	}
	return words, nil
}

// decodeDataCurrent is the 80 us layout used by versions 10 and 12. The
// "window" field counts trigger windows into the second and "ticks" counts
// samples into the window, so the timestamp resolves to 1 ns.
func decodeDataCurrent(words [3]int, phaseDiff int) DataRecord {
	samplePeriod := 1e9 / float64(NominalSampleRateHz+phaseDiff)

	aboveThresh := (words[0] >> 11) | ((words[2] & 0xFF00) >> 4)
	ticks := words[0] & 0x07FF
	window := words[1] & 0x3FFF
	amplitude := words[2] & 0x00FF

	return DataRecord{
		Nano:        int64(window)*WindowLength80us + int64(float64(ticks)*samplePeriod),
		Power:       powerDBm(amplitude),
		AboveThresh: aboveThresh,
	}
}

// decodeDataV8 is the legacy 80 us layout: the above-threshold count is split
// across all three words instead of two. The v8 firmware still carried the
// phase-locked loop, so the sample period is exactly nominal.
func decodeDataV8(words [3]int) DataRecord {
	const samplePeriod = 1e9 / float64(NominalSampleRateHz)

	aboveThresh := (words[0] >> 11) | ((words[1] & 0x4000) >> 10) | ((words[2] & 0x7F00) >> 4)
	ticks := words[0] & 0x07FF
	window := words[1] & 0x3FFF
	amplitude := words[2] & 0x00FF

	return DataRecord{
		Nano:        int64(window)*WindowLength80us + int64(float64(ticks)*samplePeriod),
		Power:       powerDBm(amplitude),
		AboveThresh: aboveThresh,
	}
}

// decodeDataV9 is the legacy 10 us layout: narrower windows mean more window
// bits (borrowed from word 0) and fewer tick bits.
func decodeDataV9(words [3]int) DataRecord {
	const samplePeriod = 1e9 / float64(NominalSampleRateHz)

	aboveThresh := (words[0] >> 11) | ((words[1] & 0x4000) >> 10) | ((words[2] & 0x7F00) >> 4)
	ticks := words[0] & 0x00FF
	window := (words[1] & 0x3FFF) | (words[0]&0x0700)<<6
	amplitude := words[2] & 0x00FF

	return DataRecord{
		Nano:        int64(window)*WindowLength10us + int64(float64(ticks)*samplePeriod),
		Power:       powerDBm(amplitude),
		AboveThresh: aboveThresh,
	}
}

// powerDBm converts an 8-bit amplitude code to received power in dBm.
func powerDBm(amplitude int) float64 {
	return 0.488*float64(amplitude) - 111.0
}
