package lma

import (
	"encoding/binary"
	"fmt"
)

// Fixture encoding. The service never writes captures in production; these
// encoders exist for cmd/genraw and the decoder tests, which need well-formed
// synthetic files with known field values.

const signBit = 0x8000

// EncodeStatus encodes a status record for the given version family,
// inverting DecodeStatus. Field values must fit their bit ranges; out-of-range
// values are silently masked the way the hardware would.
func EncodeStatus(s *StatusRecord) ([]byte, error) {
	switch s.Version {
	case 8, 9:
		return encodeStatusLegacy(s), nil
	case 10, 11, 12, 13:
		return encodeStatusModern(s), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
}

func encodeCalendar(s *StatusRecord, w []uint16) {
	w[0] = signBit | uint16(s.Version&0x3F)<<7 | uint16((s.Year-yearBase)&0x7F)
	w[1] = signBit | uint16(s.Threshold&0xFF)
	w[2] = signBit | uint16(s.FIFOStatus&0x07)<<12 | uint16(s.Second&0x3F)<<6 | uint16(s.Minute&0x3F)
	w[3] = signBit | uint16(s.Hour&0x1F)<<9 | uint16(s.Day&0x1F)<<4 | uint16(s.Month&0x0F)
}

func encodeStatusLegacy(s *StatusRecord) []byte {
	var w [6]uint16
	encodeCalendar(s, w[:])

	phase := s.PhaseDiff
	if phase < 0 {
		phase = -phase
		w[1] |= 1 << 14
	}
	w[1] |= uint16(phase&0x1F) << 8
	w[4] = signBit | uint16((s.TriggerCount>>9)&0x7F) | uint16(s.ID&0x7F)<<8
	w[5] = signBit | uint16(s.TriggerCount&0x1FF) | uint16(s.Track&0xF)<<12

	return packWords(w[:])
}

func encodeStatusModern(s *StatusRecord) []byte {
	var w [9]uint16
	encodeCalendar(s, w[:])

	idVal := uint16(s.ID) - 64
	w[1] |= (idVal & 0x80) << 5 // id high bit parks in word 1
	w[4] = signBit | uint16(s.TriggerCount&0x3FFF)
	w[5] = signBit | (idVal&0x7F)<<8
	if s.Version >= 12 {
		w[5] |= (uint16(s.NetID) - 64) & 0xFF
	}

	phase := s.PhaseDiff
	if phase < 0 {
		phase = -phase
		w[1] |= 1 << 14
	}
	w[6] = signBit | uint16(phase&0x7FFF)
	w[7] = signBit | s.GPSInfo&0x7FFF
	w[1] |= (s.GPSInfo & 0x8000) >> 2 // GPS top bit parks in word 1
	w[8] = signBit

	return packWords(w[:])
}

// DataFields holds the raw sub-fields of a data record for fixture encoding.
// Window and Ticks locate the peak; Amplitude is the 8-bit power code.
// AboveThresh must fit 11 bits.
type DataFields struct {
	Window      int
	Ticks       int
	Amplitude   int
	AboveThresh int
}

// EncodeData encodes one data record in the current 80 us layout, inverting
// DecodeData for versions 10 and 12.
func EncodeData(f DataFields) []byte {
	var w [3]uint16
	w[0] = uint16(f.AboveThresh&0xF)<<11 | uint16(f.Ticks&0x07FF)
	w[1] = signBit | uint16(f.Window&0x3FFF)
	w[2] = uint16((f.AboveThresh>>4)&0x7F)<<8 | uint16(f.Amplitude&0xFF)
	return packWords(w[:])
}

func packWords(w []uint16) []byte {
	b := make([]byte, 2*len(w))
	for i, v := range w {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return b
}
