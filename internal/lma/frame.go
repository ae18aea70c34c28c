package lma

import "github.com/couchcryptid/lma-phasor-service/internal/geo"

// Frame owns the ordered, growable sequence of data records for exactly one
// (sensor, second) pair, annotated with the governing status record's
// identity, epoch, and position.
//
// The backing store is owned by the Frame: Records returns a view that
// callers must not retain across mutations, and Copy is the only way to get
// an independent backing store. Plain struct assignment would alias the
// slice and is never done inside this package.
type Frame struct {
	Status *StatusRecord

	ID    byte
	NetID byte
	Epoch int64

	Geodetic  *geo.Geodetic
	Cartesian *geo.Cartesian

	records []DataRecord
}

// NewFrame creates an empty frame annotated from its status record.
func NewFrame(status *StatusRecord) *Frame {
	return &Frame{
		Status:    status,
		ID:        status.ID,
		NetID:     status.NetID,
		Epoch:     status.Epoch,
		Geodetic:  status.Geodetic,
		Cartesian: status.Cartesian,
	}
}

// Append adds one record. Hardware emits in trigger order, which is not
// necessarily time order.
func (f *Frame) Append(rec DataRecord) {
	f.records = append(f.records, rec)
}

// Len returns the number of records in the frame.
func (f *Frame) Len() int {
	return len(f.records)
}

// Records returns the frame's records. The slice is a view into the frame's
// backing store; use Copy for an independent frame.
func (f *Frame) Records() []DataRecord {
	return f.records
}

// Copy returns a frame with an independent backing store. Mutating either
// frame afterwards never affects the other.
func (f *Frame) Copy() *Frame {
	dup := *f
	dup.records = make([]DataRecord, len(f.records))
	copy(dup.records, f.records)
	return &dup
}

// Decimate replaces the frame's records in place, keeping at most one record
// per windowLength-nanosecond sub-window of the second: the one with the
// highest power. Windows containing no records are skipped. Records must be
// in non-decreasing Nano order; decimated output always is, so Decimate is
// idempotent at a fixed window length.
//
// The loop condition deliberately stops before a trailing window whose end
// would reach the full second, so records there are dropped rather than
// grouped into a short window. Established network processing scans windows
// the same way, and changing it would shift which peaks survive.
func (f *Frame) Decimate(windowLength int64) {
	const second = int64(1e9)

	kept := make([]DataRecord, 0)
	var windowStart int64
	i := 0
	for windowStart+windowLength < second && i < len(f.records) {
		// Data is unevenly distributed; skip empty windows without emitting
		// placeholders.
		if f.records[i].Nano >= windowStart+windowLength {
			windowStart += windowLength
			continue
		}
		maxPeak := f.records[i]
		for f.records[i].Nano < windowStart+windowLength {
			if f.records[i].Power > maxPeak.Power {
				maxPeak = f.records[i]
			}
			i++
			if i >= len(f.records) {
				break
			}
		}
		kept = append(kept, maxPeak)
	}

	f.records = kept
}
