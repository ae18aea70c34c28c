package lma

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/couchcryptid/lma-phasor-service/internal/geo"
)

// Boundary marks the file offset of one status record. The first boundary of
// every file is the bootstrap status record, kept as a placeholder with a nil
// Status so frame indices line up with ReadFrame's contract (index 0 is never
// readable).
type Boundary struct {
	Offset int64
	Status *StatusRecord
}

// ScanStats counts what the boundary scan saw. CandidatesRejected is only
// meaningful for forward scans, where rejected decode attempts are part of
// the search rather than errors.
type ScanStats struct {
	Boundaries          int
	CandidatesRejected  int
	StructuralAnomalies int
}

// RawFile is one open capture and its per-file decode state: the established
// sensor/network identity, the status boundary index, the running GPS
// almanac, and the latched sensor position. State is strictly sequential and
// order-dependent, so a RawFile must not be shared across goroutines; decode
// workers own one RawFile (and one byte source) each.
type RawFile struct {
	src  io.ReadSeeker
	size int64

	// Decimated captures cannot be scanned by trigger-count stride because
	// the recorded counts are untrustworthy; they take the forward bit-pattern
	// search instead.
	decimated bool
	logger    *slog.Logger

	Version    int
	ID         byte
	NetID      byte
	StartEpoch int64
	EndEpoch   int64

	statusSize int64
	boundaries []Boundary
	almanac    Almanac
	stats      ScanStats

	frameByEpoch map[int64]int

	geodetic  *geo.Geodetic
	cartesian *geo.Cartesian
}

// OpenRawFile scans a capture's status boundaries and prepares it for frame
// reads. The byte source stays owned by the caller and must remain open for
// the lifetime of the RawFile.
//
// Set decimated for real-time decimated captures; they get the slower
// forward bit-pattern search. Full-rate captures default to the backward
// stride-jump search, which touches only the status records.
func OpenRawFile(src io.ReadSeeker, decimated bool, logger *slog.Logger) (*RawFile, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("size capture: %w", err)
	}
	if size < StatusSizeModern {
		return nil, fmt.Errorf("%w: capture shorter than one status record", ErrTruncatedData)
	}

	f := &RawFile{
		src:       src,
		size:      size,
		decimated: decimated,
		logger:    logger,
	}
	if err := f.scan(); err != nil {
		return nil, err
	}
	f.indexEpochs()
	f.latchPosition()
	return f, nil
}

// scan bootstraps the file identity from the first status record and runs
// the selected boundary search.
func (f *RawFile) scan() error {
	// The first block of every capture is a status record with no data
	// records of its own; it establishes version, id, and netid. Read a full
	// modern-sized window; legacy records decode from its prefix.
	buf := make([]byte, StatusSizeModern)
	if err := f.readAt(0, buf); err != nil {
		return fmt.Errorf("read bootstrap status: %w", err)
	}
	bootstrap, err := DecodeStatus(buf)
	if err != nil {
		return fmt.Errorf("decode bootstrap status: %w", err)
	}

	f.Version = bootstrap.Version
	f.ID = bootstrap.ID
	f.NetID = bootstrap.NetID
	f.statusSize = int64(StatusSize(bootstrap.Version))
	// The bootstrap second belongs to the previous capture.
	f.StartEpoch = bootstrap.Epoch + 1

	if f.decimated {
		return f.searchForward()
	}
	return f.searchBackward()
}

// searchForward walks the file in 3-byte steps attempting a status decode at
// every candidate offset. A failed decode just means "not a boundary here";
// an id/netid mismatch on a successful decode means the file mixes sensors
// and aborts the scan.
func (f *RawFile) searchForward() error {
	f.boundaries = append(f.boundaries, Boundary{Offset: 0})

	buf := make([]byte, f.statusSize)
	pos := f.statusSize
	for pos+f.statusSize <= f.size {
		if err := f.readAt(pos, buf); err != nil {
			return fmt.Errorf("read status candidate at %d: %w", pos, err)
		}
		status, err := DecodeStatus(buf)
		if err != nil {
			f.stats.CandidatesRejected++
			pos += 3
			continue
		}
		if err := f.observe(status, Boundary{Offset: pos, Status: status}); err != nil {
			return err
		}
		pos += f.statusSize
	}
	f.stats.Boundaries = len(f.boundaries)
	return nil
}

// searchBackward starts at end-of-file and jumps by each status record's own
// trigger-count stride. Every jump must land exactly on a status record, so
// a decode failure here is a hard error rather than a miss.
func (f *RawFile) searchBackward() error {
	buf := make([]byte, f.statusSize)
	cur := f.size
	for cur > f.statusSize {
		pos := cur - f.statusSize
		if err := f.readAt(pos, buf); err != nil {
			return fmt.Errorf("read status at %d: %w", pos, err)
		}
		status, err := DecodeStatus(buf)
		if err != nil {
			return fmt.Errorf("status at %d: %w", pos, err)
		}
		if err := f.observe(status, Boundary{Offset: pos, Status: status}); err != nil {
			return err
		}

		// The stride back to the previous status record is this record's
		// data span plus one status record.
		stride := int64(status.TriggerCount)*DataRecordSize + f.statusSize
		if cur <= stride {
			// The capture should always begin with the bootstrap status
			// record, so underflow means it was truncated at the start.
			// Recoverable: log and stop the scan early.
			f.stats.StructuralAnomalies++
			f.logger.Warn("backward scan would seek before start of capture; file truncated at start",
				"offset", pos, "stride", stride)
			break
		}
		cur -= stride
	}

	f.boundaries = append(f.boundaries, Boundary{Offset: 0})
	reverse(f.boundaries)
	f.stats.Boundaries = len(f.boundaries)
	return nil
}

// observe validates a discovered status record against the file identity,
// folds it into the almanac, advances the end epoch, and records the
// boundary.
func (f *RawFile) observe(status *StatusRecord, b Boundary) error {
	if status.ID != f.ID || status.NetID != f.NetID {
		return fmt.Errorf("%w: got id=%q netid=%q, file is id=%q netid=%q",
			ErrInconsistentStream, status.ID, status.NetID, f.ID, f.NetID)
	}
	if status.Epoch > f.EndEpoch {
		f.EndEpoch = status.Epoch
	}
	f.almanac.Observe(status)
	f.boundaries = append(f.boundaries, b)
	return nil
}

// indexEpochs builds the epoch -> frame index lookup. Boundary 0 is the
// unreadable bootstrap placeholder and is skipped.
func (f *RawFile) indexEpochs() {
	f.frameByEpoch = make(map[int64]int, len(f.boundaries))
	for i := 1; i < len(f.boundaries); i++ {
		f.frameByEpoch[f.boundaries[i].Status.Epoch] = i
	}
}

// latchPosition converts the almanac position once the cycle has produced
// one. Captures shorter than the 12-second GPS cycle, or from pre-v10
// sensors, never latch; their frames carry no embedded position.
func (f *RawFile) latchPosition() {
	g, ok := f.almanac.Position()
	if !ok {
		return
	}
	c := geo.ToCartesian(g)
	f.geodetic = &g
	f.cartesian = &c
}

// Boundaries returns the ordered status boundary index.
func (f *RawFile) Boundaries() []Boundary {
	return f.boundaries
}

// Stats returns scan counters for observability.
func (f *RawFile) Stats() ScanStats {
	return f.stats
}

// GPS returns the file's almanac.
func (f *RawFile) GPS() *Almanac {
	return &f.almanac
}

// Position returns the latched sensor position, when the capture carried one.
func (f *RawFile) Position() (geo.Geodetic, bool) {
	if f.geodetic == nil {
		return geo.Geodetic{}, false
	}
	return *f.geodetic, true
}

// FrameCount returns the number of readable frames. Frame indices run from
// 1 through FrameCount.
func (f *RawFile) FrameCount() int {
	if len(f.boundaries) == 0 {
		return 0
	}
	return len(f.boundaries) - 1
}

// FrameIndexForEpoch returns the frame index holding the given sensor-second.
func (f *RawFile) FrameIndexForEpoch(epoch int64) (int, bool) {
	i, ok := f.frameByEpoch[epoch]
	return i, ok
}

// ReadFrame decodes the data records between boundaries i-1 and i into a
// Frame. Valid for 1 <= i < len(boundaries); boundary 0 is the bootstrap
// placeholder and is never readable.
func (f *RawFile) ReadFrame(i int) (*Frame, error) {
	if i <= 0 || i >= len(f.boundaries) {
		return nil, fmt.Errorf("%w: frame %d, readable range is 1..%d", ErrIndexOutOfRange, i, len(f.boundaries)-1)
	}

	readStart := f.boundaries[i-1].Offset + f.statusSize
	readEnd := f.boundaries[i].Offset

	status := f.boundaries[i].Status
	status.Geodetic = f.geodetic
	status.Cartesian = f.cartesian

	// Trigger counts are untrustworthy for decimated captures; size the read
	// off the span instead.
	count := status.TriggerCount
	if f.decimated {
		count = int((readEnd - readStart) / DataRecordSize)
	}

	frame := NewFrame(status)
	buf := make([]byte, DataRecordSize)
	cursor := readStart
	for n := 0; n < count; n++ {
		if cursor >= readEnd {
			return nil, fmt.Errorf("%w: frame %d promised %d records, span ends at %d",
				ErrTruncatedData, i, count, readEnd)
		}
		if err := f.readAt(cursor, buf); err != nil {
			return nil, fmt.Errorf("read data record: %w", err)
		}
		rec, err := DecodeData(buf, status.Version, status.PhaseDiff)
		if err != nil {
			return nil, fmt.Errorf("frame %d record %d: %w", i, n, err)
		}
		frame.Append(rec)
		cursor += DataRecordSize
	}

	return frame, nil
}

func (f *RawFile) readAt(offset int64, buf []byte) error {
	if _, err := f.src.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(f.src, buf)
	return err
}

func reverse(b []Boundary) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
