// Command genraw generates synthetic LMA capture files for development and
// test use. It uses the actual wire encoders so generated captures decode
// exactly like hardware output, including the 12-second GPS almanac cycle.
//
// Usage:
//
//	go run ./cmd/genraw -out testdata/capture_v12.dat
//	go run ./cmd/genraw -out w.dat -sensor W -seconds 30 -triggers 200 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/couchcryptid/lma-phasor-service/internal/lma"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the capture file")
	version := flag.Int("version", 12, "status format version (10 or 12)")
	sensor := flag.String("sensor", "V", "single-character sensor id")
	network := flag.String("network", "A", "single-character network id (v12 only)")
	start := flag.String("start", "2024-04-26T06:00:00Z", "RFC3339 time of the first full second")
	seconds := flag.Int("seconds", 15, "number of seconds to generate")
	triggers := flag.Int("triggers", 50, "data records per second")
	phaseDiff := flag.Int("phase-diff", 125, "oscillator drift in Hz")
	lat := flag.Float64("lat", 33.98, "station latitude in decimal degrees")
	lon := flag.Float64("lon", -107.19, "station longitude in decimal degrees")
	alt := flag.Float64("alt", 3195.0, "station altitude in meters")
	seed := flag.Int64("seed", 1, "random seed for reproducible output")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *version != 10 && *version != 12 {
		return fmt.Errorf("unsupported version %d: data generation covers 10 and 12", *version)
	}
	if len(*sensor) != 1 || len(*network) != 1 {
		return fmt.Errorf("sensor and network ids must be single characters")
	}
	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("parse start time: %w", err)
	}

	gen := generator{
		version:   *version,
		sensor:    (*sensor)[0],
		network:   (*network)[0],
		phaseDiff: *phaseDiff,
		lat:       *lat,
		lon:       *lon,
		alt:       *alt,
		rng:       rand.New(rand.NewSource(*seed)),
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()

	// The first block of a capture is the status record of the previous,
	// unrecorded second. It carries no data records.
	bootEpoch := startTime.Unix() - 1
	if err := gen.writeStatus(f, bootEpoch, 0); err != nil {
		return err
	}

	for s := 0; s < *seconds; s++ {
		epoch := startTime.Unix() + int64(s)
		if err := gen.writeSecond(f, epoch, *triggers); err != nil {
			return fmt.Errorf("second %d: %w", epoch, err)
		}
	}

	log.Printf("wrote %s: sensor %s, %d seconds, %d triggers each", *out, *sensor, *seconds, *triggers)
	return nil
}

type generator struct {
	version   int
	sensor    byte
	network   byte
	phaseDiff int
	lat       float64
	lon       float64
	alt       float64
	rng       *rand.Rand
}

// writeSecond emits one second's data records followed by its status record,
// matching the hardware layout where each status record closes the second it
// describes.
func (g *generator) writeSecond(f *os.File, epoch int64, triggers int) error {
	fields := make([]lma.DataFields, triggers)
	for i := range fields {
		fields[i] = lma.DataFields{
			Window:      g.rng.Intn(12500),
			Ticks:       g.rng.Intn(2000),
			Amplitude:   g.rng.Intn(256),
			AboveThresh: g.rng.Intn(2048),
		}
	}
	// Hardware emits triggers in time order.
	sort.Slice(fields, func(i, j int) bool {
		if fields[i].Window != fields[j].Window {
			return fields[i].Window < fields[j].Window
		}
		return fields[i].Ticks < fields[j].Ticks
	})

	for _, fd := range fields {
		if _, err := f.Write(lma.EncodeData(fd)); err != nil {
			return err
		}
	}
	return g.writeStatus(f, epoch, triggers)
}

func (g *generator) writeStatus(f *os.File, epoch int64, triggers int) error {
	t := time.Unix(epoch, 0).UTC()
	s := &lma.StatusRecord{
		Version:      g.version,
		ID:           g.sensor,
		Year:         t.Year(),
		Month:        int(t.Month()),
		Day:          t.Day(),
		Hour:         t.Hour(),
		Minute:       t.Minute(),
		Second:       t.Second(),
		Threshold:    0x28,
		FIFOStatus:   2,
		PhaseDiff:    g.phaseDiff,
		TriggerCount: triggers,
		GPSInfo:      g.gpsWord(t.Second() % 12),
	}
	if g.version >= 12 {
		s.NetID = g.network
	}
	buf, err := lma.EncodeStatus(s)
	if err != nil {
		return err
	}
	_, err = f.Write(buf)
	return err
}

// gpsWord produces the multiplexed GPS field for a cycle slot, inverting the
// receiver encoding: angles as two's-complement 1/3,600,000ths of a degree
// split across two words, altitude as centimeters.
func (g *generator) gpsWord(slot int) uint16 {
	latRaw := uint32(int32(math.Round(g.lat * 324000000.0 / 90.0)))
	lonRaw := uint32(int32(math.Round(g.lon * 324000000.0 / 90.0)))
	altRaw := uint32(math.Round(g.alt * 100.0))

	switch slot {
	case 0:
		return uint16(latRaw >> 16)
	case 1:
		return uint16(latRaw & 0xFFFF)
	case 2:
		return uint16(lonRaw >> 16)
	case 3:
		return uint16(lonRaw & 0xFFFF)
	case 4:
		return uint16(altRaw >> 16)
	case 5:
		return uint16(altRaw & 0xFFFF)
	case 6, 7: // stationary receiver, zero velocity
		return 0
	case 8: // bearing
		return 0
	case 9: // tracked/visible satellite counts
		return 8<<8 | 10
	case 10: // satellite status
		return 0
	default: // slot 11: temperature, offset by 40 C
		return (25 + 40) << 8
	}
}
