// Command lmadump decodes a single LMA capture file and prints what it finds:
// file identity, status boundaries, the GPS almanac, and optionally the data
// records of selected frames. It is a development aid for inspecting captures
// without running the full correlation pipeline.
//
// Usage:
//
//	go run ./cmd/lmadump -file capture.dat
//	go run ./cmd/lmadump -file capture.dat -frames 2 -records
//	go run ./cmd/lmadump -file rt.dat -decimated -json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/lma-phasor-service/internal/lma"
)

func main() {
	file := flag.String("file", "", "path to an LMA capture file")
	decimated := flag.Bool("decimated", false, "treat the capture as real-time decimated data")
	frames := flag.Int("frames", 0, "dump the first N frames (0 for none)")
	records := flag.Bool("records", false, "include individual data records in frame dumps")
	asJSON := flag.Bool("json", false, "emit JSON instead of text")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*file, *decimated, *frames, *records, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "lmadump:", err)
		os.Exit(1)
	}
}

func run(path string, decimated bool, frames int, records, asJSON bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	raw, err := lma.OpenRawFile(f, decimated, logger)
	if err != nil {
		return fmt.Errorf("scan %s: %w", path, err)
	}

	if asJSON {
		return dumpJSON(os.Stdout, raw, frames, records)
	}
	return dumpText(os.Stdout, raw, frames, records)
}

func dumpText(w io.Writer, raw *lma.RawFile, frames int, records bool) error {
	stats := raw.Stats()
	fmt.Fprintf(w, "version:    %d\n", raw.Version)
	fmt.Fprintf(w, "sensor:     %c\n", raw.ID)
	if raw.NetID != 0 {
		fmt.Fprintf(w, "network:    %c\n", raw.NetID)
	}
	fmt.Fprintf(w, "span:       %d .. %d (%d s)\n", raw.StartEpoch, raw.EndEpoch, raw.EndEpoch-raw.StartEpoch+1)
	fmt.Fprintf(w, "frames:     %d\n", raw.FrameCount())
	fmt.Fprintf(w, "rejected:   %d\n", stats.CandidatesRejected)
	fmt.Fprintf(w, "anomalies:  %d\n", stats.StructuralAnomalies)

	if pos, ok := raw.Position(); ok {
		gps := raw.GPS()
		fmt.Fprintf(w, "position:   lat=%.7f lon=%.7f alt=%.2fm\n", pos.Lat, pos.Lon, pos.Alt)
		fmt.Fprintf(w, "gps:        tracked=%d visible=%d temp=%dC\n",
			gps.SatTracked, gps.SatVisible, gps.Temperature)
	} else {
		fmt.Fprintln(w, "position:   none (capture shorter than a GPS cycle, or pre-v10 sensor)")
	}

	for i := 1; i <= frames && i <= raw.FrameCount(); i++ {
		frame, err := raw.ReadFrame(i)
		if err != nil {
			return err
		}
		s := frame.Status
		fmt.Fprintf(w, "frame %d: epoch=%d triggers=%d threshold=%d phase=%d fifo=%d\n",
			i, frame.Epoch, frame.Len(), s.Threshold, s.PhaseDiff, s.FIFOStatus)
		if records {
			for _, rec := range frame.Records() {
				fmt.Fprintf(w, "  nano=%-10d power=%6.1fdBm above=%d\n", rec.Nano, rec.Power, rec.AboveThresh)
			}
		}
	}
	return nil
}

// jsonDump is the machine-readable shape of a capture summary.
type jsonDump struct {
	Version    int           `json:"version"`
	Sensor     string        `json:"sensor"`
	Network    string        `json:"network,omitempty"`
	StartEpoch int64         `json:"start_epoch"`
	EndEpoch   int64         `json:"end_epoch"`
	Frames     int           `json:"frames"`
	Stats      lma.ScanStats `json:"scan_stats"`
	Position   any           `json:"position,omitempty"`
	Dumped     []frameDump   `json:"dumped_frames,omitempty"`
}

type frameDump struct {
	Index    int              `json:"index"`
	Epoch    int64            `json:"epoch"`
	Triggers int              `json:"triggers"`
	Records  []lma.DataRecord `json:"records,omitempty"`
}

func dumpJSON(w io.Writer, raw *lma.RawFile, frames int, records bool) error {
	out := jsonDump{
		Version:    raw.Version,
		Sensor:     string(raw.ID),
		StartEpoch: raw.StartEpoch,
		EndEpoch:   raw.EndEpoch,
		Frames:     raw.FrameCount(),
		Stats:      raw.Stats(),
	}
	if raw.NetID != 0 {
		out.Network = string(raw.NetID)
	}
	if pos, ok := raw.Position(); ok {
		out.Position = pos
	}
	for i := 1; i <= frames && i <= raw.FrameCount(); i++ {
		frame, err := raw.ReadFrame(i)
		if err != nil {
			return err
		}
		fd := frameDump{Index: i, Epoch: frame.Epoch, Triggers: frame.Len()}
		if records {
			fd.Records = frame.Records()
		}
		out.Dumped = append(out.Dumped, fd)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
