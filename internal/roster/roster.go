// Package roster reads the human-readable sensor location table that
// accompanies a network's raw captures. Captures from v10+ sensors embed a
// GPS-derived position, but the roster remains authoritative: it carries
// cable delays the hardware cannot know, covers captures too short to
// complete a GPS cycle, and records antenna positions for stations whose GPS
// sits elsewhere.
//
// The format is serial, one value per line, with '#' comment lines allowed
// anywhere: a 4-line network header (name, center lat, lon, alt) followed by
// repeated 8-line station blocks (name, id, lat, lon, alt, cable delay ns,
// board version, receiver channel).
package roster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/lma-phasor-service/internal/geo"
)

// Station describes one sensor site (or, for the network header, the network
// center).
type Station struct {
	Name string
	// ID is the single-character station id. Lowercase indicates 10 us data,
	// uppercase 80 us.
	ID        string
	Geodetic  geo.Geodetic
	Cartesian geo.Cartesian
	// DelayNs is the fixed cable delay in nanoseconds.
	DelayNs      float64
	BoardVersion int
	Channel      int
}

// Roster maps station ids to stations. The zero-value-equivalent returned by
// New is valid: correlation tolerates an absent roster and synthesizes
// entries from capture-embedded positions.
type Roster struct {
	Network  *Station
	stations map[string]*Station
}

// New returns an empty roster.
func New() *Roster {
	return &Roster{stations: make(map[string]*Station)}
}

// Lookup returns the station registered under id.
func (r *Roster) Lookup(id string) (*Station, bool) {
	s, ok := r.stations[id]
	return s, ok
}

// Register adds or replaces a station.
func (r *Roster) Register(s *Station) {
	r.stations[s.ID] = s
}

// Len returns the number of registered stations.
func (r *Roster) Len() int {
	return len(r.stations)
}

// IDs returns the registered station ids in map order.
func (r *Roster) IDs() []string {
	ids := make([]string, 0, len(r.stations))
	for id := range r.stations {
		ids = append(ids, id)
	}
	return ids
}

// Parse reads a roster file. End of input between station blocks ends the
// file cleanly; end of input inside a block means the file was truncated and
// is an error.
func Parse(src io.Reader) (*Roster, error) {
	lines := &lineReader{scanner: bufio.NewScanner(src)}

	r := New()
	network, err := parseNetwork(lines)
	if err != nil {
		return nil, err
	}
	r.Network = network

	for {
		station, done, err := parseStation(lines)
		if err != nil {
			return nil, err
		}
		if done {
			return r, nil
		}
		r.Register(station)
	}
}

// lineReader yields non-comment, non-blank lines.
type lineReader struct {
	scanner *bufio.Scanner
	lineNo  int
}

// next returns the next meaningful line; ok is false at end of input.
func (lr *lineReader) next() (string, bool, error) {
	for lr.scanner.Scan() {
		lr.lineNo++
		line := strings.TrimSpace(lr.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, true, nil
	}
	return "", false, lr.scanner.Err()
}

// block collects exactly n meaningful lines. atStart reports whether end of
// input arrived before the first line (a clean stop) as opposed to mid-block
// (truncation).
func (lr *lineReader) block(n int) (lines []string, atStart bool, err error) {
	for len(lines) < n {
		line, ok, err := lr.next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, len(lines) == 0, io.EOF
		}
		lines = append(lines, line)
	}
	return lines, false, nil
}

func parseNetwork(lr *lineReader) (*Station, error) {
	lines, _, err := lr.block(4)
	if err != nil {
		return nil, fmt.Errorf("roster network header: %w", err)
	}

	g, err := parseGeodetic(lines[1], lines[2], lines[3])
	if err != nil {
		return nil, fmt.Errorf("roster network header: %w", err)
	}
	return &Station{
		Name:      lines[0],
		Geodetic:  g,
		Cartesian: geo.ToCartesian(g),
	}, nil
}

func parseStation(lr *lineReader) (*Station, bool, error) {
	lines, atStart, err := lr.block(8)
	if err == io.EOF && atStart {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("roster station block (near line %d): %w", lr.lineNo, err)
	}

	g, err := parseGeodetic(lines[2], lines[3], lines[4])
	if err != nil {
		return nil, false, fmt.Errorf("roster station %q: %w", lines[0], err)
	}
	delay, err := strconv.ParseFloat(lines[5], 64)
	if err != nil {
		return nil, false, fmt.Errorf("roster station %q: cable delay: %w", lines[0], err)
	}
	board, err := strconv.Atoi(lines[6])
	if err != nil {
		return nil, false, fmt.Errorf("roster station %q: board version: %w", lines[0], err)
	}
	channel, err := strconv.Atoi(lines[7])
	if err != nil {
		return nil, false, fmt.Errorf("roster station %q: channel: %w", lines[0], err)
	}

	return &Station{
		Name:         lines[0],
		ID:           lines[1],
		Geodetic:     g,
		Cartesian:    geo.ToCartesian(g),
		DelayNs:      delay,
		BoardVersion: board,
		Channel:      channel,
	}, false, nil
}

func parseGeodetic(latLine, lonLine, altLine string) (geo.Geodetic, error) {
	lat, err := strconv.ParseFloat(latLine, 64)
	if err != nil {
		return geo.Geodetic{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(lonLine, 64)
	if err != nil {
		return geo.Geodetic{}, fmt.Errorf("longitude: %w", err)
	}
	alt, err := strconv.ParseFloat(altLine, 64)
	if err != nil {
		return geo.Geodetic{}, fmt.Errorf("altitude: %w", err)
	}
	return geo.Geodetic{Lat: lat, Lon: lon, Alt: alt}, nil
}
