package domain

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ParseStationTable reads the fixed-width station list. The dash separator
// line below the header defines the column spans; rows whose WMO column is not
// a number (including ".." and the trailer) are skipped. The first row for a
// code wins.
func ParseStationTable(r io.Reader) (StationTable, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		header string
		prev   string
		cols   []column
	)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if isSeparator(line) {
			header = prev
			cols = columnsFrom(line)
			break
		}
		prev = line
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, errors.New("station table has no separator line")
	}

	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c.slice(header)] = i
	}
	wmoCol, ok1 := idx["WMO"]
	nameCol, ok2 := idx["Site name"]
	latCol, ok3 := idx["Lat"]
	lonCol, ok4 := idx["Lon"]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, errors.New("station table is missing WMO, Site name, Lat or Lon columns")
	}

	table := make(StationTable)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		wmo, err := strconv.Atoi(cols[wmoCol].slice(line))
		if err != nil {
			continue
		}
		if _, seen := table[wmo]; seen {
			continue
		}
		lat, errLat := strconv.ParseFloat(cols[latCol].slice(line), 64)
		lon, errLon := strconv.ParseFloat(cols[lonCol].slice(line), 64)
		if errLat != nil || errLon != nil {
			continue
		}
		table[wmo] = StationRef{
			Name:     cols[nameCol].slice(line),
			Location: Location{Lat: &lat, Lon: &lon},
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// column spans [start, end) of a line; end < 0 means to end of line.
type column struct {
	start, end int
}

func (c column) slice(line string) string {
	if c.start >= len(line) {
		return ""
	}
	end := c.end
	if end < 0 || end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[c.start:end])
}

func isSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Trim(trimmed, "- ") == "" && strings.Contains(trimmed, "---")
}

// columnsFrom turns each dash run into a column that extends up to the start
// of the next run, so right-aligned values that overhang still land in it.
func columnsFrom(sep string) []column {
	var starts []int
	for i := 0; i < len(sep); i++ {
		if sep[i] == '-' && (i == 0 || sep[i-1] != '-') {
			starts = append(starts, i)
		}
	}
	cols := make([]column, len(starts))
	for i, s := range starts {
		end := -1
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		cols[i] = column{start: s, end: end}
	}
	return cols
}
