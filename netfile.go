package lanesim

// netfile.go reads the flat text network format. Every line that is not
// empty and does not start with '#' describes one segment:
//
//	<id> <bx> <by> <bz> <ex> <ey> <ez> <inCount> <inId>* <outCount> <outId>* <mergeCount> <mergeId>* <yieldCount> <yieldId>*
//
// Lines that cannot be read are dropped, as are references to segments not
// described on an earlier line or the same one.

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iti/lanesim/internal/logging"
)

// ReadNetworkText reads a network description in the flat text format from a file
func ReadNetworkText(filename string, logger logging.Logger) (*NetworkDesc, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return ParseNetworkText(f, name, logger)
}

// ParseNetworkText reads a network description in the flat text format
func ParseNetworkText(r io.Reader, name string, logger logging.Logger) (*NetworkDesc, error) {
	if logger == nil {
		logger = logging.Noop()
	}
	nd := CreateNetworkDesc(name)
	ctx := context.Background()

	declared := make(map[int]bool)
	known := func(ids []int) []int {
		kept := make([]int, 0, len(ids))
		for _, id := range ids {
			if declared[id] {
				kept = append(kept, id)
			}
		}
		return kept
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo += 1
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		sd, err := parseSegmentLine(line)
		if err != nil {
			logger.Debug(ctx, "dropped network description line",
				logging.Int("line", lineNo), logging.String("error", err.Error()))
			continue
		}
		declared[sd.Number] = true
		refs := len(sd.In) + len(sd.Out) + len(sd.Merge) + len(sd.Yield)
		sd.In, sd.Out, sd.Merge, sd.Yield = known(sd.In), known(sd.Out), known(sd.Merge), known(sd.Yield)
		if dropped := refs - len(sd.In) - len(sd.Out) - len(sd.Merge) - len(sd.Yield); dropped > 0 {
			logger.Debug(ctx, "dropped forward references",
				logging.Int("line", lineNo), logging.Int("segment", sd.Number), logging.Int("dropped", dropped))
		}
		nd.Segments = append(nd.Segments, sd)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nd, nil
}

// fieldReader hands out the fields of a line one at a time
type fieldReader struct {
	fields []string
	at     int
}

func (fr *fieldReader) next() (string, error) {
	if fr.at >= len(fr.fields) {
		return "", fmt.Errorf("line ends after %d fields", len(fr.fields))
	}
	fr.at += 1
	return fr.fields[fr.at-1], nil
}

func (fr *fieldReader) nextInt() (int, error) {
	field, err := fr.next()
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(field)
}

func (fr *fieldReader) nextFloat() (float64, error) {
	field, err := fr.next()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(field, 64)
}

// nextList reads a count followed by that many ids
func (fr *fieldReader) nextList() ([]int, error) {
	count, err := fr.nextInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("negative count %d", count)
	}
	if left := len(fr.fields) - fr.at; count > left {
		return nil, fmt.Errorf("count %d with only %d fields left", count, left)
	}
	ids := make([]int, 0, count)
	for idx := 0; idx < count; idx++ {
		id, err := fr.nextInt()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (fr *fieldReader) nextCoord() (Coord, error) {
	var xyz [3]float64
	for idx := range xyz {
		v, err := fr.nextFloat()
		if err != nil {
			return Coord{}, err
		}
		xyz[idx] = v
	}
	return Coord{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// parseSegmentLine reads one segment line
func parseSegmentLine(line string) (SegmentDesc, error) {
	fr := &fieldReader{fields: strings.Fields(line)}
	sd := SegmentDesc{}
	var err error

	if sd.Number, err = fr.nextInt(); err != nil {
		return sd, err
	}
	if sd.Begin, err = fr.nextCoord(); err != nil {
		return sd, err
	}
	if sd.End, err = fr.nextCoord(); err != nil {
		return sd, err
	}
	lists := []*[]int{&sd.In, &sd.Out, &sd.Merge, &sd.Yield}
	for _, list := range lists {
		if *list, err = fr.nextList(); err != nil {
			return sd, err
		}
	}
	if fr.at != len(fr.fields) {
		return sd, fmt.Errorf("%d trailing fields", len(fr.fields)-fr.at)
	}
	return sd, nil
}

// WriteNetworkText writes a description in the flat text format
func WriteNetworkText(w io.Writer, nd *NetworkDesc) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", nd.Name)
	list := func(ids []int) string {
		parts := []string{strconv.Itoa(len(ids))}
		for _, id := range ids {
			parts = append(parts, strconv.Itoa(id))
		}
		return strings.Join(parts, " ")
	}
	for _, sd := range nd.Segments {
		fmt.Fprintf(bw, "%d %g %g %g %g %g %g %s %s %s %s\n", sd.Number,
			sd.Begin.X, sd.Begin.Y, sd.Begin.Z, sd.End.X, sd.End.Y, sd.End.Z,
			list(sd.In), list(sd.Out), list(sd.Merge), list(sd.Yield))
	}
	return bw.Flush()
}
