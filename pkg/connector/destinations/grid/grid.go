// Package grid implements a tabular sink that keeps each destination as a
// CSV grid in a file or object store. A write reads the current grid, places
// the rows at the requested offset and stores the grid again, so cells
// outside the written block survive, as they would on a spreadsheet.
package grid

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/pkg/compression"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
)

// ObjectStore reads and writes whole objects by name
type ObjectStore interface {
	// Read returns the object's contents; found is false when it does not exist
	Read(ctx context.Context, name string) (data []byte, found bool, err error)
	Write(ctx context.Context, name string, data []byte) error
	Close() error
}

// Grid is a ragged 2-D block of text cells
type Grid [][]string

// Place writes rows so that rows[0][0] lands at (startRow, startCol),
// both 1-based, growing the grid as needed
func (g Grid) Place(startRow, startCol int, rows []core.Row) Grid {
	r0, c0 := startRow-1, startCol-1
	for len(g) < r0+len(rows) {
		g = append(g, nil)
	}
	for i, row := range rows {
		line := g[r0+i]
		for len(line) < c0+len(row) {
			line = append(line, "")
		}
		for j, cell := range row {
			line[c0+j] = core.FormatCell(cell)
		}
		g[r0+i] = line
	}
	return g
}

// Sink is a core.Sink over an ObjectStore
type Sink struct {
	kind   string
	store  ObjectStore
	comp   compression.Compressor
	logger *zap.Logger

	mu sync.Mutex
}

// NewSink creates a grid sink. kind names the sink in logs ("csv", "gcs", "s3").
func NewSink(kind string, store ObjectStore, comp compression.Compressor, logger *zap.Logger) *Sink {
	if comp == nil {
		comp, _ = compression.NewCompressor(compression.None)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		kind:   kind,
		store:  store,
		comp:   comp,
		logger: logger.With(zap.String("component", "grid_sink"), zap.String("sink", kind)),
	}
}

// Name implements core.Sink
func (s *Sink) Name() string { return s.kind }

// ObjectName returns the object a destination is stored under
func (s *Sink) ObjectName(destination string) string {
	return ObjectName(destination) + ".csv" + s.comp.Extension()
}

// Write implements core.Sink
func (s *Sink) Write(ctx context.Context, destination string, startRow, startCol int, rows []core.Row) error {
	if len(rows) == 0 {
		return nil
	}
	if startRow < 1 || startCol < 1 {
		return errors.Newf(errors.ErrorTypeValidation, "invalid start cell (%d, %d)", startRow, startCol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.ObjectName(destination)
	grid, err := s.load(ctx, name)
	if err != nil {
		return err
	}

	grid = grid.Place(startRow, startCol, rows)

	data, err := encode(grid)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "failed to encode grid")
	}
	data, err = s.comp.Compress(data)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, "failed to compress grid")
	}
	if err := s.store.Write(ctx, name, data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("failed to store %s", name))
	}

	s.logger.Debug("grid written",
		zap.String("object", name),
		zap.Int("rows", len(rows)),
		zap.Int("grid_rows", len(grid)))
	return nil
}

// Read returns the current grid for destination
func (s *Sink) Read(ctx context.Context, destination string) (Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, s.ObjectName(destination))
}

func (s *Sink) load(ctx context.Context, name string) (Grid, error) {
	data, found, err := s.store.Read(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("failed to read %s", name))
	}
	if !found || len(data) == 0 {
		return Grid{}, nil
	}
	data, err = s.comp.Decompress(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("failed to decompress %s", name))
	}
	grid, err := decode(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("%s is not valid CSV", name))
	}
	return grid, nil
}

// Close implements core.Sink
func (s *Sink) Close() error {
	return s.store.Close()
}

// encode pads every line to the grid's width, and to at least two fields
// since encoding/csv skips blank lines on read
func encode(g Grid) ([]byte, error) {
	width := 0
	for _, line := range g {
		if len(line) > width {
			width = len(line)
		}
	}
	if width < 2 {
		width = 2
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, line := range g {
		padded := make([]string, width)
		copy(padded, line)
		if err := w.Write(padded); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func decode(data []byte) (Grid, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return Grid(records), nil
}

// ObjectName turns a destination name into a safe object base name
func ObjectName(destination string) string {
	name := strings.TrimSpace(destination)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" {
		name = "sheet"
	}
	return name
}
