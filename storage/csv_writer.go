package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"flight-scraper/models"
)

// CSVWriter appends raw (uncleaned) flights to a CSV audit file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"origin", "destination", "day_offset", "price", "depart_time",
	"arrival_time", "airlines", "stops", "trip", "scraped_at",
}

// NewCSVWriter opens (or creates) the CSV file at the given path for
// appending, writing the header row when the file is new. Intermediate
// directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRaw appends raw flights and flushes.
func (c *CSVWriter) WriteRaw(flights []*models.RawFlight) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range flights {
		row := []string{
			f.Route.Origin,
			f.Route.Destination,
			strconv.Itoa(f.DayOffset),
			f.Price,
			f.DepartTime,
			f.ArrivalTime,
			strings.Join(f.Airlines, "|"),
			f.Stops,
			f.TripLabel,
			f.ScrapedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
