// Package feed replays OHLC bars from CSV files.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/trade_lifecycle/internal/domain"
)

// CSVBarFeed reads rows of time,open,high,low,close[,volume]. A header row is allowed. Time is
// either unix seconds or RFC3339.
type CSVBarFeed struct {
	f    io.Closer
	r    *csv.Reader
	line int

	sawFirst bool
}

func OpenCSV(path string) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewCSVBarFeed(f)
	feed.f = f
	return feed, nil
}

func NewCSVBarFeed(r io.Reader) *CSVBarFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return &CSVBarFeed{r: cr}
}

func (f *CSVBarFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

// Next returns the next bar. ok is false at end of input.
func (f *CSVBarFeed) Next() (domain.Bar, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return domain.Bar{}, false, nil
		}
		if err != nil {
			return domain.Bar{}, false, err
		}
		f.line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), "time") {
				continue
			}
		}

		if len(row) < 5 {
			return domain.Bar{}, false, fmt.Errorf("line %d: expected at least 5 columns, got %d", f.line, len(row))
		}

		bar, err := parseRow(row)
		if err != nil {
			return domain.Bar{}, false, fmt.Errorf("line %d: %w", f.line, err)
		}
		return bar, true, nil
	}
}

// ReadAll drains the feed.
func (f *CSVBarFeed) ReadAll() ([]domain.Bar, error) {
	var bars []domain.Bar
	for {
		bar, ok, err := f.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return bars, nil
		}
		bars = append(bars, bar)
	}
}

func parseRow(row []string) (domain.Bar, error) {
	ts, err := parseTime(strings.TrimSpace(row[0]))
	if err != nil {
		return domain.Bar{}, err
	}

	vals := make([]float64, 0, 5)
	for i, name := range []string{"open", "high", "low", "close", "volume"} {
		if i+1 >= len(row) {
			vals = append(vals, 0)
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("bad %s %q: %w", name, row[i+1], err)
		}
		vals = append(vals, v)
	}

	bar := domain.Bar{OpenTime: ts.Unix(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}
	if bar.High < bar.Low {
		return domain.Bar{}, fmt.Errorf("high %f below low %f", bar.High, bar.Low)
	}
	return bar, nil
}

func parseTime(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
