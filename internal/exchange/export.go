package exchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/skywatch-ops/fieldlog/internal/ops"
	"github.com/skywatch-ops/fieldlog/pkg/logger"
)

// Exporter writes the flat tabular projection of a record corpus
type Exporter struct {
	loc    *time.Location
	logger *logger.Logger
}

// NewExporter creates an exporter using the station zone for dates
func NewExporter(loc *time.Location, logger *logger.Logger) *Exporter {
	return &Exporter{
		loc:    loc,
		logger: logger.Named("export"),
	}
}

// WriteCSV writes the corpus as CSV: a header line, then one row per
// round or justification record.
func (e *Exporter) WriteCSV(w io.Writer, corpus *ops.Corpus) error {
	rows := FromCorpus(corpus, e.loc)

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.fields()); err != nil {
			return fmt.Errorf("failed to write export row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}

	e.logger.Info("Corpus exported", logger.Int("rows", len(rows)))
	return nil
}

func (r Row) fields() []string {
	return []string{
		strconv.Itoa(r.FlightNumber),
		r.OperatorID,
		r.Area,
		r.Date,
		r.StartTime,
		r.EndTime,
		formatSeconds(r.DurationSeconds),
		formatSeconds(r.PauseSeconds),
		r.Status,
		strconv.FormatBool(r.Anomalous),
		strconv.FormatBool(r.AutoClosed),
		r.Reason,
	}
}

func formatSeconds(secs float64) string {
	return strconv.FormatFloat(secs, 'f', -1, 64)
}
