// Package settlement closes a month: it settles every flex order of the
// month and archives the month's documents once nothing is left unsettled.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/planboard/core/logger"
	"github.com/kilianp07/planboard/core/model"
	coresettlement "github.com/kilianp07/planboard/core/settlement"
)

// Reconciler settles the orders of a month.
type Reconciler interface {
	RunMonth(ctx context.Context, year int, month time.Month) (coresettlement.Report, error)
	IsComplete(ctx context.Context, year int, month time.Month) (bool, []model.DocumentKey, error)
}

// Archiver moves the documents of a month to ARCHIVED.
type Archiver interface {
	ArchiveMonth(ctx context.Context, year int, month time.Month) (int, error)
}

// Result summarises one month close.
type Result struct {
	Report   coresettlement.Report
	Complete bool
	Missing  []model.DocumentKey
	Archived int
}

// CloseMonth runs the settlement of the month and archives it when every
// order is settled. Incomplete months are left untouched so a later run can
// pick up the remaining orders.
func CloseMonth(ctx context.Context, r Reconciler, a Archiver, year int, month time.Month, log logger.Logger) (Result, error) {
	log = logger.OrNop(log)
	rep, err := r.RunMonth(ctx, year, month)
	if err != nil {
		return Result{Report: rep}, fmt.Errorf("settle %04d-%02d: %w", year, month, err)
	}
	res := Result{Report: rep}
	for _, f := range rep.Failed {
		log.Warnf("order %s not settled: %v", f.Order, f.Err)
	}
	complete, missing, err := r.IsComplete(ctx, year, month)
	if err != nil {
		return res, fmt.Errorf("completeness %04d-%02d: %w", year, month, err)
	}
	res.Complete, res.Missing = complete, missing
	if !complete {
		log.Infof("%04d-%02d incomplete, %d orders unsettled", year, month, len(missing))
		return res, nil
	}
	if a == nil {
		return res, nil
	}
	n, err := a.ArchiveMonth(ctx, year, month)
	res.Archived = n
	if err != nil {
		return res, fmt.Errorf("archive %04d-%02d: %w", year, month, err)
	}
	return res, nil
}

// PreviousMonth returns the month before the one containing now.
func PreviousMonth(now time.Time) (int, time.Month) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return first.Year(), first.Month()
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("month %q: %w", s, err)
	}
	return t.Year(), t.Month(), nil
}
