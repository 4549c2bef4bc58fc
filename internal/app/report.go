package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepReport is the structured result every sweep returns.
type SweepReport struct {
	Sweep     string    `json:"sweep"`
	StartedAt time.Time `json:"started_at"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Errors    []string  `json:"errors"`
}

func (r SweepReport) Fields() logrus.Fields {
	return logrus.Fields{
		"sweep":     r.Sweep,
		"processed": r.Processed,
		"succeeded": r.Succeeded,
		"skipped":   r.Skipped,
		"failed":    r.Failed,
	}
}

// errSkip marks a sweep item whose state changed since it was listed.
var errSkip = fmt.Errorf("item no longer eligible")

// reportBuilder accumulates a SweepReport; safe for concurrent items.
type reportBuilder struct {
	mu sync.Mutex
	r  SweepReport
}

func newReport(sweep string, now time.Time) *reportBuilder {
	return &reportBuilder{r: SweepReport{Sweep: sweep, StartedAt: now, Errors: []string{}}}
}

func (b *reportBuilder) succeeded() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r.Processed++
	b.r.Succeeded++
}

func (b *reportBuilder) skipped() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r.Processed++
	b.r.Skipped++
}

func (b *reportBuilder) failed(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r.Processed++
	b.r.Failed++
	b.r.Errors = append(b.r.Errors, fmt.Sprintf(format, args...))
}

// merge folds another phase of the same sweep in.
func (b *reportBuilder) merge(o SweepReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.r.Processed += o.Processed
	b.r.Succeeded += o.Succeeded
	b.r.Skipped += o.Skipped
	b.r.Failed += o.Failed
	b.r.Errors = append(b.r.Errors, o.Errors...)
}

func (b *reportBuilder) Result() SweepReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.r
	out.Errors = append([]string{}, b.r.Errors...)
	return out
}

// tally records the outcome of one booking-scoped sweep item.
func tally(log *logrus.Entry, report *reportBuilder, bookingID int64, err error, msg string) {
	switch {
	case err == nil:
		report.succeeded()
	case errors.Is(err, errSkip):
		report.skipped()
	default:
		log.WithError(err).WithField("booking_id", bookingID).Error(msg)
		report.failed("booking %d: %v", bookingID, err)
	}
}
