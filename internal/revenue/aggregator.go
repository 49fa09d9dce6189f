// Package revenue turns ledger rows into totals bucketed by day, week or
// month. It only ever reads from the store.
package revenue

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/gym-payments-ledger/internal/interfaces"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/ledger"
	"github.com/sheikh-saqib/gym-payments-ledger/internal/models"
)

type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(s); g {
	case GroupByDay, GroupByWeek, GroupByMonth:
		return g, nil
	case "":
		return GroupByDay, nil
	}
	return "", ledger.ValidationError{Field: "groupBy", Message: "must be one of day, week, month"}
}

type Query struct {
	StartDate     models.Date
	EndDate       models.Date
	BranchID      string
	PaymentMethod models.PaymentMethod
	GroupBy       GroupBy

	// IncludeSuperseded counts corrected originals alongside their
	// replacements. Only useful for audits: totals then double count.
	IncludeSuperseded bool
}

type Bucket struct {
	PeriodKey    string          `json:"periodKey"`
	RevenueSum   decimal.Decimal `json:"revenueSum"`
	PaymentCount int             `json:"paymentCount"`
}

type Report struct {
	StartDate    models.Date     `json:"startDate"`
	EndDate      models.Date     `json:"endDate"`
	GroupBy      GroupBy         `json:"groupBy"`
	Total        decimal.Decimal `json:"totalRevenue"`
	PaymentCount int             `json:"paymentCount"`
	Breakdown    []Bucket        `json:"breakdown"`
}

type Aggregator struct {
	source interfaces.RevenueSource
}

func NewAggregator(source interfaces.RevenueSource) *Aggregator {
	return &Aggregator{source: source}
}

// Report sums the tenant's payments in [StartDate, EndDate] by period.
func (a *Aggregator) Report(ctx context.Context, tenantID string, q Query) (Report, error) {
	if q.StartDate.IsZero() {
		return Report{}, ledger.ValidationError{Field: "startDate", Message: "is required"}
	}
	if q.EndDate.IsZero() {
		return Report{}, ledger.ValidationError{Field: "endDate", Message: "is required"}
	}
	if q.StartDate.After(q.EndDate) {
		return Report{}, ledger.ValidationError{Field: "startDate", Message: "must not be after endDate"}
	}
	if q.GroupBy == "" {
		q.GroupBy = GroupByDay
	}
	if _, err := ParseGroupBy(string(q.GroupBy)); err != nil {
		return Report{}, err
	}
	if q.PaymentMethod != "" {
		if err := ledger.ValidateMethod(q.PaymentMethod); err != nil {
			return Report{}, err
		}
	}

	rows, err := a.source.ListRevenueRows(ctx, tenantID, models.RevenueFilter{
		StartDate:         q.StartDate,
		EndDate:           q.EndDate,
		BranchID:          q.BranchID,
		PaymentMethod:     q.PaymentMethod,
		IncludeSuperseded: q.IncludeSuperseded,
	})
	if err != nil {
		return Report{}, fmt.Errorf("load revenue rows: %w", err)
	}

	report := Summarize(rows, q.GroupBy)
	report.StartDate = q.StartDate
	report.EndDate = q.EndDate
	return report, nil
}

// Summarize buckets rows by period. Bucket sums and counts always add up
// to the report totals.
func Summarize(rows []models.RevenueRow, groupBy GroupBy) Report {
	byKey := make(map[string]*Bucket)
	total := decimal.Zero
	for _, row := range rows {
		key := PeriodKey(row.PaidOn, groupBy)
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{PeriodKey: key, RevenueSum: decimal.Zero}
			byKey[key] = b
		}
		b.RevenueSum = b.RevenueSum.Add(row.Amount)
		b.PaymentCount++
		total = total.Add(row.Amount)
	}

	breakdown := make([]Bucket, 0, len(byKey))
	for _, b := range byKey {
		breakdown = append(breakdown, *b)
	}
	// keys are zero-padded dates, so lexical order is chronological
	sort.Slice(breakdown, func(i, j int) bool {
		return breakdown[i].PeriodKey < breakdown[j].PeriodKey
	})

	return Report{
		GroupBy:      groupBy,
		Total:        total,
		PaymentCount: len(rows),
		Breakdown:    breakdown,
	}
}

// PeriodKey names the bucket a date falls into: YYYY-MM-DD for days, the
// ISO week's Monday (YYYY-MM-DD) for weeks, YYYY-MM for months.
func PeriodKey(d models.Date, groupBy GroupBy) string {
	switch groupBy {
	case GroupByWeek:
		return WeekStart(d).String()
	case GroupByMonth:
		return fmt.Sprintf("%04d-%02d", d.Year(), int(d.Month()))
	default:
		return d.String()
	}
}

// WeekStart returns the Monday on or before d.
func WeekStart(d models.Date) models.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}
