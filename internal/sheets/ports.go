package sheets

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"steady/internal/core"
)

// SummaryRow is one line of the weekly summary sheet.
type SummaryRow struct {
	GeneratedAt   time.Time
	LatestPeriod  time.Time
	Gross         decimal.Decimal
	Score         float64
	ForecastPoint float64
	ForecastLower float64
	ForecastUpper float64
	TopInsight    string
}

// Ports for outbound adapters.
type (
	PeriodReader interface {
		// ReadPeriods returns every period recorded in the source, in sheet order.
		ReadPeriods(ctx context.Context) ([]core.EarningsPeriod, error)
	}

	SummaryWriter interface {
		AppendSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}
)
