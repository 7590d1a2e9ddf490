package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/target/mmk-reports/internal/core"
	"github.com/target/mmk-reports/internal/data"
	"github.com/target/mmk-reports/internal/domain/model"
)

// ReportProcessorOptions groups dependencies for ReportProcessor.
type ReportProcessorOptions struct {
	Artifacts    core.ArtifactStore                 // Required: where generated reports are written
	Delays       map[model.ReportType]time.Duration // Optional: simulated generation latency per type
	TimeProvider data.TimeProvider                  // Optional: clock for generatedAt (defaults to real time)
	Rand         *rand.Rand                         // Optional: source for generated figures
	Logger       *slog.Logger                       // Optional: structured logger
}

// ProcessResult is the outcome of a successful generation.
type ProcessResult struct {
	ArtifactRef string
	Data        any
}

type reportGenerator func(params model.Parameters) any

// ReportProcessor generates report data for a job and materializes it as an artifact.
//
// Generators are stand-ins: figures are random and only the shape of each report is stable.
type ReportProcessor struct {
	artifacts  core.ArtifactStore
	delays     map[model.ReportType]time.Duration
	clock      data.TimeProvider
	logger     *slog.Logger
	generators map[model.ReportType]reportGenerator

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// NewReportProcessor constructs a new ReportProcessor.
func NewReportProcessor(opts ReportProcessorOptions) (*ReportProcessor, error) {
	if opts.Artifacts == nil {
		return nil, errors.New("ArtifactStore is required")
	}

	clock := opts.TimeProvider
	if clock == nil {
		clock = &data.RealTimeProvider{}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // report figures are not security sensitive
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &ReportProcessor{
		artifacts: opts.Artifacts,
		delays:    opts.Delays,
		clock:     clock,
		logger:    logger.With("component", "report_processor"),
		rng:       rng,
	}
	p.generators = map[model.ReportType]reportGenerator{
		model.ReportTypeSales:     p.salesReport,
		model.ReportTypeUsers:     p.usersReport,
		model.ReportTypeProducts:  p.productsReport,
		model.ReportTypeFinancial: p.financialReport,
	}
	return p, nil
}

// MustNewReportProcessor constructs a new ReportProcessor and panics on error.
func MustNewReportProcessor(opts ReportProcessorOptions) *ReportProcessor {
	p, err := NewReportProcessor(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create ReportProcessor: %v", err))
	}
	return p
}

// Process generates the report for jobID and writes its artifact.
// Unknown types fail with model.ErrUnsupportedType.
func (p *ReportProcessor) Process(
	ctx context.Context,
	jobID string,
	typ model.ReportType,
	params model.Parameters,
) (*ProcessResult, error) {
	gen, ok := p.generators[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedType, typ)
	}
	if params == nil {
		params = model.Parameters{}
	}

	if err := p.simulateLatency(ctx, typ); err != nil {
		return nil, err
	}

	result := gen(params)
	ref, err := p.artifacts.Write(ctx, &model.Artifact{
		JobID:       jobID,
		Type:        typ,
		Parameters:  params,
		GeneratedAt: p.clock.Now().UTC().Format(time.RFC3339Nano),
		Data:        result,
	})
	if err != nil {
		return nil, fmt.Errorf("write artifact: %w", err)
	}

	p.logger.DebugContext(ctx, "report generated", "report_id", jobID, "report_type", typ, "artifact_ref", ref)
	return &ProcessResult{ArtifactRef: ref, Data: result}, nil
}

func (p *ReportProcessor) simulateLatency(ctx context.Context, typ model.ReportType) error {
	d := p.delays[typ]
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ReportProcessor) intN(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(n)
}

// amount returns a random currency amount in [0, upper) rounded to cents.
func (p *ReportProcessor) amount(upper float64) float64 {
	p.mu.Lock()
	v := p.rng.Float64() * upper
	p.mu.Unlock()
	return math.Round(v*100) / 100
}

// SalesReport is the data section of a sales report.
type SalesReport struct {
	Period       string          `json:"period"`
	TotalSales   float64         `json:"totalSales"`
	OrderCount   int             `json:"orderCount"`
	TopProducts  []ProductSales  `json:"topProducts"`
	TopCustomers []CustomerSpend `json:"topCustomers"`
}

// ProductSales is one row of the best sellers table.
type ProductSales struct {
	Product  string  `json:"product"`
	Quantity int     `json:"quantity"`
	Value    float64 `json:"value"`
}

// CustomerSpend is one row of the top customers table.
type CustomerSpend struct {
	Customer string  `json:"customer"`
	Total    float64 `json:"total"`
}

func (p *ReportProcessor) salesReport(params model.Parameters) any {
	return SalesReport{
		Period:     params.String("dateRange", "Last 30 days"),
		TotalSales: p.amount(100000),
		OrderCount: p.intN(1000),
		TopProducts: []ProductSales{
			{Product: "Product A", Quantity: 150, Value: 7500},
			{Product: "Product B", Quantity: 120, Value: 6000},
			{Product: "Product C", Quantity: 90, Value: 4500},
		},
		TopCustomers: []CustomerSpend{
			{Customer: "Customer X", Total: 12000},
			{Customer: "Customer Y", Total: 9800},
			{Customer: "Customer Z", Total: 7600},
		},
	}
}

// UsersReport is the data section of a users report.
type UsersReport struct {
	Period       string           `json:"period"`
	TotalUsers   int              `json:"totalUsers"`
	NewUsers     int              `json:"newUsers"`
	ActiveUsers  int              `json:"activeUsers"`
	Segmentation UserSegmentation `json:"segmentation"`
}

// UserSegmentation splits users by plan and activity.
type UserSegmentation struct {
	Premium  int `json:"premium"`
	Regular  int `json:"regular"`
	Inactive int `json:"inactive"`
}

func (p *ReportProcessor) usersReport(params model.Parameters) any {
	return UsersReport{
		Period:      params.String("dateRange", "All time"),
		TotalUsers:  p.intN(5000),
		NewUsers:    p.intN(100),
		ActiveUsers: p.intN(3000),
		Segmentation: UserSegmentation{
			Premium:  p.intN(500),
			Regular:  p.intN(2500),
			Inactive: p.intN(1000),
		},
	}
}

// ProductsReport is the data section of a products report.
type ProductsReport struct {
	TotalProducts   int             `json:"totalProducts"`
	LowStock        int             `json:"lowStock"`
	OutOfStock      int             `json:"outOfStock"`
	PopularProducts []ProductRating `json:"popularProducts"`
}

// ProductRating is one row of the popular products table.
type ProductRating struct {
	Product string  `json:"product"`
	Sales   int     `json:"sales"`
	Rating  float64 `json:"rating"`
}

func (p *ReportProcessor) productsReport(model.Parameters) any {
	return ProductsReport{
		TotalProducts: p.intN(1000),
		LowStock:      p.intN(50),
		OutOfStock:    p.intN(10),
		PopularProducts: []ProductRating{
			{Product: "Smartphone X", Sales: 250, Rating: 4.8},
			{Product: "Notebook Pro", Sales: 180, Rating: 4.6},
			{Product: "Tablet Lite", Sales: 150, Rating: 4.4},
		},
	}
}

// FinancialReport is the data section of a financial report.
type FinancialReport struct {
	Period       string   `json:"period"`
	TotalRevenue float64  `json:"totalRevenue"`
	Expenses     float64  `json:"expenses"`
	Profit       float64  `json:"profit"`
	CashFlow     CashFlow `json:"cashFlow"`
}

// CashFlow is money in and out over the period.
type CashFlow struct {
	Inflow  float64 `json:"inflow"`
	Outflow float64 `json:"outflow"`
}

func (p *ReportProcessor) financialReport(params model.Parameters) any {
	return FinancialReport{
		Period:       params.String("dateRange", "Last quarter"),
		TotalRevenue: p.amount(500000),
		Expenses:     p.amount(200000),
		Profit:       p.amount(300000),
		CashFlow: CashFlow{
			Inflow:  p.amount(400000),
			Outflow: p.amount(250000),
		},
	}
}
