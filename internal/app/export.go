package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"fx-rate-alerts/internal/calendar"
	"fx-rate-alerts/internal/currency"
	"fx-rate-alerts/internal/tiered"
)

// ratePoint is one dated-history observation of a currency.
type ratePoint struct {
	Date time.Time
	Unit int
	Buy  decimal.Decimal
	Sell decimal.Decimal
	Mid  decimal.Decimal
}

// Export renders a currency's dated history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	code, err := currency.Parse(opts.Currency)
	if err != nil {
		return err
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	rt, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	points, err := collectPoints(ctx, rt.store, rt.cal, code, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		a.Logger.Info().Str("currency", code.String()).Msg("no dated history found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting dated history")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, code, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, code, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func collectPoints(ctx context.Context, store *tiered.Store, cal *calendar.Resolver, code currency.Code, from, to *time.Time) ([]ratePoint, error) {
	dates, err := store.DatedDates(ctx)
	if err != nil {
		return nil, err
	}

	var points []ratePoint
	for _, key := range dates {
		day, err := cal.ParseDate(key)
		if err != nil {
			continue
		}
		if from != nil && day.Before(cal.Date(*from)) {
			continue
		}
		if to != nil && day.After(cal.Date(*to)) {
			continue
		}
		set, ok, err := store.Read(ctx, tiered.Dated(key))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		snap, ok := set.Get(code)
		if !ok {
			continue
		}
		points = append(points, ratePoint{Date: day, Unit: snap.Unit, Buy: snap.Buy, Sell: snap.Sell, Mid: snap.Mid})
	}
	return points, nil
}

func downsamplePoints(points []ratePoint, max int) []ratePoint {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]ratePoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, code currency.Code, points []ratePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "currency", "unit", "buy", "sell", "mid"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Date.Format(calendar.DateLayout),
			code.String(),
			fmt.Sprint(p.Unit),
			p.Buy.String(),
			p.Sell.String(),
			p.Mid.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writePointsPNG(path string, code currency.Code, points []ratePoint) error {
	if len(points) < 2 {
		return errors.New("at least two data points are needed for a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	mid := make([]float64, len(points))
	buy := make([]float64, len(points))
	sell := make([]float64, len(points))

	for i, p := range points {
		x[i] = p.Date
		mid[i] = p.Mid.InexactFloat64()
		buy[i] = p.Buy.InexactFloat64()
		sell[i] = p.Sell.InexactFloat64()
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("%s rate (per %d)", code, points[0].Unit),
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Mid",
				XValues: x,
				YValues: mid,
			},
			chart.TimeSeries{
				Name:    "Buy",
				XValues: x,
				YValues: buy,
			},
			chart.TimeSeries{
				Name:    "Sell",
				XValues: x,
				YValues: sell,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
