package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	config "agri-analytics-api/configs"
	"agri-analytics-api/pkg/models"
	"agri-analytics-api/pkg/services"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	historyFile string
	sheetName   string
	format      string
	verbose     bool

	productID  string
	category   string
	quality    string
	stock      float64
	unitPrice  float64
	unitCost   float64
	demand     float64
	volume     float64
	elasticity float64
	target     float64
	days       int
	valueList  string

	granularity string
	outputFile  string
	seed        int64
	seedDays    int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "analyticsctl",
		Short: "Offline inventory and pricing analytics for marketplace products",
		Long: `analyticsctl runs the forecasting and pricing engines against a sales history file.

Examples:
  analyticsctl predict --product tomates --stock 50 --price 800 --category fruits
  analyticsctl forecast --product tomates --days 14 --history ventes.csv
  analyticsctl price --product P1 --price 1000 --cost 500 --quality bio
  analyticsctl summary --product tomates --granularity monthly --history ventes.csv
  analyticsctl seed --product tomates,oignons --category legumes --price 300 --out ventes.xlsx
  analyticsctl stats --values 12,15,11,30,14`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&historyFile, "history", "", "sales history file (.csv or .xlsx)")
	rootCmd.PersistentFlags().StringVar(&sheetName, "sheet", "", "sheet name for .xlsx history (default: first sheet)")
	rootCmd.PersistentFlags().StringVar(&format, "format", "table", "output format: table, json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show service logs")

	predictCmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict stock needs and reorder policy for one product",
		RunE:  runPredict,
	}
	predictCmd.Flags().StringVar(&productID, "product", "", "product ID")
	predictCmd.Flags().Float64Var(&stock, "stock", 0, "current stock")
	predictCmd.Flags().Float64Var(&unitPrice, "price", 0, "average unit price")
	predictCmd.Flags().StringVar(&category, "category", "", "category: fruits, legumes, cereales")

	forecastCmd := &cobra.Command{
		Use:   "forecast",
		Short: "Daily demand forecast with 95% bands",
		RunE:  runForecast,
	}
	forecastCmd.Flags().StringVar(&productID, "product", "", "product ID")
	forecastCmd.Flags().IntVar(&days, "days", 7, "days ahead (max 90)")

	anomalyCmd := &cobra.Command{
		Use:   "anomaly",
		Short: "Check a demand reading against the product history",
		RunE:  runAnomaly,
	}
	anomalyCmd.Flags().StringVar(&productID, "product", "", "product ID")
	anomalyCmd.Flags().Float64Var(&demand, "demand", 0, "observed demand")

	priceCmd := &cobra.Command{
		Use:   "price",
		Short: "Recommend a pricing strategy and price",
		RunE:  runPrice,
	}
	priceCmd.Flags().StringVar(&productID, "product", "", "product ID")
	priceCmd.Flags().Float64Var(&unitPrice, "price", 0, "current price")
	priceCmd.Flags().Float64Var(&unitCost, "cost", 0, "unit cost")
	priceCmd.Flags().StringVar(&quality, "quality", "", "quality label (bio, premium, standard)")
	priceCmd.Flags().StringVar(&category, "category", "", "category")

	optimalCmd := &cobra.Command{
		Use:   "optimal-point",
		Short: "Scan prices between 1.2x and 3x cost for the best profit",
		RunE:  runOptimalPoint,
	}
	optimalCmd.Flags().Float64Var(&unitCost, "cost", 0, "unit cost")
	optimalCmd.Flags().Float64Var(&unitPrice, "price", 0, "current price")
	optimalCmd.Flags().Float64Var(&volume, "volume", 0, "volume at the current price")
	optimalCmd.Flags().Float64Var(&elasticity, "elasticity", -1.2, "price elasticity")
	optimalCmd.Flags().Float64Var(&target, "target", 0, "minimum profit")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a comma-separated series",
		RunE:  runStats,
	}
	statsCmd.Flags().StringVar(&valueList, "values", "", "comma-separated values")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate the sales history by day, week or month",
		RunE:  runSummary,
	}
	summaryCmd.Flags().StringVar(&productID, "product", "", "product ID")
	summaryCmd.Flags().StringVar(&granularity, "granularity", services.GranularityWeekly, "daily, weekly or monthly")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic sales history file for demos and tests",
		RunE:  runSeed,
	}
	seedCmd.Flags().StringVar(&productID, "product", "", "comma-separated product IDs")
	seedCmd.Flags().StringVar(&category, "category", "", "category: fruits, legumes, cereales")
	seedCmd.Flags().Float64Var(&unitPrice, "price", 0, "unit price written with each sale")
	seedCmd.Flags().IntVar(&seedDays, "days", 90, "days of history per product")
	seedCmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	seedCmd.Flags().StringVar(&outputFile, "out", "", "output file (.csv or .xlsx)")

	rootCmd.AddCommand(predictCmd, forecastCmd, anomalyCmd, priceCmd, optimalCmd, statsCmd, summaryCmd, seedCmd)
	return rootCmd
}

// engines builds the services from the environment configuration and --history.
func engines(cmd *cobra.Command) (*services.DemandForecastService, *services.PriceOptimizationService, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := "error"
	if verbose {
		level = "debug"
	}
	logger := services.NewLogger(level, "development")
	logger.SetOutput(cmd.ErrOrStderr())

	file := historyFile
	if file == "" {
		file = cfg.History.File
	}
	var history services.HistorySource = services.NewMemoryHistorySource()
	if file != "" {
		fileHistory, err := services.NewFileHistorySource(file, firstNonEmpty(sheetName, cfg.History.Sheet))
		if err != nil {
			return nil, nil, fmt.Errorf("loading history: %w", err)
		}
		history = fileHistory
	}

	stats := services.NewStatisticsService()
	forecaster := services.NewDemandForecastService(history, nil, stats, services.ForecastSettings{
		CacheTTL:         cfg.Forecast.CacheTTL,
		ServiceLevelZ:    cfg.Forecast.ServiceLevelZ,
		HoldingCostRate:  cfg.Forecast.HoldingCostRate,
		OrderingCost:     cfg.Forecast.OrderingCost,
		MinOrderQuantity: cfg.Forecast.MinOrderQuantity,
		DefaultLeadTime:  cfg.Forecast.DefaultLeadTime,
		MinSampleSize:    cfg.Forecast.MinSampleSize,
	}, logger, services.WithSyntheticHistory(services.NewSyntheticHistoryGenerator(cfg.History.SyntheticSeed, cfg.History.SyntheticDays)))
	pricing := services.NewPriceOptimizationService(nil, stats, services.PricingSettings{
		PriceStep:         cfg.Pricing.PriceStep,
		DefaultElasticity: cfg.Pricing.DefaultElasticity,
		ElasticityScale:   cfg.Pricing.ElasticityScale,
		HistoryWindow:     cfg.Pricing.HistoryWindow,
		HistoryCapacity:   cfg.Pricing.HistoryCapacity,
	}, logger)
	return forecaster, pricing, nil
}

func runPredict(cmd *cobra.Command, _ []string) error {
	forecaster, _, err := engines(cmd)
	if err != nil {
		return err
	}
	p, err := forecaster.PredictStockNeeds(context.Background(), services.StockNeedsRequest{
		ProductID:    productID,
		CurrentStock: stock,
		AveragePrice: unitPrice,
		Category:     category,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, p)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"Product", "Stock", "Demand 7d", "Safety", "Reorder Pt", "EOQ", "Days Left", "Urgency", "Conf"}))
	table.Append([]string{
		p.ProductID,
		fmtNum(p.CurrentStock),
		fmtNum(p.PredictedDemand),
		fmtNum(p.SafetyStock),
		fmtNum(p.ReorderPoint),
		fmtNum(p.ReorderQuantity),
		strconv.Itoa(p.DaysUntilStockout),
		string(p.Urgency),
		fmt.Sprintf("%.0f%%", p.Confidence*100),
	})
	table.Render()
	for _, f := range p.Factors {
		fmt.Fprintf(out, "  - %s\n", f)
	}
	return nil
}

func runForecast(cmd *cobra.Command, _ []string) error {
	forecaster, _, err := engines(cmd)
	if err != nil {
		return err
	}
	forecasts, err := forecaster.ForecastDemand(context.Background(), productID, days)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, forecasts)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"Day", "Date", "Demand", "Low", "High", "Conf"}))
	for _, f := range forecasts {
		table.Append([]string{
			strconv.Itoa(f.DayIndex),
			f.Date,
			fmtNum(f.PredictedDemand),
			fmtNum(f.LowerBound),
			fmtNum(f.UpperBound),
			fmt.Sprintf("%.0f%%", f.Confidence*100),
		})
	}
	table.Render()
	return nil
}

func runAnomaly(cmd *cobra.Command, _ []string) error {
	forecaster, _, err := engines(cmd)
	if err != nil {
		return err
	}
	report, err := forecaster.DetectAnomalies(context.Background(), productID, demand)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, report)
	}
	fmt.Fprintf(out, "%s: %s (z=%.2f, severity=%s)\n", report.ProductID, report.Message, report.ZScore, report.Severity)
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	forecaster, _, err := engines(cmd)
	if err != nil {
		return err
	}
	agg, err := forecaster.SalesSummary(context.Background(), productID, granularity)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, agg)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"#", "Start", "End", "Total", "Avg/Day", "Min", "Max", "Revenue", "Change"}))
	for _, p := range agg.Periods {
		table.Append([]string{
			strconv.Itoa(p.Index),
			p.Start,
			p.End,
			fmtNum(p.TotalQuantity),
			fmtNum(p.AverageQuantity),
			fmtNum(p.MinQuantity),
			fmtNum(p.MaxQuantity),
			fmtNum(p.Revenue),
			fmt.Sprintf("%+.1f%%", p.ChangeRate),
		})
	}
	table.Render()
	fmt.Fprintf(out, "trend: %s, growth: %.1f%%, volatility: %.2f\n", agg.Trend, agg.GrowthRate, agg.Volatility)
	for _, r := range agg.Recommendations {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	return nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if outputFile == "" {
		return fmt.Errorf("--out is required")
	}
	var ids []string
	for _, id := range strings.Split(productID, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("--product is required")
	}

	generator := services.NewSyntheticHistoryGenerator(seed, seedDays)
	cat := services.ParseCategory(category)
	now := time.Now().UTC()
	var observations []models.HistoricalObservation
	for _, id := range ids {
		observations = append(observations, generator.Generate(id, cat, unitPrice, now)...)
	}
	if err := services.WriteHistoryFile(outputFile, sheetName, observations); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d observations for %d products to %s\n", len(observations), len(ids), outputFile)
	return nil
}

func runPrice(cmd *cobra.Command, _ []string) error {
	_, pricing, err := engines(cmd)
	if err != nil {
		return err
	}
	res, err := pricing.OptimizePrice(context.Background(), services.PriceRequest{
		ProductID:    productID,
		CurrentPrice: unitPrice,
		Cost:         unitCost,
		Category:     category,
		Quality:      quality,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, res)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"Product", "Current", "Optimized", "Strategy", "Revenue", "Volume", "Profit", "Conf"}))
	table.Append([]string{
		res.ProductID,
		fmtNum(res.CurrentPrice),
		fmtNum(res.OptimizedPrice),
		string(res.Strategy),
		fmt.Sprintf("%+.1f%%", res.ExpectedImpact.RevenueChange),
		fmt.Sprintf("%+.1f%%", res.ExpectedImpact.VolumeChange),
		fmt.Sprintf("%+.1f%%", res.ExpectedImpact.ProfitChange),
		fmt.Sprintf("%.0f%%", res.Confidence*100),
	})
	table.Render()
	for _, r := range res.Reasoning {
		fmt.Fprintf(out, "  - %s\n", r)
	}
	return nil
}

func runOptimalPoint(cmd *cobra.Command, _ []string) error {
	if unitCost <= 0 || unitPrice <= 0 {
		return fmt.Errorf("--cost and --price must be positive")
	}
	_, pricing, err := engines(cmd)
	if err != nil {
		return err
	}
	point := pricing.FindOptimalPricePoint(services.OptimalPriceRequest{
		Cost:         unitCost,
		CurrentPrice: unitPrice,
		BaseVolume:   volume,
		Elasticity:   elasticity,
		TargetProfit: target,
	})
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, point)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"Price", "Volume", "Profit", "Feasible", "Candidates"}))
	table.Append([]string{
		fmtNum(point.Price),
		fmtNum(point.ExpectedVolume),
		fmtNum(point.ExpectedProfit),
		strconv.FormatBool(point.Feasible),
		strconv.Itoa(point.Candidates),
	})
	table.Render()
	return nil
}

func runStats(cmd *cobra.Command, _ []string) error {
	values, err := parseValues(valueList)
	if err != nil {
		return err
	}
	summary := services.NewStatisticsService().Summarize(values, 7, 7, 0.3)
	out := cmd.OutOrStdout()
	if format == "json" {
		return writeJSON(out, summary)
	}

	table := tablewriter.NewTable(out, tablewriter.WithHeader([]string{"Metric", "Value"}))
	table.Append([]string{"count", strconv.Itoa(summary.Count)})
	table.Append([]string{"mean", fmtNum(summary.Pattern.AverageDailyDemand)})
	table.Append([]string{"std dev", fmtNum(summary.Pattern.StandardDeviation)})
	table.Append([]string{"consistency", fmtNum(summary.Pattern.Consistency)})
	table.Append([]string{"trend", fmt.Sprintf("%s (%.3f)", summary.TrendDirection, summary.TrendStrength)})
	table.Append([]string{"weekly index", fmtNum(summary.SeasonalityIndex)})
	outliers := 0
	for _, o := range summary.Outliers {
		if o {
			outliers++
		}
	}
	table.Append([]string{"outliers", strconv.Itoa(outliers)})
	table.Render()
	return nil
}

func parseValues(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("--values is required")
	}
	parts := strings.Split(s, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
