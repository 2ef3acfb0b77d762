// Command adjust runs the corporate-action adjustment engine once.
//
//	adjust stocks import stocks.csv
//	adjust ingest --from 2015 --to 2023
//	adjust recompute --codes 005930,000660
//	adjust report --format csv --out adjusted.csv
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"dividend-screener/internal/app"
	"dividend-screener/internal/config"
	"dividend-screener/internal/logging"
	"dividend-screener/internal/reporting"
)

func main() {
	cliApp := cli.NewApp()
	cliApp.Name = "adjust"
	cliApp.Usage = "Adjust per-share dividends for capital changes disclosed on OpenDART"
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "TOML config file", EnvVar: "SCREENER_CONFIG"},
		cli.StringFlag{Name: "api-key", Usage: "OpenDART API key (overrides DART_API_KEY)"},
		cli.StringFlag{Name: "storage", Usage: "storage backend: memory, postgres or mysql"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}

	yearFlags := []cli.Flag{
		cli.StringFlag{Name: "codes", Usage: "comma-separated stock codes, empty for every mapped stock"},
		cli.IntFlag{Name: "from", Usage: "first business year"},
		cli.IntFlag{Name: "to", Usage: "last business year"},
		cli.IntFlag{Name: "workers", Usage: "concurrent stocks"},
	}

	cliApp.Commands = []cli.Command{
		{
			Name:   "recompute",
			Usage:  "Recompute adjusted dividends and the corporate-action trail",
			Flags:  yearFlags,
			Action: runRecompute,
		},
		{
			Name:   "ingest",
			Usage:  "Load raw cash dividends from alotMatter",
			Flags:  yearFlags,
			Action: runIngest,
		},
		{
			Name:  "report",
			Usage: "Render stored adjustments",
			Flags: append(yearFlags[:3:3],
				cli.StringFlag{Name: "format", Value: "md", Usage: "md or csv"},
				cli.StringFlag{Name: "out", Usage: "output file, stdout when empty"},
			),
			Action: runReport,
		},
		{
			Name:  "stocks",
			Usage: "Manage tracked stocks",
			Subcommands: []cli.Command{
				{
					Name:      "import",
					Usage:     "Upsert stocks from a CSV file with header code,corp_code,name,market",
					ArgsUsage: "<file.csv>",
					Action:    runImportStocks,
				},
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and wires the engine. The returned cleanup must be called.
func setup(c *cli.Context) (context.Context, *app.App, func(), error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.ApplyOverrides(config.Overrides{
		APIKey:   c.GlobalString("api-key"),
		Backend:  c.GlobalString("storage"),
		LogLevel: c.GlobalString("log-level"),
		Workers:  c.Int("workers"),
		FromYear: c.Int("from"),
		ToYear:   c.Int("to"),
	})
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		stop()
		_ = logger.Sync()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := a.Close(); err != nil {
			logger.Warn("close", zap.Error(err))
		}
		stop()
		_ = logger.Sync()
	}
	return ctx, a, cleanup, nil
}

func runRecompute(c *cli.Context) error {
	ctx, a, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := a.Orchestrator.Recompute(ctx, splitCodes(c.String("codes")), a.Years())
	if res != nil {
		fmt.Printf("run %s: %d processed, %d succeeded, %d failed, %d records adjusted, %d skipped (%s)\n",
			res.RunID, res.Processed, res.Succeeded, res.Failed, res.RecordsAdjusted, res.RecordsSkipped, res.Duration)
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return cli.NewExitError(fmt.Sprintf("%d stocks failed", res.Failed), 2)
	}
	return nil
}

func runIngest(c *cli.Context) error {
	ctx, a, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := a.Ingester.Ingest(ctx, splitCodes(c.String("codes")), a.Years())
	if res != nil {
		fmt.Printf("ingested %d stocks: %d written, %d without dividend, %d failed (%s)\n",
			res.Stocks, res.Written, res.NoData, res.Failed, res.Duration)
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	return err
}

func runReport(c *cli.Context) error {
	ctx, a, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	gen := reporting.NewGenerator(a.Stores.Stocks, a.Stores.Dividends)
	r, err := gen.Generate(ctx, splitCodes(c.String("codes")), a.Years())
	if err != nil {
		return err
	}

	var out string
	switch c.String("format") {
	case "md":
		out = reporting.RenderMarkdown(r)
	case "csv":
		out = reporting.RenderCSV(r)
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}

	path := c.String("out")
	if path == "" {
		_, err = fmt.Print(out)
		return err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("report written to %s\n", path)
	return nil
}

func runImportStocks(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: adjust stocks import <file.csv>", 1)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	stocks, err := app.ReadStocksCSV(f)
	if err != nil {
		return err
	}

	ctx, a, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := a.ImportStocks(ctx, stocks)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d stocks\n", n)
	return nil
}

func splitCodes(s string) []string {
	var codes []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			codes = append(codes, p)
		}
	}
	return codes
}
