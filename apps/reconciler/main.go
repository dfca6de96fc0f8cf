// Command reconciler runs one reconciliation pass and prints the report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/attribution"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/clock"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/config"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/credit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ledger"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/observability"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/order"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/providers/pdf"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/ratelimit"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation"
	recondomain "github.com/pawtraits-dev/pawtraits-sub014/internal/reconciliation/domain"
	"github.com/pawtraits-dev/pawtraits-sub014/internal/referral"
	"github.com/pawtraits-dev/pawtraits-sub014/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be repaired without writing")
	since := flag.String("since", "", "only scan orders created at or after this RFC3339 time")
	batchSize := flag.Int("batch-size", 0, "orders per page, 0 uses the configured default")
	pdfPath := flag.String("pdf", "", "also write the run report as a PDF to this path")
	timeout := flag.Duration("timeout", 30*time.Minute, "abort the run after this long")
	flag.Parse()

	opts := recondomain.Options{DryRun: *dryRun, BatchSize: *batchSize}
	if *since != "" {
		parsed, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -since: %v\n", err)
			os.Exit(2)
		}
		parsed = parsed.UTC()
		opts.Since = &parsed
	}

	var (
		svc recondomain.Service
		log *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		order.Module,
		referral.Module,
		ledger.Module,
		credit.Module,
		attribution.Module,
		pdf.Module,
		ratelimit.Module,
		reconciliation.Module,
		fx.Populate(&svc, &log),
		fx.NopLogger,
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}

	code := run(svc, log, opts, *pdfPath, *timeout)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	os.Exit(code)
}

func run(svc recondomain.Service, log *zap.Logger, opts recondomain.Options, pdfPath string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := svc.Run(ctx, opts)
	if err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Error("encode report", zap.Error(err))
		return 1
	}

	if pdfPath != "" && report.RunID != 0 {
		if err := writePDF(ctx, svc, report.RunID, pdfPath); err != nil {
			log.Error("write pdf", zap.Error(err))
			return 1
		}
	}

	if report.Status() == recondomain.RunStatusSucceeded || report.LockSkipped {
		return 0
	}
	return 3
}

func writePDF(ctx context.Context, svc recondomain.Service, runID snowflake.ID, path string) error {
	_, body, err := svc.RenderPDF(ctx, runID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
