package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"steady/internal/cli"
	"steady/internal/core"
	"steady/internal/ingest"
	"steady/internal/log"
	"steady/internal/services"
	gsheet "steady/internal/sheets/google"
	"steady/internal/store"
)

func main() {
	csvPath := flag.String("csv", "", "path to a CSV export of earnings periods")
	fromSheet := flag.Bool("sheet", false, "read periods from the Google Sheet in GOOGLE_SPREADSHEET_ID")
	dryRun := flag.Bool("dry-run", false, "validate against the stored history without writing")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentImport)

	if *csvPath == "" && !*fromSheet {
		fmt.Fprintln(os.Stderr, "usage: steady-import [-csv path] [-sheet] [-dry-run]")
		os.Exit(2)
	}

	ctx := context.Background()

	var fromCSV, fromSheets []core.EarningsPeriod
	g, gctx := errgroup.WithContext(ctx)
	if *csvPath != "" {
		g.Go(func() error {
			f, err := os.Open(*csvPath)
			if err != nil {
				return fmt.Errorf("open %s: %w", *csvPath, err)
			}
			defer f.Close()
			fromCSV, err = ingest.ParseCSV(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", *csvPath, err)
			}
			return nil
		})
	}
	if *fromSheet {
		g.Go(func() error {
			client, err := gsheet.NewFromEnv(gctx)
			if err != nil {
				return err
			}
			fromSheets, err = client.ReadPeriods(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("Failed to read input", "error", err)
		os.Exit(1)
	}

	batch := append(fromCSV, fromSheets...)
	ingest.SortByStart(batch)
	logger.Info("Read earnings periods", "csv", len(fromCSV), "sheet", len(fromSheets))

	if err := ingest.Validate(batch); err != nil {
		logger.Error("Import rejected", "error", err, "kind", core.ErrorKind(err))
		os.Exit(1)
	}

	be := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if be.Cleanup != nil {
			be.Cleanup()
		}
	}()

	if *dryRun {
		// Replay onto an unjournaled copy so overlap and ordering are checked
		// against the stored history.
		scratch := store.New()
		snap := be.Store.Snapshot()
		if err := scratch.Load(snap.Periods(), nil); err != nil {
			logger.Error("Failed to copy stored history", "error", err)
			os.Exit(1)
		}
		if _, err := scratch.AppendBatch(ctx, batch); err != nil {
			logger.Error("Dry run rejected", "error", err, "kind", core.ErrorKind(err))
			os.Exit(1)
		}
		logger.Info("Dry run passed", "periods", len(batch), "stored", snap.Len())
		return
	}

	ledger := services.NewLedger(be.Store, services.WithLogger(logger.WithComponent(log.ComponentLedger)))
	stored, err := ledger.Append(ctx, batch)
	if err != nil {
		logger.Error("Import failed", "error", err, "kind", core.ErrorKind(err))
		os.Exit(1)
	}
	logger.Info("Import complete", "appended", len(stored), "store_version", be.Store.Version())
}
