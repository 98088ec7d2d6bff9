package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/mapleridge/billing-engine/internal/api"
	"github.com/mapleridge/billing-engine/internal/billing"
	"github.com/mapleridge/billing-engine/internal/config"
	"github.com/mapleridge/billing-engine/internal/database"
	"github.com/mapleridge/billing-engine/internal/domain"
	"github.com/mapleridge/billing-engine/internal/export"
	"github.com/mapleridge/billing-engine/internal/ingest"
	"github.com/mapleridge/billing-engine/internal/sheet"
	"github.com/mapleridge/billing-engine/internal/store"
	"github.com/mapleridge/billing-engine/internal/worker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	app := &cli.App{
		Name:  "billingd",
		Usage: "billing calculation engine",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API server",
				Action: runServe,
			},
			{
				Name:  "ingest",
				Usage: "ingest a billing workbook from disk",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "path to the .xlsx workbook", Required: true},
					&cli.StringFlag{Name: "user", Usage: "acting user identity for audit stamping"},
				},
				Action: runIngest,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// connect loads configuration, opens the database pool and applies migrations.
func connect(ctx context.Context) (config.Config, *pgxpool.Pool, error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return cfg, nil, fmt.Errorf("DATABASE_URL is required")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return cfg, nil, fmt.Errorf("connecting to database: %w", err)
	}

	migrationsSub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		pool.Close()
		return cfg, nil, fmt.Errorf("creating migrations sub-fs: %w", err)
	}
	if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
		pool.Close()
		return cfg, nil, fmt.Errorf("running migrations: %w", err)
	}

	return cfg, pool, nil
}

func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.NewPgStore(pool)
	engine := billing.NewEngine(st, cfg.BaseCurrency, cfg.ExchangeRate)

	var hooks []ingest.UploadHook
	if cfg.ExportSpreadsheetID != "" && cfg.GoogleCredentials != "" {
		writer, err := export.NewSheetsWriter(ctx, cfg.ExportSpreadsheetID, cfg.GoogleCredentials)
		if err != nil {
			return fmt.Errorf("creating sheets writer: %w", err)
		}
		exporter := export.NewExporter(st, engine, writer)
		hooks = append(hooks, exporter)
		slog.Info("summary export enabled", "spreadsheet", cfg.ExportSpreadsheetID)

		if cfg.ExportInterval > 0 {
			go worker.NewExportWorker(exporter, cfg.ExportInterval).Run(ctx)
		}
	}

	ingestSvc := ingest.NewService(st, sheet.StandardSpecs(), hooks...)

	if cfg.AdminAPIKey == "" {
		slog.Warn("ADMIN_API_KEY not set, upload endpoint is unprotected")
	}

	handler := api.NewHandler(ingestSvc, engine, st)
	srv := api.NewServer(cfg.HTTPPort, handler, cfg.AdminAPIKey)

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}

func runIngest(c *cli.Context) error {
	ctx := c.Context

	_, pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	path := c.String("file")
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading workbook size: %w", err)
	}

	st := store.NewPgStore(pool)
	ingestSvc := ingest.NewService(st, sheet.StandardSpecs())

	meta := ingest.FileMeta{
		Name:        info.Name(),
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Size:        info.Size(),
	}

	rec, err := ingestSvc.Upload(ctx, meta, f, c.String("user"))
	if err != nil {
		return fmt.Errorf("ingesting workbook: %w", err)
	}

	fmt.Printf("upload %s: %s\n%s\n", rec.UploadID, rec.Status, rec.Result)
	if rec.Status == domain.StatusFailed {
		return cli.Exit("upload failed", 1)
	}
	return nil
}
