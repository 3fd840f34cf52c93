package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Skufu/MediDx/internal/audit"
	"github.com/Skufu/MediDx/internal/clinical"
	"github.com/Skufu/MediDx/internal/config"
	"github.com/Skufu/MediDx/internal/diagnosis"
	"github.com/Skufu/MediDx/internal/report"
	"github.com/Skufu/MediDx/internal/server"
	"github.com/Skufu/MediDx/internal/session"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "medidx",
		Short:         "AI-assisted differential diagnosis for clinicians",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(diagnoseCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// newDiagnosisService wires the Gemini model and, when ENABLE_DB is set, the
// Postgres audit recorder. The returned pool is nil when the database is off.
func newDiagnosisService(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*diagnosis.Service, *pgxpool.Pool, error) {
	if err := cfg.RequireGemini(); err != nil {
		return nil, nil, err
	}
	model, err := diagnosis.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, nil, err
	}

	var recorder audit.Recorder = audit.Nop{}
	var pool *pgxpool.Pool
	if cfg.EnableDB {
		pool, err = audit.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		pg := audit.NewPGRecorder(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		recorder = pg
		logger.Info().Msg("connected to database; diagnosis audit enabled")
	}

	return diagnosis.NewService(model, recorder, logger), pool, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	gin.SetMode(cfg.GinMode)
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, pool, err := newDiagnosisService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var db server.HealthChecker
	if pool != nil {
		defer pool.Close()
		db = pool
	}

	store := session.NewStore()
	go sweepSessions(ctx, store, cfg.SessionIdleTimeout, logger)

	router := server.NewRouter(server.Deps{
		Diagnoser:        svc,
		Controller:       session.NewController(svc, cfg.DiagnosisTimeout, logger),
		Sessions:         store,
		PDF:              report.NewPDFWriter(),
		DB:               db,
		Logger:           logger,
		StaticRoot:       server.DetectStaticRoot(),
		CORSOrigins:      cfg.CORSOrigins,
		MaxBodyBytes:     cfg.MaxBodyBytes,
		DiagnosisTimeout: cfg.DiagnosisTimeout,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.DiagnosisTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info().Str("port", cfg.Port).Str("model", cfg.GeminiModel).Msg("server listening")

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

func sweepSessions(ctx context.Context, store *session.Store, maxIdle time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(maxIdle); n > 0 {
				logger.Debug().Int("removed", n).Msg("expired idle sessions")
			}
		}
	}
}

func diagnoseCmd() *cobra.Command {
	var input, document, pdfPath string

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Generate a differential diagnosis for a patient record (JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind report.DocumentKind
			if document != "" {
				k, err := report.ParseDocumentKind(document)
				if err != nil {
					return err
				}
				kind = k
			}

			rec, err := readRecord(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger := newLogger(cfg)

			svc, pool, err := newDiagnosisService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			return runDiagnose(cmd.Context(), cmd.OutOrStdout(), session.NewController(svc, cfg.DiagnosisTimeout, logger), rec, kind, pdfPath)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "Patient record JSON file, - for stdin")
	cmd.Flags().StringVar(&document, "document", "", "Print a document instead of JSON: discharge or referral")
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "Also write the PDF report to this path")
	return cmd
}

func readRecord(stdin io.Reader, path string) (clinical.PatientRecord, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return clinical.PatientRecord{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	rec := clinical.NewPatientRecord()
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return clinical.PatientRecord{}, fmt.Errorf("decode patient record: %w", err)
	}
	if !rec.Sex.Valid() {
		return clinical.PatientRecord{}, fmt.Errorf("sex must be one of Male, Female, Other, got %q", rec.Sex)
	}
	return rec, nil
}

// runDiagnose drives one session through submit and prints the result.
func runDiagnose(ctx context.Context, out io.Writer, ctrl *session.Controller, rec clinical.PatientRecord, kind report.DocumentKind, pdfPath string) error {
	s := session.New()
	defer s.Close()

	if err := s.UpdateRecord(rec); err != nil {
		return err
	}
	snap, err := ctrl.Submit(ctx, s)
	if err != nil {
		return err
	}
	if snap.State == session.StateFailed {
		return errors.New(snap.Error)
	}

	if kind != "" {
		m, err := s.OpenModal(kind)
		if err != nil {
			return err
		}
		fmt.Fprint(out, m.Content)
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]clinical.DiagnosisList{"diagnoses": snap.Diagnoses}); err != nil {
			return err
		}
	}

	if pdfPath == "" {
		return nil
	}
	rec, list, err := s.ReportData()
	if err != nil {
		return err
	}
	f, err := os.Create(pdfPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := report.NewPDFWriter().Write(f, rec, list); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
