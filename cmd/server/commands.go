package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/warp/brokerage-engine/api"
	"github.com/warp/brokerage-engine/config"
	"github.com/warp/brokerage-engine/engine"
	"github.com/warp/brokerage-engine/events"
	"github.com/warp/brokerage-engine/store/sqlite"
)

// app is what every command needs: settings, a logger and an open store.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *sqlite.Store
}

func setup(configPath string, serve bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	validate := cfg.Validate
	if serve {
		validate = cfg.ValidateServe
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := cfg.Log.NewLogger(os.Stderr)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &app{cfg: cfg, log: log, store: store}, nil
}

func (a *app) engine(dispatcher engine.CommissionDispatcher) *engine.Engine {
	return engine.New(a.store, engine.Options{
		ReminderDays: a.cfg.Engine.ReminderLeadDays,
		Dispatcher:   dispatcher,
		Log:          a.log,
	})
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath, true)
			if err != nil {
				return err
			}
			defer a.store.Close()
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With NATS configured, completions are published and consumed by a
	// queue group; otherwise they run on an in-process goroutine.
	var (
		nc         *nats.Conn
		dispatcher engine.CommissionDispatcher
	)
	if a.cfg.NATS.URL != "" {
		conn, err := events.Connect(a.cfg.NATS, a.log)
		if err != nil {
			return err
		}
		nc = conn
		defer nc.Close()
		dispatcher = events.NewPublisher(nc, a.cfg.NATS.Subject, a.log)
	}

	eng := a.engine(dispatcher)

	consumerDone := make(chan error, 1)
	if nc != nil {
		sub := events.NewSubscriber(nc, a.cfg.NATS, eng.Commissions, a.log)
		go func() { consumerDone <- sub.Start(ctx) }()
	} else {
		close(consumerDone)
	}

	scheduler := api.NewJobScheduler(eng, a.cfg.Scheduler, a.log)
	scheduler.Start()

	handler := api.NewHandler(eng, a.log.With().Str("component", "api").Logger())
	auth := api.NewAuthenticator(a.cfg.JWT.Secret, a.cfg.JWT.Issuer)
	router := api.NewRouter(handler, auth, a.cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         a.cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			scheduler.Stop()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	a.log.Info().Msg("shutting down")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("server forced to shutdown")
	}
	eng.Wait()

	if err := <-consumerDone; err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error().Err(err).Msg("consumer stopped with error")
	}

	a.log.Info().Msg("server stopped")
	return nil
}

func backfillCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-commissions",
		Short: "Generate commissions missing for completed payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath, false)
			if err != nil {
				return err
			}
			defer a.store.Close()

			eng := a.engine(nil)
			return engine.RunAsTenant(cmd.Context(), engine.Superuser, func(ctx context.Context) error {
				report, err := eng.Commissions.GenerateMissingForHistory(ctx)
				if err != nil {
					return err
				}
				for _, f := range report.Failures {
					a.log.Warn().Str("payment_id", string(f.PaymentID)).Err(f.Err).Msg("payment not processed")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d errors=%d\n",
					report.Created, report.Skipped, report.Errors)
				return nil
			})
		},
	}
}

func generateRenewalsCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "generate-renewals",
		Short: "Create pending renewals for policies ending soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath, false)
			if err != nil {
				return err
			}
			defer a.store.Close()

			if !cmd.Flags().Changed("days") {
				days = a.cfg.Scheduler.RenewalDaysAhead
			}

			eng := a.engine(nil)
			return engine.RunAsTenant(cmd.Context(), engine.Superuser, func(ctx context.Context) error {
				report, err := eng.Renewals.GenerateRenewals(ctx, days)
				if err != nil {
					return err
				}
				for _, r := range report.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.ID, r.PolicyID, r.OriginalEndDate)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created=%d skipped=%d errors=%d\n",
					len(report.Created), report.Skipped, report.Errors)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 60, "look-ahead window in days")
	return cmd
}

func seedCmd(configPath *string) *cobra.Command {
	var (
		company  string
		scenario string
		list     bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo scenario into one company",
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				for _, s := range api.Scenarios() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-18s %s\n", s.ID, s.Description)
				}
				return nil
			}
			if company == "" {
				return errors.New("--company is required")
			}

			a, err := setup(*configPath, false)
			if err != nil {
				return err
			}
			defer a.store.Close()

			eng := a.engine(nil)
			defer eng.Wait()
			return engine.RunAsTenant(cmd.Context(), engine.Tenant{CompanyID: company}, func(ctx context.Context) error {
				result, err := api.LoadScenario(ctx, eng, scenario, engine.Today())
				if err != nil {
					return err
				}
				for _, p := range result.Policies {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.ID, p.PolicyNumber)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "policies=%d payments=%d renewals=%d\n",
					len(result.Policies), result.Payments, result.Renewals)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "company to load the scenario into")
	cmd.Flags().StringVar(&scenario, "scenario", "monthly-auto", "scenario id")
	cmd.Flags().BoolVar(&list, "list", false, "list scenarios and exit")
	return cmd
}
