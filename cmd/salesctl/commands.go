package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/shellsale/internal/bootstrap"
	"github.com/mamadbah2/shellsale/internal/config"
	"github.com/mamadbah2/shellsale/internal/domain/models"
	"github.com/mamadbah2/shellsale/internal/repository"
	documentsvc "github.com/mamadbah2/shellsale/internal/service/documents"
	reportingsvc "github.com/mamadbah2/shellsale/internal/service/reporting"
	salessvc "github.com/mamadbah2/shellsale/internal/service/sales"
	"github.com/mamadbah2/shellsale/pkg/logger"
)

type eventDispatcher interface {
	Dispatch(ctx context.Context, events ...models.Event) error
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  repository.Store
	sales  *salessvc.Service
	events eventDispatcher

	closers []func()
}

// openFunc opens the backends for one command run. Tests replace it to inject an
// in-memory store.
type openFunc func(ctx context.Context, envFile string) (*app, error)

func openApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return &app{
		cfg:    cfg,
		logger: log,
		store:  store,
		sales:  salessvc.NewService(store, nil, log.Named("svc.sales")),
	}, nil
}

// dispatcher opens the configured event sinks on first use.
func (a *app) dispatcher(ctx context.Context) (eventDispatcher, error) {
	if a.events != nil {
		return a.events, nil
	}
	in, err := bootstrap.OpenIntegrations(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, in.Close)
	a.events = in.Dispatcher(a.cfg.Events)
	return a.events, nil
}

// publish delivers the events of a committed change. Failures are logged only.
func (a *app) publish(ctx context.Context, events []models.Event) {
	d, err := a.dispatcher(ctx)
	if err != nil {
		a.logger.Warn("event sinks unavailable, events not delivered", zap.Error(err))
		return
	}
	if err := d.Dispatch(ctx, events...); err != nil {
		a.logger.Warn("event dispatch incomplete", zap.Error(err))
	}
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openApp)
}

func newRootCmdWith(open openFunc) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "salesctl",
		Short:         "Operate the shellfish sales engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	withApp := func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd.Context(), envFile)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(cmd.Context()))
			return fn(cmd, a, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the schema of the configured store",
			Args:  cobra.NoArgs,
			RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s store ready\n", a.cfg.Store.Driver)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "seed <catalog.json>",
			Short: "Upsert sizes, baskets and operations from a catalog file",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				catalog, err := bootstrap.LoadCatalog(args[0])
				if err != nil {
					return err
				}
				if err := a.store.SeedCatalog(cmd.Context(), catalog); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d sizes, %d baskets, %d operations\n",
					len(catalog.Sizes), len(catalog.Baskets), len(catalog.Operations))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "get <sale-id>",
			Short: "Print a sale with its bags and claims",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				detail, err := a.sales.GetSale(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), detail)
			}),
		},
		newListCmd(withApp),
		newDigestCmd(withApp),
		&cobra.Command{
			Use:   "export <sale-id>",
			Short: "Store the delivery document of a confirmed sale",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				archive, err := bootstrap.OpenBlobStore(cmd.Context(), a.cfg.Documents)
				if err != nil {
					return err
				}
				exporter := documentsvc.NewExporter(a.sales, archive, nil, a.cfg.Documents.Prefix, a.logger.Named("svc.documents"))
				res, err := exporter.Export(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Sale.DocumentPath)
				a.publish(context.WithoutCancel(cmd.Context()), res.Events)
				return nil
			}),
		},
	)

	return root
}

type appRunner func(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

func newListCmd(withApp appRunner) *cobra.Command {
	var (
		status   string
		from, to string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			filter := models.SaleFilter{DateFrom: from, DateTo: to, Page: page, PageSize: pageSize}
			if status != "" {
				st, err := models.ParseSaleStatus(status)
				if err != nil {
					return err
				}
				filter.Status = &st
			}
			sales, pagination, err := a.sales.ListSales(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"sales": sales, "pagination": pagination})
		}),
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (draft, confirmed, completed)")
	cmd.Flags().StringVar(&from, "from", "", "earliest sale date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "latest sale date, YYYY-MM-DD")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "sales per page")
	return cmd
}

func newDigestCmd(withApp appRunner) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print the weekly sales digest",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			loc, err := time.LoadLocation(a.cfg.Reporting.Timezone)
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			if at != "" {
				if now, err = time.ParseInLocation(time.DateOnly, at, loc); err != nil {
					return fmt.Errorf("invalid --at date %q: %w", at, err)
				}
			}
			report, err := reportingsvc.NewService(a.sales, loc, a.logger.Named("svc.reporting")).GenerateWeeklyReport(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report)
			return nil
		}),
	}
	cmd.Flags().StringVar(&at, "at", "", "last day of the week to report, YYYY-MM-DD (default today)")
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: sale id must be a positive integer, got %q", models.ErrValidation, raw)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
