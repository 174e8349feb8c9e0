package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"biztrack/internal/events"
	"biztrack/internal/log"
	"biztrack/internal/watch"
)

const cacheSweepInterval = time.Minute

func watchCmd(s *state) *cobra.Command {
	var (
		addr        string
		receiptFile string
		interval    time.Duration
		rpm         int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Serve status, metrics and live record changes, and keep the subscription in step",
		Long: `watch runs until interrupted. It serves /healthz, /metrics, /status and a
websocket stream of record changes on /events. With --receipt-file it checks
the app store receipt every --interval, and again whenever the file changes,
downgrading the account when the subscription has lapsed. When AMQP_URL is
set, record changes from the broker are relayed to /events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := s.App(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.MetricsAddr
			}
			if interval <= 0 {
				interval = app.Config.SubscriptionInterval
			}
			logger := app.Logger.WithComponent(log.ComponentWatch)

			srv := watch.NewServer(watch.Options{
				Gatherer:          app.Registry,
				Status:            app.Sessions.Current,
				Logger:            app.Logger,
				RequestsPerMinute: rpm,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.ListenAndServe(ctx, addr)
			})
			g.Go(func() error {
				app.Caches.Run(ctx, cacheSweepInterval)
				return nil
			})

			if receiptFile != "" {
				check := receiptFileCheck(app.Subscription, receiptFile)
				app.Subscription.CheckNow(ctx, check)
				g.Go(func() error {
					return app.Subscription.Run(ctx, interval, check)
				})
				g.Go(func() error {
					return watch.WatchFile(ctx, receiptFile, logger, func() {
						app.Subscription.CheckNow(ctx, check)
					})
				})
			}

			if app.Config.AMQPURL != "" {
				g.Go(func() error {
					relayEvents(ctx, app, srv.Hub(), logger)
					return nil
				})
			}

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from BIZTRACK_METRICS_ADDR)")
	cmd.Flags().StringVar(&receiptFile, "receipt-file", "", "App store receipt to keep checking")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Subscription check interval (default from BIZTRACK_SUBSCRIPTION_INTERVAL)")
	cmd.Flags().IntVar(&rpm, "rate-limit", 120, "Requests per minute per client on /status and /events")
	return cmd
}

// relayEvents forwards broker messages to the hub. A broker that cannot be
// reached only disables the relay.
func relayEvents(ctx context.Context, app *App, hub *watch.Hub, logger *log.Logger) {
	consumer, err := app.Consumer()
	if err != nil {
		logger.WarnContext(ctx, "Event relay disabled", log.FieldError, err.Error())
		return
	}
	defer consumer.Close()

	err = consumer.Consume(ctx, func(msg events.RecordChanged) error {
		hub.Broadcast(msg)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WarnContext(ctx, "Event relay stopped", log.FieldError, err.Error())
	}
}
