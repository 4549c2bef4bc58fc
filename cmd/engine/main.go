package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/telebot.v3"

	"tutor_booking_engine/internal/app"
	"tutor_booking_engine/internal/domain/notification"
	"tutor_booking_engine/internal/domain/payout"
	"tutor_booking_engine/internal/domain/store"
	"tutor_booking_engine/internal/infra/config"
	idb "tutor_booking_engine/internal/infra/database"
	"tutor_booking_engine/internal/infra/gateway"
	"tutor_booking_engine/internal/infra/httpapi"
	"tutor_booking_engine/internal/infra/logger"
	"tutor_booking_engine/internal/infra/mail"
	"tutor_booking_engine/internal/infra/memory"
	"tutor_booking_engine/internal/infra/mq"
	"tutor_booking_engine/internal/infra/notify"
	"tutor_booking_engine/internal/infra/scheduler"
	"tutor_booking_engine/internal/infra/telegram"
)

const (
	sweepTimeout    = 5 * time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component(cfg, "engine")
	mainLogger.WithFields(logrus.Fields{
		"log_level":    cfg.LogLevel,
		"store_driver": cfg.StoreDriver,
		"http_addr":    cfg.HTTPAddr,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "migrate":
		err = migrate(ctx, cfg, mainLogger)
	case "serve":
		err = serve(ctx, cfg, mainLogger)
	default:
		err = fmt.Errorf("unknown command %q, expected migrate or serve", command)
	}
	if err != nil {
		mainLogger.WithError(err).Fatal("Engine stopped with error")
	}
	mainLogger.Info("Engine shut down gracefully")
}

func migrate(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Info("Memory store needs no migrations")
		return nil
	}
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}
	defer db.Close()
	return idb.Migrate(ctx, db, log)
}

func openStore(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (store.Store, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Warn("Using in-memory store, state is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("Database connection established")
	return idb.NewStore(db), func() { closeDB(db, log) }, nil
}

func closeDB(db *sql.DB, log *logrus.Entry) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("Closing database")
	}
}

func newGateway(cfg *config.AppConfig, log *logrus.Entry) (payout.Gateway, error) {
	if cfg.OmiseSecretKey == "" {
		log.Warn("No Omise keys configured, payouts use the dev gateway")
		return gateway.NewDev(log), nil
	}
	client, err := gateway.NewOmiseClient(cfg.OmisePublicKey, cfg.OmiseSecretKey)
	if err != nil {
		return nil, err
	}
	return gateway.NewOmise(client), nil
}

func serve(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) error {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var bot *telebot.Bot
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := log.WithError(err).WithField("component", "telebot")
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
	}

	var senders []notification.Sender
	if bot != nil {
		senders = append(senders, telegram.NewSender(bot))
	}
	if cfg.SMTPHost != "" {
		senders = append(senders, mail.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom))
	}
	if cfg.RabbitURL != "" {
		publisher, err := mq.NewPublisher(cfg.RabbitURL, cfg.NotifyExchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		senders = append(senders, publisher)
	}
	if len(senders) == 0 {
		senders = append(senders, notify.NewLogSender(log))
	}
	sender := notify.NewFanOut(log, senders...)
	log.WithField("channels", sender.Name()).Info("Notification channels configured")

	gw, err := newGateway(cfg, log)
	if err != nil {
		return err
	}

	policy := cfg.Policy()
	escrowService := app.NewEscrowService(st, policy, log)
	bookingService := app.NewBookingService(st, policy, log)
	accountService := app.NewAccountService(st, log)
	payoutService := app.NewPayoutService(st, gw, policy, log)
	sweeps := app.NewSweeps(
		app.NewNoShowService(st, escrowService, policy, log),
		app.NewReminderService(st, policy, log),
		app.NewCompletionService(st, policy, log),
		escrowService,
		payoutService,
		app.NewNotificationRelay(st, sender, policy, log),
	)
	availabilityService := app.NewAvailabilityService(st, log)
	bookingAPI := httpapi.NewBookingAPI(bookingService, escrowService, availabilityService, payoutService, log)
	adminService := app.NewAdminService(st, payoutService, escrowService, sweeps, cfg.AdminTelegramID)

	sweepScheduler := scheduler.NewSweepScheduler(sweeps, cfg.CronSpecs(), sweepTimeout, log)
	if err := sweepScheduler.Start(); err != nil {
		return err
	}
	defer sweepScheduler.Stop()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(sweeps, log), logger.Log, bookingAPI),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP trigger surface listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if bot != nil {
		telegram.RegisterBotCommands(gctx, bot, cfg.AdminTelegramID, accountService, sweeps.Names(), log)
		telegram.RegisterAdminHandlers(gctx, bot, adminService, cfg.AdminTelegramID, log)
		telegram.RegisterRescheduleHandlers(gctx, bot, accountService, bookingService, log)
		g.Go(func() error {
			log.Info("Telegram bot polling")
			bot.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			bot.Stop()
			return nil
		})
	}

	log.Info("Application setup complete")
	return g.Wait()
}
