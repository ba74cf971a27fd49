package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/venue-ticketing/internal/booking"
	"github.com/iliyamo/venue-ticketing/internal/config"
	"github.com/iliyamo/venue-ticketing/internal/database"
	"github.com/iliyamo/venue-ticketing/internal/gate"
	"github.com/iliyamo/venue-ticketing/internal/handler"
	"github.com/iliyamo/venue-ticketing/internal/middleware"
	"github.com/iliyamo/venue-ticketing/internal/model"
	"github.com/iliyamo/venue-ticketing/internal/notify"
	"github.com/iliyamo/venue-ticketing/internal/queue"
	"github.com/iliyamo/venue-ticketing/internal/repository"
	"github.com/iliyamo/venue-ticketing/internal/reservation"
	"github.com/iliyamo/venue-ticketing/internal/router"
	"github.com/iliyamo/venue-ticketing/internal/ticket"
)

func main() {
	logger := log.New("server")
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warnf("failed to read .env: %v", err)
	}
	cfg := config.Load() // Load environment config
	loc := cfg.Location()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if cfg.Migrate {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := database.Migrate(mctx, db)
		cancel()
		if err != nil {
			logger.Fatalf("failed to apply schema: %v", err)
		}
	}

	slotRepo := repository.NewSlotRepo(db, cfg.StoreTimeout)
	bookingRepo := repository.NewBookingRepo(db, cfg.StoreTimeout)
	ticketRepo := repository.NewTicketRepo(db, cfg.StoreTimeout)
	rideRepo := repository.NewRideRepo(db, cfg.StoreTimeout)
	membershipRepo := repository.NewMembershipRepo(db, cfg.StoreTimeout)
	gateLogRepo := repository.NewGateLogRepo(db, cfg.StoreTimeout)
	notificationRepo := repository.NewNotificationLogRepo(db, cfg.StoreTimeout)

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()
	purger := middleware.NewPurger(cacheCfg, rdb)

	defaultChannel := model.Channel(cfg.Notify.DefaultChannel)
	publisher := queue.NewPublisher(cfg.AMQPURL, defaultChannel)
	defer publisher.Close()

	dispatcher := notify.NewDispatcher(senders(cfg.Notify, logger), notificationRepo, notify.NewTemplates(cfg.Notify.Templates))

	slots := reservation.NewManager(slotRepo, cfg.SlotLabels, loc)
	bookings := booking.NewService(bookingRepo, slots, membershipRepo, publisher, cfg.Pricing.Rates())
	tickets := ticket.NewService(ticketRepo, rideRepo, membershipRepo, publisher, cfg.Pricing.Rates(), loc)
	gates := gate.NewController(ticketRepo, gateLogRepo, cfg.AllowReentry, loc)

	sweeper, err := ticket.NewSweeper(tickets, loc)
	if err != nil {
		logger.Fatalf("failed to schedule expiry sweep: %v", err)
	}
	sweeper.Start()

	if cfg.Notify.ConsumerEnabled {
		consumer := queue.NewConsumer(cfg.AMQPURL, dispatcher, defaultChannel)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("event consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Logger.SetPrefix("http")
	e.Validator = handler.NewValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())

	router.Register(e, router.Handlers{
		Health:        handler.Health(db),
		Slots:         handler.NewSlotHandler(slots, bookings, purger),
		Bookings:      handler.NewBookingHandler(bookings, purger),
		Tickets:       handler.NewTicketHandler(tickets),
		Gate:          handler.NewGateHandler(gates),
		Notifications: handler.NewNotificationHandler(dispatcher, notificationRepo, defaultChannel),
		Memberships:   handler.NewMembershipHandler(membershipRepo, loc),
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     cacheCfg,
	})

	addr := ":" + cfg.Port                                 // Address string with port
	logger.Infof("listening on %s (env=%s)", addr, cfg.Env) // Print startup info
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	if err := sweeper.Stop(); err != nil {
		logger.Errorf("sweeper shutdown: %v", err)
	}
}

// senders builds one Sender per channel.  A channel without a gateway URL
// logs its messages instead, which keeps development setups usable.
func senders(n config.Notify, logger *log.Logger) map[model.Channel]notify.Sender {
	out := map[model.Channel]notify.Sender{
		model.ChannelSMS:      notify.LogSender{Channel: string(model.ChannelSMS), Logger: logger},
		model.ChannelWhatsApp: notify.LogSender{Channel: string(model.ChannelWhatsApp), Logger: logger},
	}
	if n.SMSURL != "" {
		out[model.ChannelSMS] = notify.NewSMSSender(n.SMSURL, n.SMSToken, n.SMSSender, n.Timeout, n.PerSecond, n.Burst)
	} else {
		logger.Warn("SMS_API_URL not set; SMS messages are logged, not sent")
	}
	if n.WhatsAppURL != "" {
		out[model.ChannelWhatsApp] = notify.NewWhatsAppSender(n.WhatsAppURL, n.WhatsAppToken, n.Timeout, n.PerSecond, n.Burst)
	} else {
		logger.Warn("WHATSAPP_API_URL not set; WhatsApp messages are logged, not sent")
	}
	return out
}
