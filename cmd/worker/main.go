package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/checkout"
	"github.com/eamaze/shopcore/internal/config"
	"github.com/eamaze/shopcore/internal/fulfillment"
	"github.com/eamaze/shopcore/internal/giveaway"
	kafkax "github.com/eamaze/shopcore/internal/kafka"
	"github.com/eamaze/shopcore/internal/payment"
	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/eamaze/shopcore/internal/ticket"
	"github.com/eamaze/shopcore/internal/tier"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := postgres.Setup(ctx, db); err != nil {
		log.Fatalf("db setup: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for notifications out of the sweeps
	prod := kafkax.NewProducer(cfg.KafkaBrokers, shop.TopicNotifications, 1024)
	prod.Start(ctx)
	sink := &shop.KafkaNotifier{Producer: prod, Service: cfg.ServiceName + "-worker"}

	// Services the sweeps drive
	items := &shop.ItemRepo{DB: db}
	orders := &shop.OrderRepo{DB: db}
	ledger := &shop.Ledger{DB: db}
	tierRepo := &tier.Repo{DB: db}
	eval := &tier.Evaluator{Repo: tierRepo, Sink: sink}

	paypal := payment.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
	ful := &fulfillment.Service{DB: db, Ledger: ledger, Tiers: eval, Sink: sink}
	pay := &payment.Service{DB: db, Orders: orders, Client: paypal, Redis: rdb, Sink: sink, Dispatcher: ful}
	co := &checkout.Service{
		DB:       db,
		Items:    items,
		Ledger:   ledger,
		Orders:   orders,
		Provider: &payment.Initiator{PayPal: paypal},
		Sink:     sink,
		Redis:    rdb,

		MinimumCents:       cfg.PurchaseMinimumCents,
		ReservationTimeout: cfg.ReservationTimeout,
	}
	tickets := &ticket.Manager{DB: db, Sink: sink, PurgeDelay: cfg.TicketPurgeDelay}
	ga := &giveaway.Scheduler{DB: db, Sink: sink, Cycle: cfg.GiveawayCycle, PrizeCents: cfg.GiveawayPrizeCents}
	reminder := &cart.Reminder{
		Cart:      &cart.Repo{DB: db},
		Items:     items,
		Redis:     rdb,
		Sink:      sink,
		Threshold: cfg.CartInactivityThreshold,
		Interval:  cfg.CartReminderInterval,
	}

	if _, err := ga.EnsureRound(ctx); err != nil {
		log.Printf("giveaway bootstrap: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Captured-payment consumer
	group := getenv("PAYMENT_GROUP", "payment-svc")
	workers := mustAtoi(os.Getenv("PAYMENT_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, shop.TopicPaymentCaptured, workers)
	g.Go(func() error {
		log.Printf("payment consumer started: group=%s topic=%s workers=%d", group, shop.TopicPaymentCaptured, workers)
		return cons.Start(gctx, pay.HandleCaptured)
	})

	g.Go(sweep(gctx, "expire stale orders", cfg.SweepInterval, co.ExpireStale))
	g.Go(sweep(gctx, "poll pending payments", cfg.PaymentPollInterval, pay.PollPending))
	g.Go(sweep(gctx, "purge tickets", cfg.SweepInterval, func(ctx context.Context) error {
		n, err := tickets.PurgeDue(ctx)
		if n > 0 {
			log.Printf("purged %d ticket(s)", n)
		}
		return err
	}))
	g.Go(sweep(gctx, "giveaway rounds", cfg.SweepInterval, ga.SweepDue))
	g.Go(sweep(gctx, "cart reminders", cfg.SweepInterval, reminder.Sweep))

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Println("shutting down worker...")
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Printf("worker exit: %v", err)
	}
	prod.Close()
	prod.WaitClosed()
}

// sweep runs fn every interval until the context ends. A failing pass is
// logged and the ticker keeps going.
func sweep(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) func() error {
	return func() error {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if err := fn(ctx); err != nil {
					log.Printf("sweep %s: %v", name, err)
				}
			}
		}
	}
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
