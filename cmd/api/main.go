package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eamaze/shopcore/internal/cart"
	"github.com/eamaze/shopcore/internal/checkout"
	"github.com/eamaze/shopcore/internal/config"
	"github.com/eamaze/shopcore/internal/credit"
	"github.com/eamaze/shopcore/internal/fulfillment"
	"github.com/eamaze/shopcore/internal/giveaway"
	"github.com/eamaze/shopcore/internal/httpx"
	kafkax "github.com/eamaze/shopcore/internal/kafka"
	"github.com/eamaze/shopcore/internal/payment"
	"github.com/eamaze/shopcore/internal/postgres"
	"github.com/eamaze/shopcore/internal/redisx"
	"github.com/eamaze/shopcore/internal/shop"
	"github.com/eamaze/shopcore/internal/ticket"
	"github.com/eamaze/shopcore/internal/tier"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Setup(ctx, db); err != nil {
		log.Fatalf("db setup: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for notifications
	prod := kafkax.NewProducer(cfg.KafkaBrokers, shop.TopicNotifications, 1024)
	prod.Start(ctx)
	sink := &shop.KafkaNotifier{Producer: prod, Service: cfg.ServiceName}

	// Repos & services
	items := &shop.ItemRepo{DB: db}
	orders := &shop.OrderRepo{DB: db}
	ledger := &shop.Ledger{DB: db}
	cartRepo := &cart.Repo{DB: db}
	creditRepo := &credit.Repo{DB: db}
	tierRepo := &tier.Repo{DB: db}
	eval := &tier.Evaluator{Repo: tierRepo, Sink: sink}

	paypal := payment.NewClient(cfg.PayPalBaseURL, cfg.PayPalClientID, cfg.PayPalClientSecret)
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
	ful := &fulfillment.Service{DB: db, Ledger: ledger, Tiers: eval, Sink: sink}
	pay := &payment.Service{DB: db, Orders: orders, Client: paypal, Redis: rdb, Sink: sink, Dispatcher: ful}

	tickets := &ticket.Manager{DB: db, Sink: sink, PurgeDelay: cfg.TicketPurgeDelay}
	ga := &giveaway.Scheduler{DB: db, Sink: sink, Cycle: cfg.GiveawayCycle, PrizeCents: cfg.GiveawayPrizeCents}

	// Handlers
	router := httpx.NewRouter()
	(&httpx.ItemsHandler{Items: items, Sink: sink}).Register(router)
	(&httpx.CartHandler{Cart: cartRepo}).Register(router)
	(&httpx.OrdersHandler{Checkout: co, Payments: pay, Fulfillment: ful, Orders: orders, Redis: rdb}).Register(router)
	(&httpx.CommunityHandler{Tickets: tickets, Giveaway: ga, Credit: creditRepo, Tiers: tierRepo, Eval: eval}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // close inbox, flush pending writes
	prod.WaitClosed() // drain before the context dies
	cancel()
}
