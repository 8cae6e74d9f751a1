package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-ecommerce-orders/internal/auth"
	"github.com/ariefcatur/go-ecommerce-orders/internal/catalog"
	"github.com/ariefcatur/go-ecommerce-orders/internal/config"
	"github.com/ariefcatur/go-ecommerce-orders/internal/httpx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-ecommerce-orders/internal/kafka"
	"github.com/ariefcatur/go-ecommerce-orders/internal/logx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/memstore"
	"github.com/ariefcatur/go-ecommerce-orders/internal/orders"
	"github.com/ariefcatur/go-ecommerce-orders/internal/postgres"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/tracing"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := &cli.App{
		Name:  "orders-api",
		Usage: "order management HTTP API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrateDB,
			},
			{
				Name:  "create-admin",
				Usage: "create an ADMIN account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Value: "Administrator"},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"ADMIN_PASSWORD"}},
				},
				Action: createAdmin,
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("orders-api")
	}
}

// stores is the storage backend chosen by STORE.
type stores interface {
	orders.UserStore
	orders.OrderStore
	orders.TxManager
	auth.UserStore
	catalog.Store
}

func openStores(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (stores, func(), error) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, errors.Wrap(err, "db connect")
	}
	return postgres.NewStore(db), db.Close, nil
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return errors.Wrap(err, "tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, closeStore, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer; its loop stops when prodCtx is cancelled after the server drains.
	prodCtx, stopProducer := context.WithCancel(context.Background())
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	prod.Start(prodCtx)

	gate := auth.NewService(st, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), log)
	api := &httpx.API{
		Auth:    gate,
		Catalog: catalog.NewService(st, st, log),
		Orders: orders.NewService(st, st, st, inventory.NewEngine(log),
			orders.WithPublisher(kafkax.NewOrderEvents(prod, log), cfg.ServiceName),
			orders.WithLogger(log),
		),
		Idem:   redisx.NewIdempotency(rdb),
		Status: redisx.NewStatusCache(rdb),
		Log:    log,
	}
	router := httpx.NewRouter(log)
	api.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		stopProducer()
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}

func migrateDB(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func createAdmin(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logx.New(cfg.ServiceName, cfg.LogLevel)
	if cfg.Store == config.StoreMemory {
		return errors.New("create-admin needs STORE=postgres")
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}
	st, closeStore, err := openStores(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	gate := auth.NewService(st, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL), log)
	u, err := gate.CreateUser(c.Context, auth.RegisterInput{
		Name:     c.String("name"),
		Email:    c.String("email"),
		Password: c.String("password"),
	}, orders.RoleAdmin)
	if err != nil {
		return err
	}
	log.WithField("user_id", u.ID).Info("admin created")
	return nil
}
