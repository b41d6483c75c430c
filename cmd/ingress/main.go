package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/alert"
	"github.com/volaticloud/fleetwatch/internal/alert/channel"
	"github.com/volaticloud/fleetwatch/internal/config"
	"github.com/volaticloud/fleetwatch/internal/coordinate"
	"github.com/volaticloud/fleetwatch/internal/heartbeat"
	"github.com/volaticloud/fleetwatch/internal/ingress"
	"github.com/volaticloud/fleetwatch/internal/ingress/store"
	"github.com/volaticloud/fleetwatch/internal/ingress/transport"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/pubsub"
)

func main() {
	config.LoadDotEnv()

	app := &cli.App{
		Name:    "fleetwatch-ingress",
		Usage:   "FleetWatch ingress - validates signed telemetry, raises alerts, tracks heartbeats",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "Start the ingress server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "host",
						Value:   "0.0.0.0",
						EnvVars: []string{"INGRESS_HOST"},
					},
					&cli.IntFlag{
						Name:    "port",
						Value:   8090,
						EnvVars: []string{"INGRESS_PORT"},
					},
					&cli.StringFlag{
						Name:    "database",
						Usage:   "Database connection string (sqlite://path/to/db.sqlite or postgresql://...)",
						Value:   "sqlite://./data/fleetwatch.db",
						EnvVars: []string{"INGRESS_DATABASE"},
					},
					&cli.StringSliceFlag{
						Name:    "etcd-endpoints",
						Usage:   "Etcd endpoints for sharding the heartbeat scanner across replicas. If empty, runs single-instance",
						EnvVars: []string{"INGRESS_ETCD_ENDPOINTS"},
					},
					&cli.StringFlag{
						Name:    "redis-addr",
						Usage:   "Redis address for alert-event pub/sub. If empty, uses an in-process pub/sub",
						EnvVars: []string{"INGRESS_REDIS_ADDR"},
					},
					&cli.StringFlag{
						Name:    "sendgrid-api-key",
						EnvVars: []string{"INGRESS_SENDGRID_API_KEY"},
					},
					&cli.StringFlag{
						Name:    "sendgrid-from-email",
						EnvVars: []string{"INGRESS_SENDGRID_FROM_EMAIL"},
					},
					&cli.StringFlag{
						Name:    "sendgrid-from-name",
						Value:   "FleetWatch",
						EnvVars: []string{"INGRESS_SENDGRID_FROM_NAME"},
					},
					&cli.DurationFlag{
						Name:  "heartbeat-scan-interval",
						Value: config.DurationSecsEnv("HEARTBEAT_SCAN_INTERVAL_SECS", config.DefaultHeartbeatScanInterval),
					},
				},
				Action: runServer,
			},
			{
				Name:  "migrate",
				Usage: "Apply the ingress database schema",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "database",
						Value:   "sqlite://./data/fleetwatch.db",
						EnvVars: []string{"INGRESS_DATABASE"},
					},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runMigrate(c *cli.Context) error {
	db, err := store.Open(c.String("database"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("ingress: applying store schema: %w", err)
	}
	if err := heartbeat.Migrate(db); err != nil {
		return fmt.Errorf("ingress: applying heartbeat schema: %w", err)
	}
	log.Println("migrations applied")
	return nil
}

func runServer(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, log := logger.PrepareLogger(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("ingress: shutdown signal received")
		cancel()
	}()

	db, err := store.Open(c.String("database"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("ingress: applying store schema: %w", err)
	}
	if err := heartbeat.Migrate(db); err != nil {
		return fmt.Errorf("ingress: applying heartbeat schema: %w", err)
	}

	machineStore := store.New(db)
	alertStore := alert.NewStore(db)
	hbStore := heartbeat.NewStore(db)

	publisher := buildPublisher(c.String("redis-addr"))
	dispatcher := alert.NewDispatcher(machineStore, buildChannels(c)...).WithPublisher(publisher)

	instanceID := uuid.NewString()
	sharder := coordinate.NewSharder(instanceID)
	if endpoints := c.StringSlice("etcd-endpoints"); len(endpoints) > 0 {
		etcdClient, err := coordinate.NewEtcdClient(coordinate.EtcdConfig{Endpoints: endpoints})
		if err != nil {
			return fmt.Errorf("ingress: connecting to etcd: %w", err)
		}
		registry := coordinate.NewRegistry(etcdClient, instanceID)
		if err := registry.Start(ctx); err != nil {
			return fmt.Errorf("ingress: registering with etcd: %w", err)
		}
		if err := sharder.Watch(ctx, registry); err != nil {
			return fmt.Errorf("ingress: watching etcd replica set: %w", err)
		}
		log.Info("ingress: heartbeat scanning distributed across replicas", zap.String("instance_id", instanceID))
	} else {
		log.Info("ingress: heartbeat scanning single-instance", zap.String("instance_id", instanceID))
	}

	notifier := heartbeat.DispatchNotifier{Dispatcher: dispatcher}
	tracker := heartbeat.NewTracker(hbStore, alertStore, notifier).WithPublisher(publisher)
	scanner := heartbeat.NewScanner(hbStore, alertStore, notifier, sharder).
		WithInterval(c.Duration("heartbeat-scan-interval")).
		WithPublisher(publisher)
	go scanner.Run(ctx)

	router := ingress.New(machineStore, machineStore, machineStore, tracker)

	mux := http.NewServeMux()
	mux.HandleFunc("/agent", func(w http.ResponseWriter, r *http.Request) {
		if err := transport.ServeAgentConn(r.Context(), w, r, router.Handle); err != nil {
			log.Warn("ingress: agent connection closed", zap.Error(err))
		}
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%d", c.String("host"), c.Int("port"))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ingress: server error", zap.Error(err))
		}
	}()
	log.Info("ingress: ready", zap.String("addr", addr))

	<-ctx.Done()
	log.Info("ingress: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func buildPublisher(redisAddr string) alert.Publisher {
	if redisAddr == "" {
		return pubsub.NewMemoryPubSub()
	}
	return pubsub.NewRedisPubSub(redis.NewClient(&redis.Options{Addr: redisAddr}))
}

func buildChannels(c *cli.Context) []channel.Channel {
	channels := []channel.Channel{channel.NewChatChannel(), channel.NewIncidentChannel()}
	if apiKey := c.String("sendgrid-api-key"); apiKey != "" {
		emailChannel, err := channel.NewEmailChannel(channel.EmailConfig{
			APIKey:    apiKey,
			FromEmail: c.String("sendgrid-from-email"),
			FromName:  c.String("sendgrid-from-name"),
		})
		if err == nil {
			channels = append(channels, emailChannel)
		}
	}
	return channels
}
