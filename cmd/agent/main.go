package main

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/volaticloud/fleetwatch/internal/agent/avs"
	"github.com/volaticloud/fleetwatch/internal/agent/discovery"
	"github.com/volaticloud/fleetwatch/internal/agent/dispatch"
	"github.com/volaticloud/fleetwatch/internal/agent/logtail"
	"github.com/volaticloud/fleetwatch/internal/agent/metrics"
	"github.com/volaticloud/fleetwatch/internal/agent/router"
	"github.com/volaticloud/fleetwatch/internal/classify"
	"github.com/volaticloud/fleetwatch/internal/config"
	"github.com/volaticloud/fleetwatch/internal/logger"
	"github.com/volaticloud/fleetwatch/internal/signer"
)

// Exit codes per spec.md §6.
const (
	exitOK             = 0
	exitConfigError    = 1
	exitIdentityError  = 2
	exitTransportError = 3
)

func main() {
	config.LoadDotEnv()

	app := &cli.App{
		Name:    "fleetwatch-agent",
		Usage:   "FleetWatch agent - discovers AVS node containers, tails logs and metrics, streams signed telemetry to ingress",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "transport-url",
				Usage:    "Websocket URL of the ingress agent endpoint",
				EnvVars:  []string{"AGENT_TRANSPORT_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "identity-keyfile",
				Usage:   "Path to the hex-encoded machine identity private key",
				EnvVars: []string{"AGENT_IDENTITY_KEYFILE"},
			},
			&cli.StringFlag{
				Name:    "machine-id-file",
				Usage:   "Path where this agent's generated-once MachineID is persisted",
				Value:   "./data/machine_id",
				EnvVars: []string{"AGENT_MACHINE_ID_FILE"},
			},
			&cli.DurationFlag{
				Name:  "scrape-interval",
				Value: config.DurationSecsEnv("AGENT_SCRAPE_INTERVAL_SECS", config.DefaultAgentScrapeInterval),
			},
		},
		Action: runAgent,
	}

	if err := app.Run(os.Args); err != nil {
		log.Print(err)
		os.Exit(exitConfigError)
	}
}

func runAgent(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, zlog := logger.PrepareLogger(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		zlog.Info("agent: shutdown signal received")
		cancel()
	}()

	keyfile := c.String("identity-keyfile")
	if keyfile == "" {
		zlog.Error("agent: AGENT_IDENTITY_KEYFILE is required")
		os.Exit(exitConfigError)
	}
	sign, err := signer.LoadFromFile(keyfile)
	if err != nil {
		zlog.Error("agent: loading identity key", zap.Error(err))
		os.Exit(exitIdentityError)
	}

	machineID, err := config.LoadOrCreateMachineID(c.String("machine-id-file"))
	if err != nil {
		zlog.Error("agent: loading machine id", zap.Error(err))
		os.Exit(exitConfigError)
	}

	source, err := discovery.NewDockerSource()
	if err != nil {
		zlog.Error("agent: connecting to container runtime", zap.Error(err))
		os.Exit(exitConfigError)
	}

	actor := dispatch.New()

	logManager := logtail.NewManager(source, actor, sign, machineID)
	scraper := metrics.NewScraper(actor, sign, machineID)
	go scraper.Run(ctx)

	catalog := classify.NewStaticCatalog()
	ports := avs.NewStaticPortResolver()
	evtRouter := router.New(source, catalog, logManager, scraper, actor, sign, machineID, ports)

	conn, err := dialIngress(c.String("transport-url"))
	if err != nil {
		zlog.Error("agent: connecting to ingress", zap.Error(err))
		os.Exit(exitTransportError)
	}
	defer conn.Close()

	go actor.Run(ctx, conn)

	zlog.Info("agent: ready", zap.String("machine_id", machineID.String()))
	if err := evtRouter.Run(ctx); err != nil {
		zlog.Error("agent: event router stopped", zap.Error(err))
		return err
	}

	<-ctx.Done()
	zlog.Info("agent: shut down")
	return nil
}

func dialIngress(rawURL string) (*websocket.Conn, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("agent: invalid transport url: %w", err)
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: dialing ingress: %w", err)
	}
	return conn, nil
}
