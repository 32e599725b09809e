package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/mailroom-go/adapters/memberlist"
	"github.com/codewandler/mailroom-go/adapters/nats"
	promadapter "github.com/codewandler/mailroom-go/adapters/prometheus"
	"github.com/codewandler/mailroom-go/core/app"
	"github.com/codewandler/mailroom-go/core/cluster"
	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
	"github.com/codewandler/mailroom-go/internal/config"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run a cluster member until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file",
				EnvVars: []string{"MAILROOM_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, _ := cfg.SlogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg.Log)

	name := cfg.Node.Name
	if name == "" {
		name = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	log = log.With(slog.String("node", name))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := promadapter.NewAllMetrics(promReg)

	overflow, err := mailbox.ParseOverflow(cfg.Mailbox.Overflow)
	if err != nil {
		return err
	}

	// transport and KV membership share one connection
	connect := nats.ReuseConnection(nats.ConnectWith(cfg.Transport.NATS.URL, nats.ConnectOptions{
		Name:          name,
		Log:           log,
		MaxReconnects: -1,
	}))

	tr, err := newTransport(cfg.Transport, connect, log)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	defer func() { _ = tr.Close() }()

	membership, err := newMembership(ctx, cfg, name, connect, log)
	if err != nil {
		return fmt.Errorf("create membership: %w", err)
	}

	a, err := app.Run(app.Config{
		Context: ctx,
		Log:     log,
		Node: app.NodeConfig{
			Name:       name,
			Peers:      cfg.Node.Peers,
			Transport:  tr,
			Membership: membership,
			Metrics:    m.Cluster,
		},
		Mailbox: app.MailboxConfig{
			Capacity:         cfg.Mailbox.Capacity,
			Overflow:         overflow,
			Metrics:          m.Mailbox,
			SchedulerMetrics: m.Actor,
		},
		Mailroom: mailroom.Options{
			Metrics: m.Mailroom,
		},
	})
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(a.Wait)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsHandler(promReg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func newTransport(cfg config.TransportConfig, connect nats.Connector, log *slog.Logger) (cluster.Transport, error) {
	switch cfg.Kind {
	case config.TransportNATS:
		return nats.NewTransport(nats.TransportConfig{
			Connect:       connect,
			Log:           log,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		})
	default:
		return cluster.NewInMemoryTransport().WithLog(log), nil
	}
}

func newMembership(ctx context.Context, cfg config.Config, name string, connect nats.Connector, log *slog.Logger) (app.MembershipFunc, error) {
	switch cfg.Membership.Kind {
	case config.MembershipMemberlist:
		ml, err := memberlist.New(memberlist.Config{
			Name:           name,
			BindAddr:       cfg.Membership.Memberlist.BindAddr,
			BindPort:       cfg.Membership.Memberlist.BindPort,
			Seeds:          cfg.Membership.Memberlist.Seeds,
			Log:            log,
			ResyncInterval: cfg.Membership.Interval,
		})
		if err != nil {
			return nil, err
		}
		return ml.Run, nil
	case config.MembershipNATSKV:
		kv, err := nats.NewKVMembership(ctx, nats.KVMembershipConfig{
			Connect: connect,
			Log:     log,
			Member:  name,
			Bucket:  cfg.Membership.NATSKV.Bucket,
			TTL:     cfg.Membership.NATSKV.TTL,
		})
		if err != nil {
			return nil, err
		}
		return kv.Run, nil
	default:
		peers := cfg.Node.Peers
		if len(peers) == 0 {
			peers = []string{name}
		}
		return cluster.StaticMembership{Members: peers, Interval: cfg.Membership.Interval, Log: log}.Run, nil
	}
}
