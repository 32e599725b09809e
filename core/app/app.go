package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/mailroom-go/core/actor"
	"github.com/codewandler/mailroom-go/core/cluster"
	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
)

// MembershipFunc feeds membership snapshots to sink until ctx is done.
type MembershipFunc func(ctx context.Context, sink cluster.MembershipSink) error

type NodeConfig struct {
	Name string
	// Peers is the static member list. Ignored when Membership is set.
	Peers      []string
	Transport  cluster.Transport
	Membership MembershipFunc
	Metrics    cluster.Metrics
}

type MailboxConfig struct {
	Capacity         int
	Overflow         mailbox.Overflow
	Metrics          mailbox.Metrics
	SchedulerMetrics actor.Metrics
}

type Config struct {
	Context  context.Context
	Log      *slog.Logger
	Node     NodeConfig
	Mailbox  MailboxConfig
	Mailroom mailroom.Options
}

// App wires a registry, a mailroom and a cluster node into one member.
type App struct {
	ctx       context.Context
	cancelCtx context.CancelFunc
	log       *slog.Logger

	reg        *mailbox.Registry
	room       *mailroom.Mailroom
	node       *cluster.Node
	transport  cluster.Transport
	ownsTr     bool
	membership MembershipFunc

	group    *errgroup.Group
	groupCtx context.Context
	done     chan struct{}
	stopOnce sync.Once
	err      error
}

func New(config Config) (app *App, err error) {
	app = &App{done: make(chan struct{})}

	// === node config ===
	nodeConfig := config.Node
	if nodeConfig.Name == "" {
		nodeConfig.Name = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	if len(nodeConfig.Peers) == 0 {
		nodeConfig.Peers = []string{nodeConfig.Name}
	}
	if nodeConfig.Transport == nil {
		nodeConfig.Transport = cluster.NewInMemoryTransport()
		app.ownsTr = true
	}
	app.transport = nodeConfig.Transport

	app.membership = nodeConfig.Membership
	if app.membership == nil {
		app.membership = cluster.StaticMembership{Members: nodeConfig.Peers, Log: config.Log}.Run
	}

	// === logger ===
	if config.Log == nil {
		config.Log = slog.Default()
	}
	app.log = config.Log.With(slog.String("node", nodeConfig.Name))

	// === context ===
	if config.Context == nil {
		config.Context = context.Background()
	}
	app.ctx, app.cancelCtx = context.WithCancel(config.Context)

	app.log.Debug("creating app", slog.Any("node_config", nodeConfig))

	app.reg = mailbox.NewRegistry(mailbox.Options{
		Context:          app.ctx,
		Log:              app.log,
		Capacity:         config.Mailbox.Capacity,
		Overflow:         config.Mailbox.Overflow,
		Metrics:          config.Mailbox.Metrics,
		SchedulerMetrics: config.Mailbox.SchedulerMetrics,
	})

	roomOpts := config.Mailroom
	if roomOpts.Log == nil {
		roomOpts.Log = app.log
	}
	app.room, err = mailroom.New(app.reg, roomOpts)
	if err != nil {
		app.cancelCtx()
		_ = app.reg.Close()
		return nil, err
	}

	app.node = cluster.NewNode(cluster.NodeOptions{
		Name:      nodeConfig.Name,
		Log:       app.log,
		Registry:  app.reg,
		Transport: nodeConfig.Transport,
		Metrics:   nodeConfig.Metrics,
	})

	return app, nil
}

func (a *App) Registry() *mailbox.Registry { return a.reg }
func (a *App) Room() *mailroom.Mailroom    { return a.room }
func (a *App) Node() *cluster.Node         { return a.node }

// Done is closed once the app has shut down.
func (a *App) Done() <-chan struct{} { return a.done }

// Run starts the node and the membership source.
func (a *App) Run() error {
	if err := a.node.Run(a.ctx); err != nil {
		return err
	}

	a.group, a.groupCtx = errgroup.WithContext(a.ctx)
	a.group.Go(func() error {
		return a.membership(a.groupCtx, a.node)
	})

	a.log.Info("app started")
	return nil
}

// Wait blocks until the app stopped, by Stop or because the membership
// source failed, and returns the first error.
func (a *App) Wait() error {
	if a.group != nil {
		<-a.groupCtx.Done()
	}
	a.Stop()
	<-a.done
	return a.err
}

// Stop cancels the app and releases its resources.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.cancelCtx()
		if a.group != nil {
			a.err = a.group.Wait()
		}
		a.room.Close()
		_ = a.reg.Close()
		if a.ownsTr {
			_ = a.transport.Close()
		}
		a.log.Info("app stopped")
		close(a.done)
	})
}

// Shutdown stops the app and waits until it is done or ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	go a.Stop()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func Run(config Config) (app *App, err error) {
	app, err = New(config)
	if err != nil {
		return nil, err
	}

	err = app.Run()
	if err != nil {
		app.Stop()
		return nil, err
	}

	return app, nil
}
