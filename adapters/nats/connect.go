package nats

import (
	"log/slog"
	"os"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"
)

type closeFunc = func()

// Connector opens a NATS connection. The returned close func releases it.
type Connector func() (nc *natsgo.Conn, close closeFunc, err error)

type ConnectOptions struct {
	// Name is the client name shown in NATS monitoring, usually the member name.
	Name string
	Log  *slog.Logger
	// MaxReconnects before the connection gives up; -1 retries forever. Default: 3.
	MaxReconnects int
	// ReconnectWait between attempts. Default: nats.go's default.
	ReconnectWait time.Duration
}

// ReuseConnection shares one connection among all callers of the returned
// Connector. The connection is closed when the last caller released it and
// dialed again on the next call.
func ReuseConnection(connect Connector) Connector {
	var (
		mu      sync.Mutex
		nc      *natsgo.Conn
		closeNc closeFunc
		leases  int
	)
	release := func() {
		mu.Lock()
		defer mu.Unlock()
		leases--
		if leases == 0 {
			closeNc()
			nc = nil
		}
	}
	return func() (*natsgo.Conn, closeFunc, error) {
		mu.Lock()
		defer mu.Unlock()
		if nc == nil {
			c, cl, err := connect()
			if err != nil {
				return nil, nil, err
			}
			nc, closeNc = c, cl
		}
		leases++
		return nc, sync.OnceFunc(release), nil
	}
}

func ConnectURL(natsURL string) Connector {
	return ConnectWith(natsURL, ConnectOptions{})
}

func ConnectWith(natsURL string, opts ConnectOptions) Connector {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("nats_url", natsURL))

	maxReconnects := opts.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 3
	}

	natsOpts := []natsgo.Option{
		natsgo.MaxReconnects(maxReconnects),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		natsgo.ReconnectHandler(func(*natsgo.Conn) {
			log.Info("nats reconnected")
		}),
	}
	if opts.Name != "" {
		natsOpts = append(natsOpts, natsgo.Name(opts.Name))
	}
	if opts.ReconnectWait > 0 {
		natsOpts = append(natsOpts, natsgo.ReconnectWait(opts.ReconnectWait))
	}

	return func() (*natsgo.Conn, closeFunc, error) {
		nc, err := natsgo.Connect(natsURL, natsOpts...)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { nc.Close() }, nil
	}
}

// ConnectDefault dials $NATS_URL, or nats.DefaultURL when it is unset.
func ConnectDefault() Connector {
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		return ConnectURL(natsURL)
	}
	return ConnectURL(natsgo.DefaultURL)
}
