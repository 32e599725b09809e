// Package app wires a mailbox registry, a mailroom and a cluster node into
// one running member.
//
// # Basic Usage
//
//	a, err := app.Run(app.Config{
//	    Node: app.NodeConfig{
//	        Name:      "node-1",
//	        Peers:     []string{"node-1", "node-2"},
//	        Transport: natsTransport,
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	prices, err := mailroom.Subscribe[Price](ctx, a.Room(), "prices")
//	...
//	err = mailroom.Send(ctx, a.Room(), "prices", Price{Symbol: "ACME"})
//
//	// Graceful shutdown
//	a.Shutdown(ctx)
//
// # Membership
//
// Without further configuration the static Peers list is published to the
// node. Set NodeConfig.Membership to plug in a dynamic source such as the
// memberlist or NATS KV adapters:
//
//	app.NodeConfig{
//	    Name:       name,
//	    Transport:  natsTransport,
//	    Membership: kvMembership.Run,
//	}
//
// The app stops when its context is cancelled or the membership source
// returns an error; Wait reports that error.
package app
