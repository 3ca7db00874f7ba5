// Command netstated wires up a standalone network.NetworkState and runs its
// reconciliation loop. It exists to exercise the package end to end; the
// actual transport (dialing, handshakes, wire codec) is out of scope and is
// stubbed here by a connection pool that never receives any peers.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/ground-x/netstate/internal/network"
	"github.com/ground-x/netstate/internal/network/netlog"
)

var logger = netlog.New("cmd")

var (
	identityFlag = cli.StringFlag{
		Name:  "identity",
		Usage: "path to the node's persisted ed25519 identity file",
		Value: "netstated.key",
	}
	reconcileIntervalFlag = cli.DurationFlag{
		Name:  "reconcile-interval",
		Usage: "how often to recompute the routing table (no edges are pruned) and run local-edge reconciliation",
		Value: 30 * time.Second,
	}
	skipTombstonesFlag = cli.DurationFlag{
		Name:  "skip-tombstones",
		Usage: "suppress broadcasting Removed edges for this long after startup",
		Value: 0,
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "netstated"
	app.Usage = "run a standalone overlay network state node"
	app.Flags = []cli.Flag{identityFlag, reconcileIntervalFlag, skipTombstonesFlag}
	app.Commands = []cli.Command{
		{
			Name:   "id",
			Usage:  "print the local peer id and exit",
			Action: runPrintID,
		},
	}
	sort.Sort(cli.CommandsByName(app.Commands))
	app.Action = runDaemon
}

func loadConfig(c *cli.Context) (network.NetworkConfig, *network.Ed25519Identity, error) {
	identity, err := network.LoadOrCreateEd25519Identity(c.String(identityFlag.Name))
	if err != nil {
		return network.NetworkConfig{}, nil, errors.Wrap(err, "load identity")
	}

	cfg := network.DefaultNetworkConfig()
	cfg.NodeID = identity.PeerId()
	cfg.NodeKey = identity
	if d := c.Duration(skipTombstonesFlag.Name); d > 0 {
		cfg.SkipTombstones = &d
	}
	return cfg, identity, nil
}

func runPrintID(c *cli.Context) error {
	_, identity, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Println(identity.PeerId().String())
	return nil
}

func runDaemon(c *cli.Context) error {
	cfg, identity, err := loadConfig(c)
	if err != nil {
		return err
	}

	registry := network.NewPeerKeyRegistry()
	state, err := network.NewNetworkState(cfg, noopPeerStore{}, noopClient{}, registry.VerifyEdge)
	if err != nil {
		return errors.Wrap(err, "start network state")
	}
	defer state.Close()

	logger.Infow("netstated started", "peer_id", identity.PeerId().String())

	interval := c.Duration(reconcileIntervalFlag.Name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		select {
		case <-ticker.C:
			state.UpdateRoutingTable(nil, nil)
			reconcileCtx, reconcileCancel := context.WithTimeout(ctx, interval)
			if err := state.UpdateLocalEdges(reconcileCtx); err != nil {
				logger.Warnw("local edge reconciliation did not finish cleanly", "err", err)
			}
			reconcileCancel()
		case <-ctx.Done():
			return nil
		}
	}
}

// noopPeerStore discards ban/disconnect records; a real deployment would
// back this with a persistent reputation store.
type noopPeerStore struct{}

func (noopPeerStore) PeerBan(time.Time, network.PeerId, network.ReasonForBan) error { return nil }
func (noopPeerStore) PeerDisconnected(time.Time, network.PeerId) error              { return nil }

// noopClient reports no chain gossip; a real deployment would wire this to
// the consensus client.
type noopClient struct{}

func (noopClient) ChainInfo() network.ChainInfo { return network.ChainInfo{} }

func main() {
	if err := app.Run(os.Args); err != nil {
		logger.Errorw("netstated exited with error", "err", err)
		os.Exit(1)
	}
}
