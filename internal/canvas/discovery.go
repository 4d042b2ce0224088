package canvas

import (
	"context"
	"time"

	"shell-service/pkg/config"
	"shell-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Discoverer walks the Canvas account hierarchy breadth-first. Children
// of the nodes at each depth are fetched with a bounded number of
// concurrent sub-account calls; recursion stops at the depth limit.
type Discoverer struct {
	client      *Client
	maxDepth    int
	concurrency int
	log         *zap.Logger
}

// NewDiscoverer creates a Discoverer over the given client
func NewDiscoverer(client *Client, cfg *config.DiscoveryConfig, log *zap.Logger) *Discoverer {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Discoverer{
		client:      client,
		maxDepth:    maxDepth,
		concurrency: concurrency,
		log:         log,
	}
}

// Discover returns the root account and every sub-account reachable within
// the depth limit, root first. A failed sub-account fetch contributes the
// node itself but no descendants; only a failed root fetch is fatal.
func (d *Discoverer) Discover(ctx context.Context) ([]Account, error) {
	start := time.Now()

	root, err := d.client.RootAccount(ctx)
	if err != nil {
		return nil, err
	}
	d.log.Info("Fetched root account",
		zap.String("account_id", root.ID.String()),
		zap.String("name", root.Name))

	all := []Account{*root}
	level := []Account{*root}

	for depth := 0; depth <= d.maxDepth && len(level) > 0; depth++ {
		children := d.fetchChildren(ctx, level, depth)
		all = append(all, children...)
		level = children
	}
	if len(level) > 0 {
		d.log.Info("Max depth reached, not descending further",
			zap.Int("max_depth", d.maxDepth),
			zap.Int("unvisited_accounts", len(level)))
	}

	prometheus.DiscoveryDuration.Observe(time.Since(start).Seconds())
	prometheus.DiscoveredAccountsLast.Set(float64(len(all)))
	d.log.Info("Account discovery finished",
		zap.Int("accounts", len(all)),
		zap.Duration("elapsed", time.Since(start)))
	return all, nil
}

// fetchChildren lists the direct sub-accounts of every node at one depth.
// Per-node failures are logged and treated as "no children" so siblings
// keep going.
func (d *Discoverer) fetchChildren(ctx context.Context, level []Account, depth int) []Account {
	results := make([][]Account, len(level))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, parent := range level {
		i, parent := i, parent
		g.Go(func() error {
			subAccounts, err := d.client.SubAccounts(gctx, parent.ID.String())
			if err != nil {
				d.log.Warn("Failed to fetch sub-accounts, skipping subtree",
					zap.String("account_id", parent.ID.String()),
					zap.Int("depth", depth),
					zap.Error(err))
				return nil
			}
			results[i] = subAccounts
			return nil
		})
	}
	// Tasks never return errors; Wait only synchronizes
	_ = g.Wait()

	children := make([]Account, 0)
	for _, subAccounts := range results {
		children = append(children, subAccounts...)
	}
	return children
}
