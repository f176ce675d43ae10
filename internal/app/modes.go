package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"flasharb/internal/aggregator"
	"flasharb/internal/chain"
	"flasharb/internal/config"
	"flasharb/internal/crypto"
	"flasharb/internal/domain"
	"flasharb/internal/executor"
	"flasharb/internal/ledger"
	"flasharb/internal/risk"
	"flasharb/internal/scorer"
	"flasharb/internal/server"
	"flasharb/internal/server/handler"
	"flasharb/internal/server/ws"
	"flasharb/internal/venue"
)

// MonitorMode polls venues, scores opportunities, and records them without
// ever executing. This is the default mode: a freshly configured daemon
// watches the market until the operator explicitly authorizes execution.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	pipe, err := a.buildPipeline(ctx, deps)
	if err != nil {
		return err
	}
	defer pipe.chain.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return pipe.agg.Run(gctx) })
	g.Go(func() error { return a.scoringLoop(gctx, deps, pipe, nil) })

	a.startRetention(g, gctx, deps)
	a.startServer(g, gctx, deps, nil)

	return g.Wait()
}

// ExecuteMode runs the full pipeline: poll, score, gate, and execute
// flash-loan arbitrage transactions on-chain.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")

	pipe, err := a.buildPipeline(ctx, deps)
	if err != nil {
		return err
	}
	defer pipe.chain.Close()

	key, err := crypto.LoadKey(crypto.KeySource{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("app: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, a.cfg.Chain.ChainID)
	if err != nil {
		return fmt.Errorf("app: signer: %w", err)
	}
	a.logger.InfoContext(ctx, "wallet loaded", slog.String("address", signer.Address()))

	gate := risk.New(risk.Config{
		ExecutionAuthorized: a.cfg.Risk.ExecutionAuthorized,
		MinNetProfitUSD:     a.cfg.Risk.MinNetProfitUSD,
		MaxPositionSize:     a.cfg.Risk.MaxPositionSize,
		MinConfidence:       a.cfg.Risk.MinConfidence,
		BreakerThreshold:    a.cfg.Risk.BreakerThreshold,
		BreakerCooldown:     a.cfg.Risk.BreakerCooldown.Duration,
		DailyLossLimitUSD:   a.cfg.Risk.DailyLossLimitUSD,
	}, a.logger)

	planner := executor.NewPlanner(
		a.cfg.Chain.FlashLoanContract,
		venueRoutes(a.cfg.Venues),
		pipe.tokens,
		pipe.chain,
		signer.Address(),
		a.cfg.Scoring.FlashLoanFeeBps,
		a.cfg.Executor.MinReturnScale,
		a.cfg.Executor.FallbackGasLimit,
	)

	oppCh := make(chan domain.Opportunity, 64)
	recorder := &executionRecorder{
		ledger:   deps.Ledger,
		notifier: deps.Notifier,
		bus:      deps.EventBus,
		logger:   a.logger,
	}
	coord := executor.New(
		oppCh,
		executor.Config{
			MaxAttempts:       a.cfg.Executor.MaxAttempts,
			RetryBackoff:      a.cfg.Executor.RetryBackoff.Duration,
			MaxOpportunityAge: a.cfg.Executor.MaxOpportunityAge.Duration,
			ConfirmTimeout:    a.cfg.Executor.ConfirmTimeout.Duration,
			AssetLockTTL:      a.cfg.Executor.AssetLockTTL.Duration,
			EstGasCostUSD:     a.cfg.Scoring.GasCostUSD,
		},
		gate,
		planner,
		signer,
		pipe.chain,
		deps.LockManager,
		recorder,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return pipe.agg.Run(gctx) })
	g.Go(func() error { return a.scoringLoop(gctx, deps, pipe, oppCh) })
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error { return a.statusLoop(gctx, deps, gate) })

	a.startRetention(g, gctx, deps)
	a.startServer(g, gctx, deps, gate)

	return g.Wait()
}

// ServerMode serves the API over recorded history without touching the
// chain: no polling, no scoring, no execution.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: server mode requires server.enabled")
	}

	g, gctx := errgroup.WithContext(ctx)

	a.startRetention(g, gctx, deps)
	a.startServer(g, gctx, deps, nil)

	return g.Wait()
}

// pipeline bundles the mode-independent market-data half of the system.
type pipeline struct {
	chain  *chain.Client
	tokens venue.TokenRegistry
	agg    *aggregator.Aggregator
	scorer *scorer.Scorer
	snapCh chan domain.Snapshot
}

// buildPipeline dials the chain, builds venue adapters, and assembles the
// aggregator and scorer.
func (a *App) buildPipeline(ctx context.Context, deps *Dependencies) (*pipeline, error) {
	decimals := make(map[string]int)
	baseUnits := make(map[domain.Pair]float64, len(a.cfg.Pairs))
	specs := make([]aggregator.PairSpec, 0, len(a.cfg.Pairs))
	for _, p := range a.cfg.Pairs {
		decimals[p.BaseToken] = p.BaseDecimals
		decimals[p.QuoteToken] = p.QuoteDecimals
		pair := domain.NewPair(p.Base, p.Quote)
		baseUnits[pair] = p.BaseUnit
		specs = append(specs, aggregator.PairSpec{Pair: pair, QuoteSize: p.BaseUnit})
	}

	chainClient, err := chain.Dial(ctx, a.cfg.Chain.RPCURL, a.cfg.Chain.ChainID, decimals, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: chain: %w", err)
	}

	tokens := venue.BuildRegistry(a.cfg.Pairs)
	adapters, err := venue.Build(a.cfg.Venues, chainClient, tokens, deps.RateLimiter)
	if err != nil {
		chainClient.Close()
		return nil, fmt.Errorf("app: venues: %w", err)
	}

	fees := make(scorer.FeeTable, len(adapters))
	for _, ad := range adapters {
		fees[ad.ID()] = ad.FeeBps()
	}

	var snapStore domain.SnapshotStore
	if a.cfg.Aggregation.PersistSnapshots {
		snapStore = deps.SnapshotStore
	}

	snapCh := make(chan domain.Snapshot, 64)
	agg := aggregator.New(
		adapters,
		specs,
		aggregator.Config{
			PollInterval:      a.cfg.Aggregation.PollInterval.Duration,
			MaxQuoteStaleness: a.cfg.Aggregation.MaxQuoteStaleness.Duration,
			PersistSnapshots:  a.cfg.Aggregation.PersistSnapshots,
		},
		snapCh,
		deps.QuoteCache,
		snapStore,
		deps.Ledger,
		a.logger,
	)

	sc := scorer.New(scorer.Config{
		AmountMultipliers: a.cfg.Scoring.AmountMultipliers,
		FlashLoanFeeBps:   a.cfg.Scoring.FlashLoanFeeBps,
		SlippageBufferPct: a.cfg.Scoring.SlippageBufferPct,
		GasCostUSD:        a.cfg.Scoring.GasCostUSD,
		MaxQuoteStaleness: a.cfg.Aggregation.MaxQuoteStaleness.Duration,
		LiquidityWeight:   a.cfg.Scoring.LiquidityWeight,
		FreshnessWeight:   a.cfg.Scoring.FreshnessWeight,
		ReliabilityWeight: a.cfg.Scoring.ReliabilityWeight,
		SweetSpotEnabled:  a.cfg.Scoring.SweetSpotEnabled,
		SweetSpotMinUSD:   a.cfg.Scoring.SweetSpotMinUSD,
		SweetSpotMaxUSD:   a.cfg.Scoring.SweetSpotMaxUSD,
		SweetSpotBonus:    a.cfg.Scoring.SweetSpotBonus,
	}, fees, deps.Ledger, baseUnits, a.logger)

	return &pipeline{
		chain:  chainClient,
		tokens: tokens,
		agg:    agg,
		scorer: sc,
		snapCh: snapCh,
	}, nil
}

// scoringLoop drains snapshots, scores them, records the results, and
// publishes them for live consumers. When oppCh is non-nil (execute mode)
// every opportunity is also handed to the coordinator; a full coordinator
// queue drops the opportunity rather than stalling scoring, since a stale
// opportunity is worthless anyway.
func (a *App) scoringLoop(ctx context.Context, deps *Dependencies, pipe *pipeline, oppCh chan<- domain.Opportunity) error {
	log := a.logger.With(slog.String("component", "pipeline"))

	for {
		var snap domain.Snapshot
		select {
		case <-ctx.Done():
			if oppCh != nil {
				close(oppCh)
			}
			return ctx.Err()
		case snap = <-pipe.snapCh:
		}

		for _, opp := range pipe.scorer.Score(snap) {
			if err := deps.Ledger.RecordOpportunity(ctx, opp); err != nil {
				log.ErrorContext(ctx, "record opportunity failed",
					slog.String("id", opp.ID),
					slog.String("error", err.Error()),
				)
			}

			publishJSON(ctx, deps.EventBus, ws.ChannelOpportunities, opp, log)

			if oppCh != nil {
				select {
				case oppCh <- opp:
				default:
					log.WarnContext(ctx, "coordinator queue full, dropping opportunity",
						slog.String("id", opp.ID),
					)
				}
			} else if err := deps.Notifier.OpportunityFound(ctx, opp); err != nil {
				log.WarnContext(ctx, "opportunity notification failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// statusLoop periodically publishes gate and venue health for the
// WebSocket status channel, and alerts once per breaker-open transition.
func (a *App) statusLoop(ctx context.Context, deps *Dependencies, gate *risk.Gate) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	wasOpen := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		open := gate.BreakerOpen()
		if open && !wasOpen {
			if err := deps.Notifier.BreakerOpened(ctx, a.cfg.Risk.BreakerThreshold, a.cfg.Risk.BreakerCooldown.Duration); err != nil {
				a.logger.WarnContext(ctx, "breaker notification failed",
					slog.String("error", err.Error()),
				)
			}
		}
		wasOpen = open

		publishJSON(ctx, deps.EventBus, ws.ChannelStatus, map[string]any{
			"breaker_open":        open,
			"daily_loss_usd":      gate.DailyLossUSD(),
			"venue_failure_rates": deps.Ledger.VenueFailureRates(),
		}, a.logger)
	}
}

// startRetention launches the archive-and-prune loop when S3 archival is
// configured.
func (a *App) startRetention(g *errgroup.Group, ctx context.Context, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	maxAge := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	g.Go(func() error {
		return deps.Ledger.RunRetention(ctx, ledger.RetentionConfig{
			Interval:     time.Hour,
			MaxAge:       maxAge,
			SnapshotsTTL: maxAge,
		}, deps.Archiver)
	})
}

// startServer launches the HTTP/WebSocket API when enabled. gate may be
// nil in modes that never execute.
func (a *App) startServer(g *errgroup.Group, ctx context.Context, deps *Dependencies, gate *risk.Gate) {
	if !a.cfg.Server.Enabled {
		return
	}

	hub := ws.NewHub(deps.EventBus, a.cfg.Mode, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	status := handler.NewStatusHandler(a.cfg.Mode).WithVenueHealth(deps.Ledger)
	if gate != nil {
		status = status.WithRiskState(gate)
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Status:        status,
		Opportunities: handler.NewOpportunityHandler(deps.Ledger, a.logger),
		Executions:    handler.NewExecutionHandler(deps.Ledger, a.logger),
		Snapshots:     handler.NewSnapshotHandler(deps.Ledger, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// venueRoutes maps venue configuration to the on-chain routing info the
// planner encodes into calldata.
func venueRoutes(cfgs []config.VenueConfig) map[string]executor.VenueRoute {
	routes := make(map[string]executor.VenueRoute, len(cfgs))
	for _, vc := range cfgs {
		var tier int64
		if len(vc.FeeTiers) > 0 {
			tier = vc.FeeTiers[0]
		}
		routes[vc.ID] = executor.VenueRoute{Router: vc.Router, FeeTier: tier}
	}
	return routes
}

// publishJSON marshals v and publishes it on the event bus. Publish
// failures are logged, never propagated: live streaming is best-effort.
func publishJSON(ctx context.Context, bus domain.EventBus, channel string, v any, log *slog.Logger) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		log.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
