// Command copytrader mirrors the swap activity of one upstream wallet:
// redundant ingestion, deduplicated parsing, a serialized risk and execution
// stage, and durable position bookkeeping.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copy-trader/internal/aggregator"
	"solana-copy-trader/internal/breaker"
	"solana-copy-trader/internal/config"
	"solana-copy-trader/internal/executor"
	"solana-copy-trader/internal/ingest"
	"solana-copy-trader/internal/logger"
	"solana-copy-trader/internal/notify"
	"solana-copy-trader/internal/observability"
	"solana-copy-trader/internal/parser"
	"solana-copy-trader/internal/pending"
	"solana-copy-trader/internal/pipeline"
	"solana-copy-trader/internal/position"
	"solana-copy-trader/internal/risk"
	"solana-copy-trader/internal/scheduler"
	"solana-copy-trader/internal/solana"
	"solana-copy-trader/internal/storage/clickhouse"
	"solana-copy-trader/internal/storage/migrations"
	"solana-copy-trader/internal/storage/postgres"
	"solana-copy-trader/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "copytrader: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFile)
	log.WithFields(logrus.Fields{
		"dry_run":  cfg.DryRun,
		"upstream": cfg.UpstreamWallet,
	}).Info("starting copytrader")

	if err := wallet.ValidateAddress(cfg.UpstreamWallet); err != nil {
		return fmt.Errorf("invalid UPSTREAM_WALLET: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage.
	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	ledger := postgres.NewLedgerStore(pool)
	positions := postgres.NewPositionStore(pool)
	budget := postgres.NewBudgetStore(pool)
	cooldowns := postgres.NewCooldownStore(pool)
	metricStore := postgres.NewMetricStore(pool)
	sourceTrades := postgres.NewSourceTradeStore(pool)
	virtual := postgres.NewVirtualStore(pool)
	snapshots := postgres.NewSnapshotStore(pool)
	comparisons := postgres.NewComparisonStore(pool)

	var sink *clickhouse.AnalyticsSink
	if cfg.ClickhouseDSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect clickhouse: %w", err)
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		sink = clickhouse.NewAnalyticsSink(conn)
	}

	if cfg.DryRun {
		if err := virtual.InitWallet(ctx, cfg.VirtualStartingLamports()); err != nil {
			return fmt.Errorf("init virtual wallet: %w", err)
		}
	}

	// Chain and aggregator collaborators.
	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)
	agg := aggregator.NewHTTPClient(cfg.AggregatorURL)

	var botWallet *wallet.Wallet
	botPubkey := ""
	if !cfg.DryRun {
		botWallet, err = wallet.Load(cfg.WalletPrivateKey)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		botPubkey = botWallet.PublicKey()
		log.WithField("pubkey", botPubkey).Info("wallet loaded")
	}

	// Pipeline.
	prom := observability.NewMetrics("")
	notifier := notify.NewLogNotifier(log)
	pendings := pending.NewRegistry()
	brk := breaker.New(breaker.Config{
		FailRatePct:     cfg.CBFailRatePct,
		Window:          time.Duration(cfg.CBFailWindowMin) * time.Minute,
		LatencyP99Ms:    cfg.CBLatencyP99Ms,
		NoPositionSpike: cfg.CBNoPositionSpike,
		AutoReset:       time.Duration(cfg.CBAutoResetMin) * time.Minute,
	}, log)

	engine := risk.NewEngine(cfg, positions, budget, cooldowns, virtual, rpc, agg, brk, botPubkey, log)
	positionMgr := position.NewManager(positions, notifier, log)

	var exec executor.Executor
	if cfg.DryRun {
		exec = executor.NewSimulator(cfg, virtual, budget, cooldowns, agg, rpc, botPubkey, log)
	} else {
		exec = executor.NewLive(cfg, agg, rpc, botWallet, budget, cooldowns, comparisons, notifier, log)
	}

	var pipelineSink pipeline.AnalyticsSink
	if sink != nil {
		pipelineSink = sink
	}
	proc := pipeline.NewProcessor(ledger, sourceTrades, metricStore, engine, exec,
		positionMgr, brk, pendings, notifier, pipelineSink, prom, log)
	serializer := pipeline.NewSerializer(proc, prom)
	serializer.Start(ctx)
	defer serializer.Stop()

	// Ingestion sources.
	swapParser := parser.New(cfg.UpstreamWallet, rpc, cfg.RestrictIntermediates, log)
	intake := ingest.NewIntake(ledger, positions, pendings, swapParser, serializer, prom, log)

	webhook := ingest.NewWebhookServer(cfg.WebhookAddr, intake, cfg.WebhookRatePerMin, prom, log)
	webhook.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		webhook.Shutdown(shutdownCtx)
	}()

	if cfg.WSEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, nil, log)
		if err != nil {
			log.WithError(err).Warn("websocket connect failed, subscription source disabled")
		} else {
			defer ws.Close()
			sub := ingest.NewSubscription(ws, cfg.UpstreamWallet, intake, log)
			go func() {
				if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
					log.WithError(err).Error("subscription source stopped")
				}
			}()
		}
	}

	poller := ingest.NewPoller(rpc, cfg.UpstreamWallet,
		time.Duration(cfg.PollIntervalSec)*time.Second, cfg.PollSignatureLimit, intake, log)
	go func() {
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("poll source stopped")
		}
	}()

	// Background tasks.
	var snapSink scheduler.SnapshotSink
	if sink != nil {
		snapSink = sink
	}
	sched := scheduler.New(log)
	sched.Register("pnl_snapshot", scheduler.SnapshotInterval,
		scheduler.SnapshotTask(virtual, positions, snapshots, snapSink, prom, log))
	sched.Register("reap_stale_sent", scheduler.ReapInterval,
		scheduler.ReapTask(positionMgr, cfg.PendingTimeout()))
	sched.Register("retention_prune", scheduler.PruneInterval,
		scheduler.PruneTask(ledger, snapshots, metricStore, log))
	sched.Start(ctx)

	// Metrics endpoint.
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: observability.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	defer metricsSrv.Close()

	log.Info("copytrader running")
	<-ctx.Done()
	log.Info("shutting down")
	sched.Wait()
	return nil
}
