package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"stratengine/internal/channel"
	"stratengine/internal/config"
	"stratengine/internal/execution"
	"stratengine/internal/fills"
	"stratengine/internal/host"
	"stratengine/internal/metrics"
	"stratengine/internal/paper"
	"stratengine/internal/risk"
	"stratengine/internal/strategy"
	"stratengine/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "path to YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	boot := util.NewLogger("info", "engine")
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		boot.Fatal().Err(err).Msg("apply env")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("validate config")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.Name)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("engine stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	transport, err := openTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer transport.Close()

	engine := host.NewEngine(nil, log)
	registry := strategy.NewRegistry()
	feedSymbols := cfg.Symbols()
	for _, sc := range cfg.Strategies {
		rt, err := registry.Build(sc.Type, sc.Name, log)
		if err != nil {
			return err
		}
		params, err := sc.Config()
		if err != nil {
			return err
		}
		if err := rt.Init(params); err != nil {
			return err
		}
		if err := engine.Add(rt, sc.Symbols...); err != nil {
			return err
		}
		if err := prometheus.Register(metrics.NewSinkCollector(rt.Name(), rt.Sink())); err != nil {
			log.Warn().Err(err).Str("strategy", rt.Name()).Msg("sink collector not registered")
		}
		log.Info().Str("strategy", rt.Name()).Str("type", rt.Type()).Strs("symbols", sc.Symbols).Msg("strategy loaded")
	}

	guard, feedback, closeSink, err := buildSink(cfg, engine, log)
	if err != nil {
		return err
	}
	defer closeSink()
	engine.SetSink(guard)
	go resetDaily(ctx, guard)

	if cfg.NATS.URL != "" {
		nc, err := fills.Connect(cfg.NATS.URL, cfg.App.Name, log)
		if err != nil {
			return err
		}
		defer nc.Close()
		listener := fills.NewListener(nc, fills.Subjects{Fills: cfg.NATS.FillsSubject, Positions: cfg.NATS.PositionsSubject}, feedback, log)
		go func() {
			if err := listener.Run(ctx); err != nil {
				log.Error().Err(err).Msg("fills listener stopped")
			}
		}()
	}

	if err := engine.StartAll(); err != nil {
		return err
	}
	defer engine.StopAll()

	sub := channel.NewSubscriber(transport, log)
	if err := sub.Subscribe(ctx, feedSymbols...); err != nil {
		return err
	}
	log.Info().Strs("channels", sub.Channels()).Msg("engine started")

	err = sub.Run(ctx, engine.HandleEvent)
	for name, m := range engine.Metrics() {
		log.Info().Str("strategy", name).Interface("metrics", m).Msg("final metrics")
	}
	return err
}

func openTransport(ctx context.Context, cfg *config.Config) (channel.Transport, error) {
	if cfg.Channel.Transport == config.TransportMemory {
		return channel.NewMemoryBus(), nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return channel.DialRedis(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
		channel.WithPollInterval(time.Duration(cfg.Channel.PollIntervalMs)*time.Millisecond))
}

// buildSink puts the risk guard in front of either the paper account or the logging executor. The
// returned feedback sink reaches both the strategies and the guard's position book.
func buildSink(cfg *config.Config, engine *host.Engine, log zerolog.Logger) (*risk.Guard, fills.Sink, func(), error) {
	if !cfg.Paper.Enabled {
		guard := risk.NewGuard(cfg.Risk, execution.NewExecutor(log), risk.WithLogger(log))
		return guard, fills.Tee{guard, engine}, func() {}, nil
	}

	ledger := paper.NewLedger(1024)
	recorders := paper.MultiRecorder{ledger}
	closer := func() {}
	if cfg.Paper.FillsPath != "" {
		rec, err := paper.NewJSONLRecorder(cfg.Paper.FillsPath, log)
		if err != nil {
			return nil, nil, nil, err
		}
		recorders = append(recorders, rec)
		closer = func() { _ = rec.Close() }
	}

	account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerSymbol)
	exec := paper.NewExecutor(account, log,
		paper.WithRecorder(recorders),
		paper.WithFeeBps(cfg.Paper.FeeBps),
	)
	guard := risk.NewGuard(cfg.Risk, exec, risk.WithMarks(exec), risk.WithLogger(log))
	feedback := fills.Tee{guard, engine}
	exec.SetFeedback(feedback)
	engine.AddObserver(exec)
	done := func() {
		closer()
		snap := account.Snapshot(nil)
		log.Info().
			Float64("cash", snap.Cash).
			Float64("realized_pnl", snap.RealizedPnL).
			Int("fills", len(ledger.Snapshot())).
			Msg("paper account closed")
	}
	return guard, feedback, done, nil
}

// resetDaily opens a new daily loss window at each UTC midnight.
func resetDaily(ctx context.Context, guard *risk.Guard) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			guard.ResetDaily()
		}
	}
}
