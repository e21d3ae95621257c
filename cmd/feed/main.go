package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"stratengine/internal/channel"
	"stratengine/internal/config"
	"stratengine/internal/exchange"
	"stratengine/internal/metrics"
	"stratengine/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "path to YAML config")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	boot := util.NewLogger("info", "feed")
	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		boot.Fatal().Err(err).Msg("apply env")
	}
	log := util.NewLogger(cfg.App.LogLevel, "feed")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_ = metrics.Serve(cfg.App.MetricsAddr)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	transport, err := channel.DialRedis(dialCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	dialCancel()
	if err != nil {
		log.Fatal().Err(err).Msg("dial redis")
	}
	defer transport.Close()
	pub := channel.NewPublisher(transport)

	feed := exchange.NewFeed(cfg.Exchange.Provider, cfg.Symbols(), log,
		exchange.WithDepth(cfg.Exchange.Depth),
		exchange.WithBinanceURL(cfg.Exchange.BinanceURL),
		exchange.WithStubInterval(time.Duration(cfg.Exchange.StubIntervalMs)*time.Millisecond),
	)
	events := make(chan channel.Event, 1024)
	go func() {
		if err := feed.Run(ctx, events); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
		}
		cancel()
	}()

	log.Info().Strs("symbols", feed.Symbols()).Str("provider", cfg.Exchange.Provider).Msg("publishing market data")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case ev := <-events:
			if err := pub.PublishEvent(ctx, ev); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("symbol", ev.Symbol).Str("kind", string(ev.Kind)).Msg("publish failed")
			}
		}
	}
}
