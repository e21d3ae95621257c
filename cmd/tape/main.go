package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"stratengine/internal/book"
	"stratengine/internal/channel"
	"stratengine/internal/config"
	"stratengine/internal/tape"
	"stratengine/internal/util"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "path to YAML config")
	symbol := flag.String("symbol", "BTCUSDT", "symbol to watch")
	depth := flag.Int("depth", 10, "book levels per side")
	utc := flag.Bool("utc", false, "print times in UTC")
	flag.Parse()

	log := util.NewLogger("warn", "tape")
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal().Err(err).Msg("apply env")
	}

	loc := time.Local
	if *utc {
		loc = time.UTC
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	transport, err := channel.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("dial redis")
	}
	defer transport.Close()

	sub := channel.NewSubscriber(transport, log)
	if err := sub.Subscribe(ctx, strings.ToUpper(*symbol)); err != nil {
		log.Fatal().Err(err).Msg("subscribe")
	}

	err = sub.Run(ctx, func(_ context.Context, ev channel.Event) error {
		switch ev.Kind {
		case channel.KindOrderBook:
			view, err := book.New(*ev.Book)
			if err != nil {
				return err
			}
			return view.Render(os.Stdout, *depth, loc)
		case channel.KindTrade:
			fmt.Println(tape.Format(*ev.Trade, loc))
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("tape stopped")
		os.Exit(1)
	}
}
