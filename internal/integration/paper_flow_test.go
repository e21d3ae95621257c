package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stratengine/internal/channel"
	"stratengine/internal/fills"
	"stratengine/internal/host"
	"stratengine/internal/paper"
	"stratengine/internal/risk"
	"stratengine/internal/signal"
	"stratengine/internal/strategy"
)

type flow struct {
	bus     *channel.MemoryBus
	pub     *channel.Publisher
	engine  *host.Engine
	rt      *strategy.Runtime
	guard   *risk.Guard
	account *paper.Account
	ledger  *paper.Ledger
	runErr  chan error
}

func newFlow(t *testing.T, ctx context.Context, maxNotional float64) *flow {
	t.Helper()
	log := zerolog.Nop()

	rt, err := strategy.NewRegistry().Build(strategy.TypeMomentum, "mom", log)
	require.NoError(t, err)
	require.NoError(t, rt.Init(strategy.Config{LookbackPeriod: 3, Threshold: 0.01, OrderQuantity: 1}))

	engine := host.NewEngine(nil, log)
	require.NoError(t, engine.Add(rt, "BTCUSDT"))

	account := paper.NewAccount(1000, 0)
	ledger := paper.NewLedger(16)
	exec := paper.NewExecutor(account, log, paper.WithRecorder(ledger))
	guard := risk.NewGuard(risk.Limits{MaxNotionalPerTrade: maxNotional}, exec, risk.WithMarks(exec))
	exec.SetFeedback(fills.Tee{guard, engine})
	engine.AddObserver(exec)
	engine.SetSink(guard)
	require.NoError(t, engine.StartAll())

	bus := channel.NewMemoryBus()
	sub := channel.NewSubscriber(bus, log)
	require.NoError(t, sub.Subscribe(ctx, "BTCUSDT"))

	f := &flow{
		bus:     bus,
		pub:     channel.NewPublisher(bus),
		engine:  engine,
		rt:      rt,
		guard:   guard,
		account: account,
		ledger:  ledger,
		runErr:  make(chan error, 1),
	}
	go func() { f.runErr <- sub.Run(ctx, engine.HandleEvent) }()
	return f
}

func (f *flow) trades(t *testing.T, ctx context.Context, prices ...float64) {
	t.Helper()
	for i, px := range prices {
		require.NoError(t, f.pub.PublishTrade(ctx, signal.Trade{
			Symbol:    "BTCUSDT",
			TradeID:   uint64(i + 1),
			Price:     px,
			Quantity:  0.5,
			Timestamp: signal.Millis(1700000000000 + int64(i)),
		}))
	}
}

func TestPaperFlowFillsAndFeedsBack(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFlow(t, ctx, 1000)
	f.trades(t, ctx, 100, 100, 102)

	require.Eventually(t, func() bool {
		return f.rt.Metrics()[strategy.MetricPositionUpdates] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.InDelta(t, 1.0, f.account.Position("BTCUSDT"), 1e-9)
	require.InDelta(t, 1000-102.0, f.account.AvailableCash(), 1e-9)

	fills := f.ledger.Snapshot()
	require.Len(t, fills, 1)
	require.Equal(t, signal.SideBuy, fills[0].Side)
	require.Equal(t, "mom", fills[0].Strategy)
	require.Equal(t, 102.0, fills[0].Price)

	m := f.rt.Metrics()
	require.Equal(t, 3.0, m[strategy.MetricMarketDataProcessed])
	require.Equal(t, 1.0, m[strategy.MetricSignalsGenerated])
	require.Equal(t, 1.0, m[strategy.MetricFillsReceived])
	require.Equal(t, 102.0, m["last_fill_price"])
	require.InDelta(t, 1.0, f.guard.Position("BTCUSDT"), 1e-9)

	cancel()
	select {
	case err := <-f.runErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestPaperFlowRiskRejectsOversizedSignal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newFlow(t, ctx, 50)
	f.trades(t, ctx, 100, 100, 102)

	require.Eventually(t, func() bool {
		return f.rt.Metrics()[strategy.MetricSignalsGenerated] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Zero(t, f.account.Position("BTCUSDT"))
	require.Empty(t, f.ledger.Snapshot())
	require.Zero(t, f.rt.Metrics()[strategy.MetricFillsReceived])
}
