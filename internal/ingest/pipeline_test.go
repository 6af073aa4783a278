package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ammScope/internal/directory"
	"ammScope/internal/events"
	"ammScope/internal/metadata"
	"ammScope/internal/model"
	"ammScope/internal/notify"
	"ammScope/internal/storage"
	"ammScope/internal/storage/memory"
)

const (
	factory = "zig1factory"
	native  = "uzig"
	meme    = "coin.zig1x.meme"
	pair    = "zig1pair"
)

var blockTime = time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)

func ev(typ string, kv ...string) model.Event {
	out := model.Event{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		out.Attributes = append(out.Attributes, model.Attribute{Key: kv[i], Value: kv[i+1]})
	}
	return out
}

func createPairTx() model.Tx {
	return model.Tx{Hash: "CREATE", Events: []model.Event{
		ev("message", "sender", "zig1alice", "msg_index", "0"),
		ev("wasm",
			"_contract_address", factory, "action", "create_pair", "pair", native+"-"+meme, "msg_index", "0",
			"_contract_address", factory, "action", "register", "pair_contract_addr", pair),
	}}
}

func swapTx(hash, offerDenom, offerAmount, askDenom, returnAmount, reserves string) model.Tx {
	return model.Tx{Hash: hash, Events: []model.Event{
		ev("message", "sender", "zig1bob", "msg_index", "0"),
		ev("wasm", "_contract_address", pair, "action", "swap", "msg_index", "0",
			"offer_asset", offerDenom, "offer_amount", offerAmount,
			"ask_asset", askDenom, "return_amount", returnAmount,
			"reserves", reserves),
	}}
}

func blockAt(height int64, txs ...model.Tx) model.Block {
	for i := range txs {
		txs[i].Index = i
	}
	return model.Block{Height: height, Time: blockTime, Txs: txs}
}

type recordingSink struct {
	mu     sync.Mutex
	trades []model.Trade
}

func (s *recordingSink) PutTrades(_ context.Context, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, payload)
	return nil
}

type recordingToucher struct {
	mu    sync.Mutex
	pools map[string]int
}

func (r *recordingToucher) Touch(pool model.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pools == nil {
		r.pools = make(map[string]int)
	}
	r.pools[pool.Address]++
}

type failingTrades struct {
	*memory.Store
}

func (f failingTrades) InsertTrade(context.Context, model.Trade) (bool, error) {
	return false, errors.New("insert refused")
}

func (f failingTrades) RecordSwap(context.Context, model.Trade, model.BarUpdate) (bool, error) {
	return false, errors.New("insert refused")
}

// flakySwaps rejects the first swap write the way a rolled back transaction
// would: nothing of it is stored.
type flakySwaps struct {
	*memory.Store

	mu    sync.Mutex
	fails int
}

func (f *flakySwaps) RecordSwap(ctx context.Context, trade model.Trade, bar model.BarUpdate) (bool, error) {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return false, errors.New("bar write timed out")
	}
	f.mu.Unlock()
	return f.Store.RecordSwap(ctx, trade, bar)
}

func newPipeline(t *testing.T, store *memory.Store, writer storage.Writer, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)
	extractor := events.NewExtractor(events.Config{Factory: factory, NativeDenom: native}, logger)
	dir := directory.New(directory.Config{NativeDenom: native}, store, nil, logger)
	if writer == nil {
		writer = store
	}
	return NewPipeline(cfg, extractor, writer, dir, logger, opts...)
}

func TestProcessBlockCreatePairAndSwap(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &recordingSink{}
	pub := &recordingPublisher{}
	toucher := &recordingToucher{}
	p := newPipeline(t, store, nil, Config{}, WithSinks(sink), WithPublisher(pub), WithToucher(toucher),
		WithMetadata(metadata.NewQueue(metadata.StoreEnricher{Store: store}, 0, nil)))

	block := blockAt(100, createPairTx(), swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native))
	summary, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Actions)
	assert.Equal(t, 1, summary.Trades)
	assert.Equal(t, []string{pair}, summary.Pools)

	pools := store.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, meme, pools[0].BaseDenom)
	assert.Equal(t, native, pools[0].QuoteDenom)
	assert.Equal(t, "zig1alice", pools[0].Signer)

	trades := store.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, model.DirectionBuy, trades[0].Direction)
	assert.Equal(t, model.ActionSwap, trades[0].Action)
	assert.Equal(t, pair, trades[0].PoolAddress)

	state, err := store.PoolState(ctx, pools[0].ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, model.Position{Height: 100, TxIndex: 1, MsgIndex: 0}, state.Position)
	reserve, ok := state.Reserve(native)
	assert.True(t, ok)
	assert.Equal(t, "700", reserve)

	bar, err := store.LatestBar(ctx, pools[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, int64(1), bar.Trades)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), bar.Bucket)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("0.14")), bar.Close.String())
	assert.True(t, bar.Volume.Equal(decimal.RequireFromString("0.0001")), bar.Volume.String())

	tokens, err := store.Tokens(ctx, []string{native, meme})
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	assert.Len(t, sink.trades, 1)
	require.Len(t, pub.messages, 1)
	update, ok := pub.messages[0].(notify.BlockUpdate)
	require.True(t, ok)
	assert.Equal(t, int64(100), update.Height)
	assert.Equal(t, 1, toucher.pools[pair])
}

func TestProcessBlockReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	block := blockAt(100, createPairTx(), swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native))
	_, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	summary, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Trades)

	assert.Len(t, store.Pools(), 1)
	assert.Len(t, store.Trades(), 1)
	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, int64(1), bar.Trades)
	assert.True(t, bar.Volume.Equal(decimal.RequireFromString("0.0001")))
}

func TestProcessBlockSellDirectionAndOpenClose(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	_, err := p.ProcessBlock(ctx, blockAt(100, createPairTx()))
	require.NoError(t, err)

	block := blockAt(101,
		swapTx("S1", native, "100", meme, "9", meme+":5000, 700"+native),
		swapTx("S2", meme, "10", native, "2", meme+":5010, 698"+native),
	)
	_, err = p.ProcessBlock(ctx, block)
	require.NoError(t, err)

	trades := store.Trades()
	require.Len(t, trades, 2)
	byHash := map[string]model.Trade{}
	for _, tr := range trades {
		byHash[tr.TxHash] = tr
	}
	assert.Equal(t, model.DirectionBuy, byHash["S1"].Direction)
	assert.Equal(t, model.DirectionSell, byHash["S2"].Direction)

	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, int64(2), bar.Trades)
	assert.True(t, bar.Open.Equal(decimal.RequireFromString("0.14")))
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("698").DivRound(decimal.RequireFromString("5010"), 18)))
	assert.True(t, bar.Volume.Equal(decimal.RequireFromString("0.000102")), bar.Volume.String())
}

func TestProcessBlockUnknownPoolSkipped(t *testing.T) {
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	summary, err := p.ProcessBlock(context.Background(),
		blockAt(100, swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native)))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, store.Trades())
}

func TestProcessBlockFlushesAtThreshold(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{FlushThreshold: 2, PrimaryCeiling: 2})

	_, err := p.ProcessBlock(ctx, blockAt(100, createPairTx()))
	require.NoError(t, err)

	var txs []model.Tx
	for i := 0; i < 5; i++ {
		txs = append(txs, swapTx(fmt.Sprintf("S%d", i), native, "100", meme, "9", meme+":5000, 700"+native))
	}
	summary, err := p.ProcessBlock(ctx, blockAt(101, txs...))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Flushes)
	assert.Equal(t, 5, summary.Trades)
	assert.Len(t, store.Trades(), 5)
}

func TestProcessBlockTaskFailures(t *testing.T) {
	ctx := context.Background()
	block := blockAt(100, createPairTx(), swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native))

	store := memory.New()
	strict := newPipeline(t, store, failingTrades{store}, Config{})
	summary, err := strict.ProcessBlock(ctx, block)
	require.ErrorIs(t, err, ErrTaskFailures)
	assert.Equal(t, 1, summary.Failed)
	assert.Len(t, store.Pools(), 1)

	other := memory.New()
	tolerant := newPipeline(t, other, failingTrades{other}, Config{TolerateTaskFailures: true})
	summary, err = tolerant.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
}

func TestProcessBlockNonNativeQuoteHasNoBars(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	create := model.Tx{Hash: "CREATE", Events: []model.Event{
		ev("wasm",
			"_contract_address", factory, "action", "create_pair", "pair", "uatom-uosmo",
			"_contract_address", factory, "action", "register", "pair_contract_addr", pair),
	}}
	swap := swapTx("SWAP", "uosmo", "100", "uatom", "9", "uatom:5000, 700uosmo")
	_, err := p.ProcessBlock(ctx, blockAt(100, create, swap))
	require.NoError(t, err)

	require.Len(t, store.Trades(), 1)
	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestProcessBlockRetryAfterFailedSwapWriteKeepsBar(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	writer := &flakySwaps{Store: store, fails: 1}
	p := newPipeline(t, store, writer, Config{})

	block := blockAt(100, createPairTx(), swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native))
	_, err := p.ProcessBlock(ctx, block)
	require.ErrorIs(t, err, ErrTaskFailures)
	assert.Empty(t, store.Trades())

	summary, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Trades)

	assert.Len(t, store.Trades(), 1)
	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, int64(1), bar.Trades)
}

func TestProcessBlockWithdrawRecordsShareAsReturn(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	withdraw := model.Tx{Hash: "WITHDRAW", Events: []model.Event{
		ev("message", "sender", "zig1carol", "msg_index", "0"),
		ev("wasm", "_contract_address", pair, "action", "withdraw_liquidity", "msg_index", "0",
			"withdrawn_share", "99", "refund_assets", "10"+meme+", 2"+native),
	}}
	provide := model.Tx{Hash: "PROVIDE", Events: []model.Event{
		ev("wasm", "_contract_address", pair, "action", "provide_liquidity", "msg_index", "0",
			"share", "42", "assets", "100"+meme+", 20"+native),
	}}
	_, err := p.ProcessBlock(ctx, blockAt(100, createPairTx(), withdraw, provide))
	require.NoError(t, err)

	byHash := map[string]model.Trade{}
	for _, tr := range store.Trades() {
		byHash[tr.TxHash] = tr
	}
	require.Len(t, byHash, 2)

	w := byHash["WITHDRAW"]
	assert.Equal(t, model.ActionWithdraw, w.Action)
	assert.Equal(t, model.DirectionWithdraw, w.Direction)
	assert.Equal(t, "99", w.ReturnAmount)
	assert.Empty(t, w.OfferAmount)
	assert.Equal(t, "zig1carol", w.Signer)

	pr := byHash["PROVIDE"]
	assert.Equal(t, model.ActionProvide, pr.Action)
	assert.Equal(t, "42", pr.ReturnAmount)

	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestProcessBlockReservesOrderAcrossLargeTxIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p := newPipeline(t, store, nil, Config{})

	_, err := p.ProcessBlock(ctx, blockAt(100, createPairTx()))
	require.NoError(t, err)

	late := swapTx("LATE", native, "100", meme, "9", meme+":4000, 800"+native)
	late.Index = 1500
	_, err = p.ProcessBlock(ctx, model.Block{Height: 101, Time: blockTime, Txs: []model.Tx{late}})
	require.NoError(t, err)

	next := swapTx("NEXT", native, "100", meme, "9", meme+":3000, 900"+native)
	next.Index = 5
	_, err = p.ProcessBlock(ctx, model.Block{Height: 102, Time: blockTime, Txs: []model.Tx{next}})
	require.NoError(t, err)

	state, err := store.PoolState(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, int64(102), state.Position.Height)
	reserve, _ := state.Reserve(native)
	assert.Equal(t, "900", reserve)

	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, model.Position{Height: 102, TxIndex: 5}, bar.CloseAt)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("0.3")), bar.Close.String())
}

type exponentEnricher struct {
	store     *memory.Store
	exponents map[string]int32
}

func (e exponentEnricher) Enrich(ctx context.Context, denom string) error {
	exp, ok := e.exponents[denom]
	if !ok {
		exp = model.DefaultExponent
	}
	_, err := e.store.UpsertToken(ctx, model.Token{Denom: denom, Exponent: exp})
	return err
}

func TestProcessBlockPricesWithEnrichedExponents(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	enricher := exponentEnricher{store: store, exponents: map[string]int32{meme: 8}}
	p := newPipeline(t, store, nil, Config{}, WithMetadata(metadata.NewQueue(enricher, 0, nil)))

	// the pool is cached at creation, before its tokens are enriched
	_, err := p.ProcessBlock(ctx, blockAt(100, createPairTx()))
	require.NoError(t, err)

	_, err = p.ProcessBlock(ctx, blockAt(101, swapTx("SWAP", native, "100", meme, "9", meme+":5000, 700"+native)))
	require.NoError(t, err)

	bar, err := store.LatestBar(ctx, store.Pools()[0].ID)
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.True(t, bar.Close.Equal(decimal.RequireFromString("14")), bar.Close.String())
	assert.True(t, bar.Volume.Equal(decimal.RequireFromString("0.0001")), bar.Volume.String())
}
