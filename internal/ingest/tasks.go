package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ammScope/internal/amount"
	"ammScope/internal/events"
	"ammScope/internal/model"
)

func (r *blockRun) createPool(ctx context.Context, a events.Action) error {
	if a.Pool == "" || a.BaseDenom == "" || a.QuoteDenom == "" {
		r.p.logger.Warn("create_pair without pool or assets",
			zap.String("tx_hash", a.TxHash), zap.Int("msg_index", a.MsgIndex))
		r.skip()
		return nil
	}

	stored, err := r.p.store.UpsertPool(ctx, model.Pool{
		Address:       a.Pool,
		BaseDenom:     a.BaseDenom,
		QuoteDenom:    a.QuoteDenom,
		PairType:      a.PairType,
		Factory:       a.Contract,
		CreatedHeight: a.Height,
		CreatedAt:     a.Time,
		CreatedTxHash: a.TxHash,
		Signer:        a.Signer,
	})
	if err != nil {
		return fmt.Errorf("upsert pool %s: %w", a.Pool, err)
	}
	if err := r.p.dir.Remember(ctx, stored); err != nil {
		r.p.logger.Warn("cache new pool failed", zap.String("pool", a.Pool), zap.Error(err))
	}
	return nil
}

func (r *blockRun) recordTrade(ctx context.Context, a events.Action) error {
	pool, err := r.p.dir.Lookup(ctx, a.Contract)
	if err != nil {
		return err
	}
	if pool == nil {
		r.p.logger.Warn("action on unknown pool",
			zap.String("pool", a.Contract),
			zap.String("kind", string(a.Kind)),
			zap.Int64("height", a.Height),
			zap.String("tx_hash", a.TxHash))
		r.skip()
		return nil
	}

	legs := a.Reserves.Resolve()
	trade := buildTrade(*pool, a, legs)

	var (
		inserted bool
		update   model.BarUpdate
		hasBar   bool
	)
	if a.Kind == events.KindSwap {
		update, hasBar = barUpdate(*pool, a, legs)
	}
	if hasBar {
		inserted, err = r.p.store.RecordSwap(ctx, trade, update)
	} else {
		inserted, err = r.p.store.InsertTrade(ctx, trade)
	}
	if err != nil {
		return fmt.Errorf("record trade: %w", err)
	}

	if completeLegs(legs) {
		if err := r.p.store.UpsertPoolState(ctx, model.PoolState{
			PoolID:         pool.ID,
			BaseDenom:      pool.BaseDenom,
			QuoteDenom:     pool.QuoteDenom,
			Reserve1Denom:  legs[0].Denom,
			Reserve1Amount: legs[0].Amount,
			Reserve2Denom:  legs[1].Denom,
			Reserve2Amount: legs[1].Amount,
			Position:       a.Position(),
			UpdatedAt:      a.Time,
		}); err != nil {
			return fmt.Errorf("upsert pool state: %w", err)
		}
	}

	if !inserted {
		return nil
	}

	r.mu.Lock()
	r.trades = append(r.trades, trade)
	r.mu.Unlock()
	r.touch(*pool)
	return nil
}

func buildTrade(pool model.Pool, a events.Action, legs [2]events.Leg) model.Trade {
	t := model.Trade{
		PoolID:         pool.ID,
		PoolAddress:    pool.Address,
		OfferDenom:     a.OfferDenom,
		OfferAmount:    a.OfferAmount,
		AskDenom:       a.AskDenom,
		ReturnAmount:   a.ReturnAmount,
		Reserve1Denom:  legs[0].Denom,
		Reserve1Amount: legs[0].Amount,
		Reserve2Denom:  legs[1].Denom,
		Reserve2Amount: legs[1].Amount,
		Signer:         a.Signer,
		IsRouter:       a.IsRouter,
		Height:         a.Height,
		TxHash:         a.TxHash,
		TxIndex:        a.TxIndex,
		MsgIndex:       a.MsgIndex,
		Time:           a.Time,
	}

	switch a.Kind {
	case events.KindSwap:
		t.Action = model.ActionSwap
		t.Direction = direction(pool, a)
	case events.KindProvide:
		t.Action = model.ActionProvide
		t.Direction = model.DirectionProvide
		t.ReturnAmount = a.Share
	case events.KindWithdraw:
		t.Action = model.ActionWithdraw
		t.Direction = model.DirectionWithdraw
		t.ReturnAmount = a.Share
	}
	return t
}

// direction is buy when the quote asset goes into the pool.
func direction(pool model.Pool, a events.Action) model.Direction {
	switch {
	case a.OfferDenom == pool.QuoteDenom:
		return model.DirectionBuy
	case a.OfferDenom == pool.BaseDenom:
		return model.DirectionSell
	case a.AskDenom == pool.BaseDenom:
		return model.DirectionBuy
	}
	return model.DirectionSell
}

func completeLegs(legs [2]events.Leg) bool {
	for _, leg := range legs {
		if leg.Denom == "" || leg.Amount == "" {
			return false
		}
	}
	return true
}

func legAmount(legs [2]events.Leg, denom string) string {
	for _, leg := range legs {
		if leg.Denom == denom {
			return leg.Amount
		}
	}
	return ""
}

// barUpdate prices a swap from the post-trade reserves. Only pools quoted in
// the native denom produce bars.
func barUpdate(pool model.Pool, a events.Action, legs [2]events.Leg) (model.BarUpdate, bool) {
	if !pool.QuoteIsNative {
		return model.BarUpdate{}, false
	}
	price, ok := amount.Price(
		legAmount(legs, pool.BaseDenom), pool.BaseExponent,
		legAmount(legs, pool.QuoteDenom), pool.QuoteExponent,
	)
	if !ok {
		return model.BarUpdate{}, false
	}

	var quoteRaw string
	switch pool.QuoteDenom {
	case a.OfferDenom:
		quoteRaw = a.OfferAmount
	case a.AskDenom:
		quoteRaw = a.ReturnAmount
	}
	// An unknown quote leg counts as zero volume.
	volume, _ := amount.Display(quoteRaw, pool.QuoteExponent)

	return model.BarUpdate{
		PoolID:   pool.ID,
		Bucket:   a.Time.UTC().Truncate(time.Minute),
		Price:    price,
		Volume:   volume,
		Trades:   1,
		Position: a.Position(),
	}, true
}
