package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"ammScope/internal/model"
)

// Store provides Postgres persistence for pools, trades, reserves and bars.
// Numeric columns are written from text parameters and read back as text.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const poolColumns = `id, pair_address, base_denom, quote_denom, pair_type, factory_address,
	created_height, created_at, created_tx_hash, signer`

func scanPool(row pgx.Row) (model.Pool, error) {
	var p model.Pool
	err := row.Scan(&p.ID, &p.Address, &p.BaseDenom, &p.QuoteDenom, &p.PairType, &p.Factory,
		&p.CreatedHeight, &p.CreatedAt, &p.CreatedTxHash, &p.Signer)
	return p, err
}

// UpsertPool inserts the pool if its address is new and returns the stored row.
func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) (model.Pool, error) {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO pools (
			pair_address, base_denom, quote_denom, pair_type, factory_address,
			created_height, created_at, created_tx_hash, signer
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (pair_address) DO NOTHING
	`,
		pool.Address,
		pool.BaseDenom,
		pool.QuoteDenom,
		pool.PairType,
		pool.Factory,
		pool.CreatedHeight,
		pool.CreatedAt.UTC(),
		pool.CreatedTxHash,
		pool.Signer,
	)
	batch.Queue(`SELECT `+poolColumns+` FROM pools WHERE pair_address = $1`, pool.Address)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	if _, err := br.Exec(); err != nil {
		return model.Pool{}, fmt.Errorf("insert pool %s: %w", pool.Address, err)
	}
	stored, err := scanPool(br.QueryRow())
	if err != nil {
		return model.Pool{}, fmt.Errorf("read pool %s: %w", pool.Address, err)
	}
	return stored, nil
}

func (s *Store) PoolByAddress(ctx context.Context, address string) (*model.Pool, error) {
	p, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE pair_address = $1`, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) PoolsByBase(ctx context.Context, denom, quoteDenom string) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE base_denom = $1 AND quote_denom = $2
		ORDER BY id
	`, denom, quoteDenom)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertToken(ctx context.Context, token model.Token) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (denom, exponent, symbol, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (denom) DO NOTHING
	`, token.Denom, token.Exponent, token.Symbol, token.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Tokens(ctx context.Context, denoms []string) (map[string]model.Token, error) {
	out := make(map[string]model.Token, len(denoms))
	if len(denoms) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT denom, exponent, symbol, name FROM tokens WHERE denom = ANY($1)`, denoms)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Token
		if err := rows.Scan(&t.Denom, &t.Exponent, &t.Symbol, &t.Name); err != nil {
			return nil, err
		}
		out[t.Denom] = t
	}
	return out, rows.Err()
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertTrade appends the trade unless its natural key exists.
func (s *Store) InsertTrade(ctx context.Context, t model.Trade) (bool, error) {
	return insertTrade(ctx, s.pool, t)
}

// RecordSwap inserts the trade and merges its bar in one transaction, so a
// failed bar write leaves no trade behind and the retry writes both.
func (s *Store) RecordSwap(ctx context.Context, t model.Trade, u model.BarUpdate) (bool, error) {
	var inserted bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if inserted, err = insertTrade(ctx, tx, t); err != nil || !inserted {
			return err
		}
		return upsertBar(ctx, tx, u)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func insertTrade(ctx context.Context, q execer, t model.Trade) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO trades (
			tx_hash, pool_id, msg_index, tx_index, action, direction,
			offer_denom, offer_amount, ask_denom, return_amount,
			reserve1_denom, reserve1_amount, reserve2_denom, reserve2_amount,
			signer, is_router, height, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			NULLIF($7, ''), NULLIF($8::text, '')::numeric, NULLIF($9, ''), NULLIF($10::text, '')::numeric,
			NULLIF($11, ''), NULLIF($12::text, '')::numeric, NULLIF($13, ''), NULLIF($14::text, '')::numeric,
			NULLIF($15, ''), $16, $17, $18
		)
		ON CONFLICT (tx_hash, pool_id, msg_index) DO NOTHING
	`,
		t.TxHash, t.PoolID, t.MsgIndex, t.TxIndex, string(t.Action), string(t.Direction),
		t.OfferDenom, t.OfferAmount, t.AskDenom, t.ReturnAmount,
		t.Reserve1Denom, t.Reserve1Amount, t.Reserve2Denom, t.Reserve2Amount,
		t.Signer, t.IsRouter, t.Height, t.Time.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert trade %s/%d: %w", t.TxHash, t.MsgIndex, err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertPoolState overwrites reserves unless the stored row comes from a later chain position.
func (s *Store) UpsertPoolState(ctx context.Context, st model.PoolState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_state (
			pool_id, base_denom, quote_denom,
			reserve1_denom, reserve1_amount, reserve2_denom, reserve2_amount,
			height, tx_index, msg_index, updated_at
		) VALUES (
			$1, $2, $3,
			NULLIF($4, ''), NULLIF($5::text, '')::numeric, NULLIF($6, ''), NULLIF($7::text, '')::numeric,
			$8, $9, $10, $11
		)
		ON CONFLICT (pool_id) DO UPDATE SET
			reserve1_denom = EXCLUDED.reserve1_denom,
			reserve1_amount = EXCLUDED.reserve1_amount,
			reserve2_denom = EXCLUDED.reserve2_denom,
			reserve2_amount = EXCLUDED.reserve2_amount,
			height = EXCLUDED.height,
			tx_index = EXCLUDED.tx_index,
			msg_index = EXCLUDED.msg_index,
			updated_at = EXCLUDED.updated_at
		WHERE (pool_state.height, pool_state.tx_index, pool_state.msg_index)
			<= (EXCLUDED.height, EXCLUDED.tx_index, EXCLUDED.msg_index)
	`,
		st.PoolID, st.BaseDenom, st.QuoteDenom,
		st.Reserve1Denom, st.Reserve1Amount, st.Reserve2Denom, st.Reserve2Amount,
		st.Position.Height, st.Position.TxIndex, st.Position.MsgIndex, st.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert pool state %d: %w", st.PoolID, err)
	}
	return nil
}

func (s *Store) PoolState(ctx context.Context, poolID int64) (*model.PoolState, error) {
	var st model.PoolState
	err := s.pool.QueryRow(ctx, `
		SELECT pool_id, base_denom, quote_denom,
			COALESCE(reserve1_denom, ''), COALESCE(reserve1_amount::text, ''),
			COALESCE(reserve2_denom, ''), COALESCE(reserve2_amount::text, ''),
			height, tx_index, msg_index, updated_at
		FROM pool_state WHERE pool_id = $1
	`, poolID).Scan(
		&st.PoolID, &st.BaseDenom, &st.QuoteDenom,
		&st.Reserve1Denom, &st.Reserve1Amount, &st.Reserve2Denom, &st.Reserve2Amount,
		&st.Position.Height, &st.Position.TxIndex, &st.Position.MsgIndex, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &st, nil
}

// UpsertOHLCV1m merges a trade into its minute bar. The earliest chain position
// sets open and the latest sets close; volume and count accumulate.
func (s *Store) UpsertOHLCV1m(ctx context.Context, u model.BarUpdate) error {
	return upsertBar(ctx, s.pool, u)
}

// SET expressions read the stored row, so each position column repeats the
// comparison that decides its price.
func upsertBar(ctx context.Context, q execer, u model.BarUpdate) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ohlcv_1m (
			pool_id, bucket_start, open, high, low, close, volume_native, trade_count,
			open_height, open_tx_index, open_msg_index, close_height, close_tx_index, close_msg_index
		) VALUES (
			$1, $2, $3::text::numeric, $3::text::numeric, $3::text::numeric, $3::text::numeric,
			$4::text::numeric, $5, $6, $7, $8, $6, $7, $8
		)
		ON CONFLICT (pool_id, bucket_start) DO UPDATE SET
			open = CASE WHEN `+earlierOpen+` THEN EXCLUDED.open ELSE ohlcv_1m.open END,
			open_height = CASE WHEN `+earlierOpen+` THEN EXCLUDED.open_height ELSE ohlcv_1m.open_height END,
			open_tx_index = CASE WHEN `+earlierOpen+` THEN EXCLUDED.open_tx_index ELSE ohlcv_1m.open_tx_index END,
			open_msg_index = CASE WHEN `+earlierOpen+` THEN EXCLUDED.open_msg_index ELSE ohlcv_1m.open_msg_index END,
			close = CASE WHEN `+laterClose+` THEN EXCLUDED.close ELSE ohlcv_1m.close END,
			close_height = CASE WHEN `+laterClose+` THEN EXCLUDED.close_height ELSE ohlcv_1m.close_height END,
			close_tx_index = CASE WHEN `+laterClose+` THEN EXCLUDED.close_tx_index ELSE ohlcv_1m.close_tx_index END,
			close_msg_index = CASE WHEN `+laterClose+` THEN EXCLUDED.close_msg_index ELSE ohlcv_1m.close_msg_index END,
			high = GREATEST(ohlcv_1m.high, EXCLUDED.high),
			low = LEAST(ohlcv_1m.low, EXCLUDED.low),
			volume_native = ohlcv_1m.volume_native + EXCLUDED.volume_native,
			trade_count = ohlcv_1m.trade_count + EXCLUDED.trade_count
	`,
		u.PoolID,
		u.Bucket.UTC().Truncate(time.Minute),
		u.Price.String(),
		u.Volume.String(),
		u.Trades,
		u.Position.Height,
		u.Position.TxIndex,
		u.Position.MsgIndex,
	)
	if err != nil {
		return fmt.Errorf("upsert ohlcv pool %d: %w", u.PoolID, err)
	}
	return nil
}

const (
	earlierOpen = `(EXCLUDED.open_height, EXCLUDED.open_tx_index, EXCLUDED.open_msg_index)
		< (ohlcv_1m.open_height, ohlcv_1m.open_tx_index, ohlcv_1m.open_msg_index)`
	laterClose = `(EXCLUDED.close_height, EXCLUDED.close_tx_index, EXCLUDED.close_msg_index)
		>= (ohlcv_1m.close_height, ohlcv_1m.close_tx_index, ohlcv_1m.close_msg_index)`
)

const barColumns = `pool_id, bucket_start, open::text, high::text, low::text, close::text,
	volume_native::text, trade_count,
	open_height, open_tx_index, open_msg_index, close_height, close_tx_index, close_msg_index`

func scanBar(row pgx.Row) (model.Bar, error) {
	var (
		b                            model.Bar
		open, high, low, closeP, vol string
	)
	if err := row.Scan(&b.PoolID, &b.Bucket, &open, &high, &low, &closeP, &vol, &b.Trades,
		&b.OpenAt.Height, &b.OpenAt.TxIndex, &b.OpenAt.MsgIndex,
		&b.CloseAt.Height, &b.CloseAt.TxIndex, &b.CloseAt.MsgIndex,
	); err != nil {
		return model.Bar{}, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, closeP}, {&b.Volume, vol}} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return model.Bar{}, fmt.Errorf("parse bar numeric %q: %w", f.src, err)
		}
		*f.dst = d
	}
	b.Bucket = b.Bucket.UTC()
	return b, nil
}

func (s *Store) Bars(ctx context.Context, poolIDs []int64, from, to time.Time) ([]model.Bar, error) {
	if len(poolIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+barColumns+` FROM ohlcv_1m
		WHERE pool_id = ANY($1) AND bucket_start >= $2 AND bucket_start < $3
		ORDER BY bucket_start, pool_id
	`, poolIDs, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) LastBarBefore(ctx context.Context, poolIDs []int64, t time.Time) (*model.Bar, error) {
	if len(poolIDs) == 0 {
		return nil, nil
	}
	b, err := scanBar(s.pool.QueryRow(ctx, `
		SELECT `+barColumns+` FROM ohlcv_1m
		WHERE pool_id = ANY($1) AND bucket_start < $2
		ORDER BY bucket_start DESC, close_height DESC, close_tx_index DESC, close_msg_index DESC
		LIMIT 1
	`, poolIDs, t.UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) LatestBar(ctx context.Context, poolID int64) (*model.Bar, error) {
	b, err := scanBar(s.pool.QueryRow(ctx, `
		SELECT `+barColumns+` FROM ohlcv_1m
		WHERE pool_id = $1
		ORDER BY bucket_start DESC
		LIMIT 1
	`, poolID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) TradesByTx(ctx context.Context, txHash string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.pool_id, p.pair_address, t.action, t.direction,
			COALESCE(t.offer_denom, ''), COALESCE(t.offer_amount::text, ''),
			COALESCE(t.ask_denom, ''), COALESCE(t.return_amount::text, ''),
			COALESCE(t.reserve1_denom, ''), COALESCE(t.reserve1_amount::text, ''),
			COALESCE(t.reserve2_denom, ''), COALESCE(t.reserve2_amount::text, ''),
			COALESCE(t.signer, ''), t.is_router, t.height, t.tx_hash, t.tx_index, t.msg_index, t.created_at
		FROM trades t JOIN pools p ON p.id = t.pool_id
		WHERE t.tx_hash = $1
		ORDER BY t.msg_index, t.pool_id
	`, txHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Trade
	for rows.Next() {
		var (
			t                 model.Trade
			action, direction string
		)
		if err := rows.Scan(
			&t.PoolID, &t.PoolAddress, &action, &direction,
			&t.OfferDenom, &t.OfferAmount, &t.AskDenom, &t.ReturnAmount,
			&t.Reserve1Denom, &t.Reserve1Amount, &t.Reserve2Denom, &t.Reserve2Amount,
			&t.Signer, &t.IsRouter, &t.Height, &t.TxHash, &t.TxIndex, &t.MsgIndex, &t.Time,
		); err != nil {
			return nil, err
		}
		t.Action = model.Action(action)
		t.Direction = model.Direction(direction)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadCursor returns the last processed height for a name.
func (s *Store) LoadCursor(ctx context.Context, name string) (int64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("cursor name required")
	}
	var height int64
	row := s.pool.QueryRow(ctx, `SELECT last_height FROM indexer_state WHERE name = $1`, name)
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return height, true, nil
}

// SaveCursor upserts the last processed height for a name.
func (s *Store) SaveCursor(ctx context.Context, name string, height int64) error {
	if name == "" {
		return fmt.Errorf("cursor name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_height, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_height = EXCLUDED.last_height, updated_at = now()
	`, name, height)
	return err
}
