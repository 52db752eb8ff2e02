package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityEngine/internal/model"
)

// Store provides Postgres persistence for replay output and pool snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEventBatch inserts or updates replay event records keyed by sequence.
func (s *Store) PutEventBatch(events []model.EventRecord) error {
	return s.UpsertEvents(context.Background(), events)
}

// UpsertEvents inserts or updates replay event records.
func (s *Store) UpsertEvents(ctx context.Context, events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO engine_events (
				seq, event_time, code, pool_hash, base_flow, quote_flow, proto_fee,
				price_root, price_tick, price_display, ambient_seeds, conc_liq,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now())
			ON CONFLICT (seq)
			DO UPDATE SET
				event_time = EXCLUDED.event_time,
				code = EXCLUDED.code,
				pool_hash = EXCLUDED.pool_hash,
				base_flow = EXCLUDED.base_flow,
				quote_flow = EXCLUDED.quote_flow,
				proto_fee = EXCLUDED.proto_fee,
				price_root = EXCLUDED.price_root,
				price_tick = EXCLUDED.price_tick,
				price_display = EXCLUDED.price_display,
				ambient_seeds = EXCLUDED.ambient_seeds,
				conc_liq = EXCLUDED.conc_liq,
				updated_at = now()
		`,
			int64(ev.Seq),
			int64(ev.Time),
			ev.Code,
			ev.PoolHash,
			ev.BaseFlow,
			ev.QuoteFlow,
			ev.ProtoFee,
			ev.PriceRoot,
			ev.PriceTick,
			ev.PriceDisplay,
			ev.AmbientSeeds,
			ev.ConcLiq,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertCurves inserts or updates per-pool curve snapshots.
func (s *Store) UpsertCurves(ctx context.Context, curves []model.CurveSnapshot) error {
	if len(curves) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range curves {
		batch.Queue(`
			INSERT INTO curve_states (
				pool_hash, price_root, ambient_seeds, conc_liq, seed_deflator, conc_growth,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,now(),now())
			ON CONFLICT (pool_hash)
			DO UPDATE SET
				price_root = EXCLUDED.price_root,
				ambient_seeds = EXCLUDED.ambient_seeds,
				conc_liq = EXCLUDED.conc_liq,
				seed_deflator = EXCLUDED.seed_deflator,
				conc_growth = EXCLUDED.conc_growth,
				updated_at = now()
		`,
			c.PoolHash,
			c.PriceRoot,
			c.AmbientSeeds,
			c.ConcLiq,
			int64(c.SeedDeflator),
			int64(c.ConcGrowth),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range curves {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// UpsertLevels inserts or updates book level snapshots. Levels torn down
// since the last snapshot must be deleted separately.
func (s *Store) UpsertLevels(ctx context.Context, levels []model.LevelSnapshot) error {
	if len(levels) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, lv := range levels {
		batch.Queue(`
			INSERT INTO book_levels (
				pool_hash, tick, bid_lots, ask_lots, fee_odometer, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,now(),now())
			ON CONFLICT (pool_hash, tick)
			DO UPDATE SET
				bid_lots = EXCLUDED.bid_lots,
				ask_lots = EXCLUDED.ask_lots,
				fee_odometer = EXCLUDED.fee_odometer,
				updated_at = now()
		`,
			lv.PoolHash,
			lv.Tick,
			lv.BidLots,
			lv.AskLots,
			int64(lv.FeeOdometer),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range levels {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns last_processed_seq for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq uint64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_seq FROM replay_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return seq, true, nil
}

// SaveState upserts last_processed_seq for a name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO replay_state (name, last_processed_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_seq = EXCLUDED.last_processed_seq, updated_at = now()
	`, name, seq)
	return err
}
