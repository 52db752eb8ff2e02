package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityEngine/internal/matcher"
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/storage"
)

// RunConfig holds runtime settings for the replay runner.
type RunConfig struct {
	InputPath         string
	BatchSize         int
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner replays a directive log through the engine and writes the event
// records to storage.
type Runner struct {
	cfg        RunConfig
	engine     *matcher.Sequencer
	storage    storage.Storage
	logger     *zap.Logger
	seen       map[uint64]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, engine *matcher.Sequencer, storageSink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		engine:     engine,
		storage:    storageSink,
		logger:     logger,
		seen:       make(map[uint64]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run executes the replay loop. Directives are applied in file order; a
// directive that fails engine validation aborts the run with its sequence
// number, leaving pool state at the last committed directive.
func (r *Runner) Run(ctx context.Context) error {
	if r.engine == nil {
		return fmt.Errorf("engine is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	resumeSeq := uint64(0)
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return err
		}
		if ok {
			resumeSeq = cp.LastProcessedSeq
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", resumeSeq))
		}
	}

	file, err := os.Open(r.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("open directive log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	batch := make([]model.EventRecord, 0, r.cfg.BatchSize)
	lastSeq := resumeSeq
	applied := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var dir model.Directive
		if err := json.Unmarshal(line, &dir); err != nil {
			return fmt.Errorf("parse directive: %w", err)
		}
		if dir.Seq <= resumeSeq || r.isDuplicate(dir.Seq) {
			continue
		}
		if err := dir.Validate(); err != nil {
			return fmt.Errorf("directive %d: %w", dir.Seq, err)
		}

		pool, result, err := r.apply(dir)
		if err != nil {
			return fmt.Errorf("directive %d (%s): %w", dir.Seq, dir.Code, err)
		}

		batch = append(batch, buildEventRecord(dir, pool, result))
		lastSeq = dir.Seq
		applied++

		if len(batch) >= r.cfg.BatchSize {
			if err := r.flush(ctx, batch, lastSeq); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read directive log: %w", err)
	}

	if len(batch) > 0 {
		if err := r.flush(ctx, batch, lastSeq); err != nil {
			return err
		}
	}

	r.logger.Info("replay complete", zap.Int("applied", applied), zap.Uint64("last_seq", lastSeq))
	return nil
}

// apply dispatches one directive to the engine.
func (r *Runner) apply(dir model.Directive) (common.Hash, *matcher.Result, error) {
	base, err := ParseAddress(dir.Base)
	if err != nil {
		return common.Hash{}, nil, err
	}
	quote, err := ParseAddress(dir.Quote)
	if err != nil {
		return common.Hash{}, nil, err
	}
	pool := model.PoolKey(base, quote, dir.Idx)

	var owner common.Address
	if dir.Owner != "" {
		owner, err = ParseAddress(dir.Owner)
		if err != nil {
			return common.Hash{}, nil, err
		}
	}

	result, err := r.dispatch(pool, owner, dir)
	return pool, result, err
}

func (r *Runner) dispatch(pool common.Hash, owner common.Address, dir model.Directive) (*matcher.Result, error) {
	switch dir.Code {
	case model.CodeInitPool:
		price, err := ParseAmount(dir.Price)
		if err != nil {
			return nil, err
		}
		return r.engine.InitPool(pool, dir.Pool, price)

	case model.CodeSwap:
		qty, err := ParseAmount(dir.Qty)
		if err != nil {
			return nil, err
		}
		limit, err := ParseOptAmount(dir.LimitPrice)
		if err != nil {
			return nil, err
		}
		return r.engine.Swap(pool, dir.Pool, dir.IsBuy, dir.InBaseQty, qty, limit, dir.Time)

	case model.CodeMintAmbient:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.MintAmbient(pool, dir.Pool, owner, liq, dir.Time)

	case model.CodeBurnAmbient:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.BurnAmbient(pool, dir.Pool, owner, liq, dir.Time)

	case model.CodeMintRange:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.MintRange(pool, dir.Pool, owner, dir.BidTick, dir.AskTick, liq, dir.Time)

	case model.CodeBurnRange:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.BurnRange(pool, dir.Pool, owner, dir.BidTick, dir.AskTick, liq, dir.Time)

	case model.CodeHarvest:
		return r.engine.Harvest(pool, dir.Pool, owner, dir.BidTick, dir.AskTick, dir.Time)

	case model.CodeMintKnockout:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.MintKnockout(pool, dir.Pool, owner, dir.IsBid, dir.Tick, liq, dir.Time)

	case model.CodeBurnKnockout:
		liq, err := ParseAmount(dir.Liq)
		if err != nil {
			return nil, err
		}
		return r.engine.BurnKnockout(pool, dir.Pool, owner, dir.IsBid, dir.Tick, liq, dir.Time)

	case model.CodeClaim:
		root, err := ParseAmount(dir.Root)
		if err != nil {
			return nil, err
		}
		proof, err := ParseProof(dir.Proof)
		if err != nil {
			return nil, err
		}
		return r.engine.ClaimKnockout(pool, dir.Pool, owner, dir.IsBid, dir.Tick, root, proof)

	case model.CodeRecover:
		return r.engine.RecoverKnockout(pool, dir.Pool, owner, dir.IsBid, dir.Tick, dir.PivotTime)

	default:
		return nil, fmt.Errorf("unknown directive code: %s", dir.Code)
	}
}

func (r *Runner) flush(ctx context.Context, batch []model.EventRecord, lastSeq uint64) error {
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		if err := r.storage.PutEventBatch(batch); err != nil {
			r.logger.Warn("store events failed", zap.Error(err), zap.Int("events", len(batch)))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store events: %w", err)
	}

	if r.checkpoint != nil {
		if err := r.checkpoint.Save(lastSeq); err != nil {
			return err
		}
	}

	r.logger.Info("batch complete", zap.Int("events", len(batch)), zap.Uint64("last_seq", lastSeq))
	return nil
}

func (r *Runner) isDuplicate(seq uint64) bool {
	if _, ok := r.seen[seq]; ok {
		return true
	}
	r.seen[seq] = struct{}{}
	return false
}

func buildEventRecord(dir model.Directive, pool common.Hash, result *matcher.Result) model.EventRecord {
	record := model.EventRecord{
		Seq:          dir.Seq,
		Time:         dir.Time,
		Code:         dir.Code,
		PoolHash:     pool.Hex(),
		BaseFlow:     result.BaseFlow.String(),
		QuoteFlow:    result.QuoteFlow.String(),
		PriceRoot:    result.PriceRoot.Dec(),
		PriceTick:    result.PriceTick,
		PriceDisplay: model.DisplayPrice(result.PriceRoot),
		AmbientSeeds: result.AmbientSeeds.Dec(),
		ConcLiq:      result.ConcLiq.Dec(),
	}
	if !result.ProtoFee.IsZero() {
		record.ProtoFee = result.ProtoFee.Dec()
	}
	return record
}
