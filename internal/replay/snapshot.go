package replay

import (
	"liquidityEngine/internal/model"
	"liquidityEngine/internal/state"
)

// SnapshotPools flattens the keeper's committed state into persistable
// curve and book level records.
func SnapshotPools(keeper *state.Keeper) ([]model.CurveSnapshot, []model.LevelSnapshot) {
	pools := keeper.Pools()
	curves := make([]model.CurveSnapshot, 0, len(pools))
	levels := make([]model.LevelSnapshot, 0)

	for _, pool := range pools {
		ps := keeper.Peek(pool)
		if ps == nil || !ps.Curve.Initialized() {
			continue
		}

		curves = append(curves, model.CurveSnapshot{
			PoolHash:     pool.Hex(),
			PriceRoot:    ps.Curve.PriceRoot.Dec(),
			AmbientSeeds: ps.Curve.AmbientSeeds.Dec(),
			ConcLiq:      ps.Curve.ConcLiq.Dec(),
			SeedDeflator: ps.Curve.SeedDeflator,
			ConcGrowth:   ps.Curve.ConcGrowth,
		})

		for _, tick := range ps.Book.Ticks() {
			lv := ps.Book.Level(tick)
			levels = append(levels, model.LevelSnapshot{
				PoolHash:    pool.Hex(),
				Tick:        tick,
				BidLots:     lv.BidLots.Dec(),
				AskLots:     lv.AskLots.Dec(),
				FeeOdometer: lv.FeeOdometer,
			})
		}
	}
	return curves, levels
}
