package curve

import (
	"github.com/holiman/uint256"

	"liquidityEngine/internal/fixed"
)

// AssimilateLiq folds collected swap fees into the curve as ambient
// liquidity growth. Fees paid in the base token push the price root up;
// quote fees pull it down. A no-op when the curve carries no liquidity.
//
// The growth inflator is capped below 1.0, i.e. a single call can never
// more than double liquidity. Callers must never pass fees exceeding the
// virtual reserve; doing so fails the whole transaction.
func AssimilateLiq(c *CurveState, feesPaid *uint256.Int, feesInBase bool) error {
	liq, err := ActiveLiquidity(c)
	if err != nil {
		return err
	}
	if liq.IsZero() || feesPaid.IsZero() {
		return nil
	}

	feesToLiq, err := shaveForPrecision(liq, c.PriceRoot, feesPaid, feesInBase)
	if err != nil {
		return err
	}
	if feesToLiq.IsZero() {
		return nil
	}

	inflator, err := calcLiqInflator(liq, c.PriceRoot, feesToLiq, feesInBase)
	if err != nil {
		return err
	}
	if inflator == 0 {
		return nil
	}

	return stepToLiquidity(c, inflator, feesInBase)
}

// calcLiqInflator converts a fee amount into a Q16.48 growth rate against
// the virtual reserve of the fee-paying side.
func calcLiqInflator(liq, price, fees *uint256.Int, feesInBase bool) (uint64, error) {
	reserve, err := ReserveAtPrice(liq, price, feesInBase)
	if err != nil {
		return 0, err
	}
	growth, err := fixed.CompoundDivide(fees, reserve)
	if err != nil {
		return 0, err
	}
	return fixed.ApproxSqrtCompound(growth)
}

// shaveForPrecision subtracts a small precision buffer from the fees before
// conversion, capped at twice the one-unit price-precision token buffer.
// This keeps the curve from registering growth its collateral cannot back.
func shaveForPrecision(liq, price, fees *uint256.Int, feesInBase bool) (*uint256.Int, error) {
	buffer, err := PriceToTokenPrecision(liq, price, feesInBase)
	if err != nil {
		return nil, err
	}
	buffer.Lsh(buffer, 1)

	if fees.Cmp(buffer) <= 0 {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(fees, buffer), nil
}

// stepToLiquidity applies a growth inflator to the curve: the price root
// shifts in favor of the fee-paying side, the seed deflator compounds, and
// the concentrated-liquidity share of rewards is converted into fresh
// ambient seeds credited against ConcGrowth.
func stepToLiquidity(c *CurveState, inflator uint64, feesInBase bool) error {
	price, err := fixed.CompoundPrice(c.PriceRoot, inflator, feesInBase)
	if err != nil {
		return err
	}
	c.PriceRoot = price

	newDeflator := fixed.CompoundStack(c.SeedDeflator, inflator)
	c.SeedDeflator = newDeflator

	if c.ConcLiq.IsZero() {
		return nil
	}

	// Rewards are deflated by the post-step deflator so concentrated
	// positions never claim the growth already embedded in ambient seeds.
	concInflator := fixed.CompoundShrink(inflator, newDeflator)

	concSeeds := new(uint256.Int).Mul(c.ConcLiq, uint256.NewInt(concInflator))
	concSeeds.Rsh(concSeeds, 48)
	concSeeds, err = fixed.CheckUint128(concSeeds)
	if err != nil {
		return err
	}

	c.ConcGrowth += roundDownConcRewards(concInflator, concSeeds, c.ConcLiq)

	seeds := new(uint256.Int).Add(c.AmbientSeeds, concSeeds)
	seeds, err = fixed.CheckUint128(seeds)
	if err != nil {
		return err
	}
	c.AmbientSeeds = seeds
	return nil
}

// roundDownConcRewards re-derives the growth rate implied by the seeds
// actually created. The result never exceeds the raw inflator, so reward
// claims can never burn more seeds than exist.
func roundDownConcRewards(concInflator uint64, concSeeds, concLiq *uint256.Int) uint64 {
	implied := new(uint256.Int).Lsh(concSeeds, 48)
	implied.Div(implied, concLiq)
	if !implied.IsUint64() {
		return concInflator
	}
	if rate := implied.Uint64(); rate < concInflator {
		return rate
	}
	return concInflator
}
