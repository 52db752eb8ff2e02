package model

import "fmt"

// Directive codes accepted by the replay runner.
const (
	CodeInitPool     = "init"
	CodeSwap         = "swap"
	CodeMintAmbient  = "mint_ambient"
	CodeBurnAmbient  = "burn_ambient"
	CodeMintRange    = "mint_range"
	CodeBurnRange    = "burn_range"
	CodeHarvest      = "harvest"
	CodeMintKnockout = "mint_knockout"
	CodeBurnKnockout = "burn_knockout"
	CodeClaim        = "claim_knockout"
	CodeRecover      = "recover_knockout"
)

// Directive is one replayable engine command. Numeric amounts and prices
// are decimal strings since they exceed 64 bits; Pool carries the spec the
// engine reads immutably for the call.
type Directive struct {
	Seq   uint64   `json:"seq"`
	Time  uint64   `json:"time"`
	Code  string   `json:"code"`
	Base  string   `json:"base"`
	Quote string   `json:"quote"`
	Idx   uint64   `json:"pool_idx"`
	Pool  PoolSpec `json:"pool"`
	Owner string   `json:"owner,omitempty"`

	// Swap fields.
	IsBuy      bool   `json:"is_buy,omitempty"`
	InBaseQty  bool   `json:"in_base_qty,omitempty"`
	Qty        string `json:"qty,omitempty"`
	LimitPrice string `json:"limit_price,omitempty"`

	// Liquidity fields.
	Price   string `json:"price,omitempty"`
	Liq     string `json:"liq,omitempty"`
	BidTick int32  `json:"bid_tick,omitempty"`
	AskTick int32  `json:"ask_tick,omitempty"`

	// Knockout fields.
	IsBid     bool     `json:"is_bid,omitempty"`
	Tick      int32    `json:"tick,omitempty"`
	PivotTime uint32   `json:"pivot_time,omitempty"`
	Root      string   `json:"root,omitempty"`
	Proof     []string `json:"proof,omitempty"`
}

// Validate performs the structural checks that do not need engine state.
func (d Directive) Validate() error {
	switch d.Code {
	case CodeInitPool, CodeSwap, CodeMintAmbient, CodeBurnAmbient,
		CodeMintRange, CodeBurnRange, CodeHarvest,
		CodeMintKnockout, CodeBurnKnockout, CodeClaim, CodeRecover:
	default:
		return fmt.Errorf("unknown directive code: %s", d.Code)
	}
	if err := d.Pool.Validate(); err != nil {
		return fmt.Errorf("pool spec: %w", err)
	}
	return nil
}
