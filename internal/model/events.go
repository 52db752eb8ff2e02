package model

// EventRecord is the replay runner's per-directive output line. Flows are
// signed decimal strings: positive base/quote is owed to the pool,
// negative to the caller.
type EventRecord struct {
	Seq       uint64 `json:"seq"`
	Time      uint64 `json:"time"`
	Code      string `json:"code"`
	PoolHash  string `json:"pool_hash"`
	BaseFlow  string `json:"base_flow"`
	QuoteFlow string `json:"quote_flow"`
	ProtoFee  string `json:"proto_fee,omitempty"`

	// Post-operation curve observables.
	PriceRoot    string `json:"price_root"`
	PriceTick    int32  `json:"price_tick"`
	PriceDisplay string `json:"price_display,omitempty"`
	AmbientSeeds string `json:"ambient_seeds"`
	ConcLiq      string `json:"conc_liq"`
}

// CurveSnapshot is the persisted five-field curve record of one pool.
type CurveSnapshot struct {
	PoolHash     string `json:"pool_hash"`
	PriceRoot    string `json:"price_root"`
	AmbientSeeds string `json:"ambient_seeds"`
	ConcLiq      string `json:"conc_liq"`
	SeedDeflator uint64 `json:"seed_deflator"`
	ConcGrowth   uint64 `json:"conc_growth"`
}

// LevelSnapshot is the persisted record of one book level.
type LevelSnapshot struct {
	PoolHash    string `json:"pool_hash"`
	Tick        int32  `json:"tick"`
	BidLots     string `json:"bid_lots"`
	AskLots     string `json:"ask_lots"`
	FeeOdometer uint64 `json:"fee_odometer"`
}
