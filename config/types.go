package config

// Fees configures the optional mint and burn fees. Ratios are decimal
// fractions such as "0.005".
type Fees struct {
	MintFee   string `toml:"MintFee"`
	BurnFee   string `toml:"BurnFee"`
	Recipient string `toml:"Recipient"`
}

// Pauses halts ledger operation groups at startup. Operators can still toggle
// them at runtime through the admin API.
type Pauses struct {
	Accounts    bool `toml:"Accounts"`
	Collateral  bool `toml:"Collateral"`
	Pools       bool `toml:"Pools"`
	Markets     bool `toml:"Markets"`
	Delegation  bool `toml:"Delegation"`
	Issuance    bool `toml:"Issuance"`
	Liquidation bool `toml:"Liquidation"`
	Rewards     bool `toml:"Rewards"`
}

// Oracle seeds the static price oracle. Prices map collateral addresses to
// decimal USD prices.
type Oracle struct {
	MaxAgeSeconds uint64            `toml:"MaxAgeSeconds"`
	Prices        map[string]string `toml:"Prices"`
}

// Collateral registers or updates a collateral type. Ratios and amounts are
// decimals.
type Collateral struct {
	Address           string `toml:"Address"`
	IssuanceRatio     string `toml:"IssuanceRatio"`
	LiquidationRatio  string `toml:"LiquidationRatio"`
	LiquidationReward string `toml:"LiquidationReward"`
	MinDelegation     string `toml:"MinDelegation"`
	DepositingEnabled bool   `toml:"DepositingEnabled"`
}

// Pool is created on first start when missing.
type Pool struct {
	ID    string `toml:"ID"`
	Owner string `toml:"Owner"`
	Name  string `toml:"Name"`
}

// Config is the ledger parameter file.
type Config struct {
	DataDir           string       `toml:"DataDir"`
	Owner             string       `toml:"Owner"`
	MinLiquidityRatio string       `toml:"MinLiquidityRatio"`
	Fees              Fees         `toml:"Fees"`
	Pauses            Pauses       `toml:"Pauses"`
	Oracle            Oracle       `toml:"Oracle"`
	Collateral        []Collateral `toml:"Collateral"`
	Pools             []Pool       `toml:"Pools"`
}
