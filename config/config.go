package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Uniswap V3 mainnet deployment defaults.
const (
	defaultRouter        = "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"
	defaultQuoter        = "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"
	defaultFactory       = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	defaultWrappedNative = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	defaultChainID       = 1
	defaultFeeTier       = 3000 // 0.3%
)

// Config holds the application configuration. It is passed explicitly to the
// components that need it; there is no process-wide instance.
type Config struct {
	RPCURL     string
	PrivateKey string
	ChainID    int64

	Router        string
	Quoter        string
	Factory       string
	WrappedNative string
	FeeTier       uint32

	SlippagePercent float64
	GasLimit        uint64 // 0 means estimate
}

// Load reads configuration from environment variables and an optional config
// file (.dex-trader.yaml in $HOME or the working directory).
func Load() (*Config, error) {
	viper.SetConfigName(".dex-trader")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("router", defaultRouter)
	viper.SetDefault("quoter", defaultQuoter)
	viper.SetDefault("factory", defaultFactory)
	viper.SetDefault("wrapped_native", defaultWrappedNative)
	viper.SetDefault("chain_id", defaultChainID)
	viper.SetDefault("fee_tier", defaultFeeTier)
	viper.SetDefault("slippage_percent", 0.5)

	viper.SetEnvPrefix("DEX_TRADER")
	viper.AutomaticEnv()

	// Config file is optional.
	_ = viper.ReadInConfig()

	cfg := &Config{
		RPCURL:          viper.GetString("rpc_url"),
		PrivateKey:      viper.GetString("private_key"),
		ChainID:         viper.GetInt64("chain_id"),
		Router:          viper.GetString("router"),
		Quoter:          viper.GetString("quoter"),
		Factory:         viper.GetString("factory"),
		WrappedNative:   viper.GetString("wrapped_native"),
		FeeTier:         viper.GetUint32("fee_tier"),
		SlippagePercent: viper.GetFloat64("slippage_percent"),
		GasLimit:        viper.GetUint64("gas_limit"),
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL not found. Please set DEX_TRADER_RPC_URL or create a .dex-trader.yaml config file")
	}

	return cfg, nil
}
