// Package config loads the facilitator's immutable Config from the environment.
// The core never reads the environment itself; FromEnv is called once at the
// process edge and the resulting struct is threaded through by the caller.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
)

// weiPerEther is the scaling factor between a decimal ETH amount and wei.
var weiPerEther = big.NewFloat(1e18)

// Config is the facilitator's immutable runtime configuration.
type Config struct {
	EvmPrivateKeys []string `validate:"omitempty,dive,required"`
	SvmPrivateKey  string

	EvmRPCURL string
	SvmRPCURL string

	AllowedNetworks []x402.Network

	GasBalanceThresholdEvm float64 `validate:"gte=0"`
	GasBalanceThresholdSvm float64 `validate:"gte=0"`

	WalletPool walletpool.Config

	DefaultEvmNetwork x402.Network

	AllowLocalhostResources bool
}

// FromEnv builds a Config from the process environment, matching the variable names
// the facilitator's deployment surface documents (EVM_PRIVATE_KEY/FACILITATOR_WALLETS,
// SVM_PRIVATE_KEY, EVM_RPC_URL/SVM_RPC_URL, ALLOWED_NETWORKS, GAS_BALANCE_THRESHOLD_EVM/SVM,
// MAX_PENDING_PER_WALLET, HEALTH_CHECK_INTERVAL_MS, PENDING_TX_TIMEOUT_MS,
// WALLET_SELECTION_STRATEGY, MAX_RETRY_ATTEMPTS, RETRY_DELAY_MS, DEFAULT_EVM_NETWORK,
// ALLOW_LOCALHOST_RESOURCES).
func FromEnv() (*Config, error) {
	cfg := &Config{
		EvmPrivateKeys:          evmPrivateKeys(),
		SvmPrivateKey:           os.Getenv("SVM_PRIVATE_KEY"),
		EvmRPCURL:               os.Getenv("EVM_RPC_URL"),
		SvmRPCURL:               os.Getenv("SVM_RPC_URL"),
		AllowedNetworks:         parseNetworks(os.Getenv("ALLOWED_NETWORKS")),
		GasBalanceThresholdEvm:  envFloat("GAS_BALANCE_THRESHOLD_EVM", 0.01),
		GasBalanceThresholdSvm:  envFloat("GAS_BALANCE_THRESHOLD_SVM", 0.1),
		DefaultEvmNetwork:       x402.Network(envString("DEFAULT_EVM_NETWORK", string(x402.NetworkBase))),
		AllowLocalhostResources: envBool("ALLOW_LOCALHOST_RESOURCES", false),
		WalletPool: walletpool.Config{
			MaxPendingPerWallet:  envInt("MAX_PENDING_PER_WALLET", 3),
			HealthCheckInterval:  time.Duration(envInt("HEALTH_CHECK_INTERVAL_MS", 60_000)) * time.Millisecond,
			PendingTxTimeout:     time.Duration(envInt("PENDING_TX_TIMEOUT_MS", 300_000)) * time.Millisecond,
			SelectionStrategy:    walletpool.Strategy(envString("WALLET_SELECTION_STRATEGY", string(walletpool.StrategyHybrid))),
			MaxRetryAttempts:     envInt("MAX_RETRY_ATTEMPTS", 3),
			RetryDelay:           time.Duration(envInt("RETRY_DELAY_MS", 1_000)) * time.Millisecond,
			MinNativeBalanceWei:  etherToWei(envFloat("GAS_BALANCE_THRESHOLD_EVM", 0.01)),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func evmPrivateKeys() []string {
	if list := os.Getenv("FACILITATOR_WALLETS"); list != "" {
		return splitAndTrim(list)
	}
	if single := os.Getenv("EVM_PRIVATE_KEY"); single != "" {
		return []string{single}
	}
	return nil
}

func parseNetworks(list string) []x402.Network {
	if list == "" {
		return nil
	}
	parts := splitAndTrim(list)
	networks := make([]x402.Network, 0, len(parts))
	for _, p := range parts {
		networks = append(networks, x402.Network(p))
	}
	return networks
}

func splitAndTrim(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if v := strings.TrimSpace(r); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// etherToWei converts a decimal ether amount (e.g. 0.01) to the equivalent wei
// integer, used to turn GAS_BALANCE_THRESHOLD_EVM into the wallet pool's
// MinNativeBalanceWei health-gate threshold.
func etherToWei(ether float64) *big.Int {
	wei := new(big.Float).Mul(big.NewFloat(ether), weiPerEther)
	result, _ := wei.Int(nil)
	return result
}

// IsNetworkAllowed reports whether network passes the ALLOWED_NETWORKS allow-list.
// An empty allow-list means every configured network is allowed.
func (c *Config) IsNetworkAllowed(network x402.Network) bool {
	if len(c.AllowedNetworks) == 0 {
		return true
	}
	for _, allowed := range c.AllowedNetworks {
		if network == allowed || network.Match(allowed) {
			return true
		}
	}
	return false
}
