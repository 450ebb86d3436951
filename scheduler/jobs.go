package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/discovery"
	"github.com/x402-facilitator/facilitator/logging"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
)

// DiscoveryCleanupInterval is how often the facilitator purges soft-deleted
// discovery resources old enough to drop outright.
const DiscoveryCleanupInterval = 24 * time.Hour

// GasBalanceRefreshInterval is how often the facilitator re-reads every
// configured EVM wallet's native balance.
const GasBalanceRefreshInterval = 5 * time.Minute

// WalletHealthCheckInterval is how often the facilitator re-evaluates wallet
// health against the freshest balance and reaps stale pending-transaction slots.
const WalletHealthCheckInterval = 60 * time.Second

// GasBalanceRefreshJob polls pool's wallet addresses' native balances from
// chain and records them, so Pool.SetHealth's gating always reflects a
// recent on-chain read rather than the balance observed at startup.
func GasBalanceRefreshJob(pool *walletpool.Pool, chainClient chain.EvmChain) Job {
	return Job{
		Name:     "evm_gas_balance_refresh",
		Interval: GasBalanceRefreshInterval,
		Run: func(ctx context.Context) error {
			var firstErr error
			for _, address := range pool.Addresses() {
				balance, err := chainClient.NativeBalance(ctx, address)
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("refresh balance for %s: %w", address, err)
					}
					continue
				}
				pool.SetHealth(address, balance)
			}
			return firstErr
		},
	}
}

// WalletHealthCheckJob re-derives each wallet's health from its
// last-refreshed balance, reaps pending-transaction slots that have
// outlived the pool's PendingTxTimeout, and, for any wallet left with zero
// pending transactions, resyncs its nonce counter from chain rather than
// trusting a local count that may have drifted from a reap.
func WalletHealthCheckJob(pool *walletpool.Pool, chainClient chain.EvmChain, nonces *walletpool.NonceRegistry, logger logging.Logger) Job {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return Job{
		Name:     "evm_wallet_health_check",
		Interval: WalletHealthCheckInterval,
		Run: func(ctx context.Context) error {
			reaped := pool.ReapStale()
			for address, count := range reaped {
				logger.Warn("reaped stale pending evm transactions", map[string]any{"wallet": address, "count": count})
			}

			for _, address := range pool.Addresses() {
				pool.SetHealth(address, pool.Balance(address))

				if pool.PendingCount(address) != 0 {
					continue
				}
				seed, err := chainClient.PendingNonce(ctx, address)
				if err != nil {
					continue
				}
				nonces.Reset(address)
				nonces.SetIfHigher(address, seed)
			}
			return nil
		},
	}
}

// DiscoveryCleanupJob purges discovery resources that were soft-deleted more
// than 30 days ago, so the catalog's record store doesn't grow unbounded.
func DiscoveryCleanupJob(registry *discovery.Registry) Job {
	return Job{
		Name:     "discovery_cleanup",
		Interval: DiscoveryCleanupInterval,
		Run: func(ctx context.Context) error {
			_, err := registry.Cleanup(ctx)
			return err
		},
	}
}
