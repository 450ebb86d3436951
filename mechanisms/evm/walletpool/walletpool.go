// Package walletpool manages the facilitator's EVM signing wallets: selection
// among multiple configured keys, pending-transaction tracking, gas-balance health
// gating, and stale-transaction reaping. The mutex-guarded-map idiom follows the
// facilitator's idempotency store.
package walletpool

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/x402-facilitator/facilitator"
)

// Strategy selects which wallet services the next settlement.
type Strategy string

const (
	StrategyRoundRobin  Strategy = "round-robin"
	StrategyLeastPending Strategy = "least-pending"
	StrategyHybrid      Strategy = "hybrid"
)

// Config controls pool sizing, health gating, and wallet selection.
type Config struct {
	MaxPendingPerWallet int
	MinNativeBalanceWei *big.Int
	HealthCheckInterval time.Duration
	PendingTxTimeout    time.Duration
	SelectionStrategy   Strategy
	MaxRetryAttempts    int
	RetryDelay          time.Duration
}

// wallet is one facilitator-controlled signing key and its live state.
type wallet struct {
	address    string
	privateKey *ecdsa.PrivateKey
	pending    map[string]time.Time // txHash -> acquired-at, reaped after PendingTxTimeout
	healthy    bool
	balance    *big.Int
	lastUsedAt time.Time
}

// Pool selects among a fixed set of wallets for EVM settlement, gating on
// per-wallet pending-transaction load and gas-balance health.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	wallets  []*wallet
	rrCursor int
}

// New builds a Pool from raw ECDSA private keys. Every wallet starts healthy;
// the scheduler's health-check loop is expected to refresh balances shortly after.
// A MaxPendingPerWallet of zero or less is replaced by 3.
func New(cfg Config, keys []*ecdsa.PrivateKey) *Pool {
	if cfg.MaxPendingPerWallet <= 0 {
		cfg.MaxPendingPerWallet = 3
	}
	wallets := make([]*wallet, 0, len(keys))
	for _, k := range keys {
		wallets = append(wallets, &wallet{
			address: crypto.PubkeyToAddress(k.PublicKey).Hex(),
			privateKey: k,
			pending: make(map[string]time.Time),
			healthy: true,
		})
	}
	return &Pool{cfg: cfg, wallets: wallets}
}

// Addresses returns every configured wallet address, regardless of health.
func (p *Pool) Addresses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.wallets))
	for i, w := range p.wallets {
		out[i] = w.address
	}
	return out
}

// Lease is an acquired wallet; the caller must call Release once the settlement
// transaction it submitted either lands, fails, or is abandoned.
type Lease struct {
	Address    string
	PrivateKey *ecdsa.PrivateKey
	pool       *Pool
	w          *wallet
	reserved   string
}

// Acquire selects a wallet per the configured strategy and reserves a pending
// slot on it under a placeholder key; call Bind once the real tx hash is known.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.wallets) == 0 {
		return nil, x402.NewFacilitatorError(x402.ReasonNoWalletsConfigured, "no EVM wallets configured", nil)
	}

	p.reapStaleLocked()

	healthyCount := 0
	for _, w := range p.wallets {
		if w.healthy {
			healthyCount++
		}
	}
	if healthyCount == 0 {
		return nil, x402.NewFacilitatorError(x402.ReasonAllWalletsUnhealthy, "all configured EVM wallets are unhealthy", nil)
	}

	var w *wallet
	switch p.cfg.SelectionStrategy {
	case StrategyLeastPending:
		w = p.pickLeastPendingLocked()
	case StrategyRoundRobin:
		w = p.pickRoundRobinLocked()
	default:
		w = p.pickHybridLocked()
	}
	if w == nil {
		return nil, x402.NewFacilitatorError(x402.ReasonAllWalletsBusy, "every healthy EVM wallet is at its pending-transaction limit", nil)
	}

	reserved := reservationKey(w)
	w.pending[reserved] = time.Now()
	w.lastUsedAt = time.Now()
	return &Lease{Address: w.address, PrivateKey: w.privateKey, pool: p, w: w, reserved: reserved}, nil
}

// pickRoundRobinLocked advances the cursor to the next healthy wallet with spare
// pending capacity, wrapping at most once around the wallet list.
func (p *Pool) pickRoundRobinLocked() *wallet {
	n := len(p.wallets)
	for i := 0; i < n; i++ {
		idx := (p.rrCursor + i) % n
		w := p.wallets[idx]
		if w.healthy && len(w.pending) < p.cfg.MaxPendingPerWallet {
			p.rrCursor = (idx + 1) % n
			return w
		}
	}
	return nil
}

// pickLeastPendingLocked picks the healthy wallet with the fewest pending
// transactions, breaking ties by the wallet least recently acquired.
func (p *Pool) pickLeastPendingLocked() *wallet {
	var best *wallet
	for _, w := range p.wallets {
		if !w.healthy || len(w.pending) >= p.cfg.MaxPendingPerWallet {
			continue
		}
		if best == nil || len(w.pending) < len(best.pending) ||
			(len(w.pending) == len(best.pending) && w.lastUsedAt.Before(best.lastUsedAt)) {
			best = w
		}
	}
	return best
}

// pickHybridLocked advances the round-robin cursor up to three steps looking for
// a healthy wallet with spare capacity, using a tighter margin than plain
// round-robin so a wallet nearly at its limit is left for the least-pending
// fallback instead of being claimed by the scan. Falls back to least-pending
// across all healthy wallets with capacity once the scan is exhausted.
func (p *Pool) pickHybridLocked() *wallet {
	n := len(p.wallets)
	steps := 3
	if steps > n {
		steps = n
	}
	margin := p.cfg.MaxPendingPerWallet - 1
	for i := 0; i < steps; i++ {
		idx := (p.rrCursor + i) % n
		w := p.wallets[idx]
		if w.healthy && len(w.pending) < margin {
			p.rrCursor = (idx + 1) % n
			return w
		}
	}
	return p.pickLeastPendingLocked()
}

func (p *Pool) reapStaleLocked() {
	p.reapStaleLockedCounting()
}

// reapStaleLockedCounting removes pending-transaction slots older than
// PendingTxTimeout, returning how many were reaped per wallet address. Caller
// must hold p.mu.
func (p *Pool) reapStaleLockedCounting() map[string]int {
	reaped := make(map[string]int)
	if p.cfg.PendingTxTimeout <= 0 {
		return reaped
	}
	cutoff := time.Now().Add(-p.cfg.PendingTxTimeout)
	for _, w := range p.wallets {
		for key, acquiredAt := range w.pending {
			if acquiredAt.Before(cutoff) {
				delete(w.pending, key)
				reaped[w.address]++
			}
		}
	}
	return reaped
}

// ReapStale removes pending-transaction slots older than PendingTxTimeout
// across every wallet, returning the count reaped per address. Exported for
// the scheduler's periodic health-check job, which logs what it reaped.
func (p *Pool) ReapStale() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reapStaleLockedCounting()
}

func reservationKey(w *wallet) string {
	return w.address + ":" + time.Now().String()
}

// Bind replaces a Lease's placeholder pending-slot key with the real transaction
// hash, so the scheduler's health loop can report accurate pending counts.
func (l *Lease) Bind(txHash string) {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	if at, ok := l.w.pending[l.reserved]; ok {
		delete(l.w.pending, l.reserved)
		l.w.pending[txHash] = at
		l.reserved = txHash
	}
}

// Release frees the lease's pending slot, whether the transaction it guarded
// landed, failed, or was never sent.
func (l *Lease) Release() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	delete(l.w.pending, l.reserved)
}

// PendingCount reports a wallet's current pending-transaction count, for metrics.
func (p *Pool) PendingCount(address string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.wallets {
		if w.address == address {
			return len(w.pending)
		}
	}
	return 0
}

// SetHealth updates a wallet's health and last-seen native balance; called by the
// scheduler's gas-balance refresh and health-check loops.
func (p *Pool) SetHealth(address string, balance *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.wallets {
		if w.address != address {
			continue
		}
		w.balance = balance
		w.healthy = p.cfg.MinNativeBalanceWei == nil || balance == nil || balance.Cmp(p.cfg.MinNativeBalanceWei) >= 0
		return
	}
}

// MinNativeBalance returns the configured gas-balance health floor, or nil if
// the pool was configured without one.
func (p *Pool) MinNativeBalance() *big.Int {
	return p.cfg.MinNativeBalanceWei
}

// RetryConfig returns the pool's configured nonce-contention retry bounds.
func (p *Pool) RetryConfig() (maxAttempts int, delay time.Duration) {
	return p.cfg.MaxRetryAttempts, p.cfg.RetryDelay
}

// Balance returns a wallet's last-observed native balance, or nil if unknown.
func (p *Pool) Balance(address string) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.wallets {
		if w.address == address {
			return w.balance
		}
	}
	return nil
}
