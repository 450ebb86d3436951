// Command facilitator is a thin gin edge over the facilitator core: plain
// gin.New() + gin.Recovery(), explicit routes, manual JSON (de)serialization,
// no middleware framework, built the way the teacher's e2e test facilitator is.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	x402 "github.com/x402-facilitator/facilitator"
	"github.com/x402-facilitator/facilitator/chain"
	"github.com/x402-facilitator/facilitator/clock"
	"github.com/x402-facilitator/facilitator/config"
	"github.com/x402-facilitator/facilitator/discovery"
	"github.com/x402-facilitator/facilitator/logging"
	"github.com/x402-facilitator/facilitator/mechanisms/evm"
	"github.com/x402-facilitator/facilitator/mechanisms/evm/walletpool"
	"github.com/x402-facilitator/facilitator/mechanisms/svm"
	"github.com/x402-facilitator/facilitator/metrics"
	"github.com/x402-facilitator/facilitator/scheduler"
)

const defaultPort = "4022"

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logging.NewZapLogger(envString("LOG_LEVEL", "info"))
	recorder := metrics.NewPrometheusRecorder()
	c := clock.System{}

	registry := buildDiscovery(cfg, c, logger)
	facade := x402.NewFacade(registry, logger, recorder)
	jobs := make([]scheduler.Job, 0, 3)
	jobs = append(jobs, scheduler.DiscoveryCleanupJob(registry))

	if len(cfg.EvmPrivateKeys) > 0 {
		mech, evmJobs, err := buildEvmMechanism(cfg, logger)
		if err != nil {
			log.Fatalf("evm mechanism setup failed: %v", err)
		}
		facade.Register(mech)
		jobs = append(jobs, evmJobs...)
	}

	if cfg.SvmPrivateKey != "" {
		mech, err := buildSvmMechanism(cfg, logger)
		if err != nil {
			log.Fatalf("svm mechanism setup failed: %v", err)
		}
		facade.Register(mech)
	}

	loop := scheduler.New(jobs, c, logger)
	loop.Start(context.Background())
	defer loop.Stop()

	router := newRouter(facade)

	port := envString("PORT", defaultPort)
	logger.Info("facilitator listening", map[string]any{"port": port})
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func buildDiscovery(cfg *config.Config, c clock.Clock, logger logging.Logger) *discovery.Registry {
	store := discovery.NewInMemoryStore(c, discovery.DefaultVisibilityTTL)
	return discovery.NewRegistry(store, c, logger, cfg.AllowLocalhostResources)
}

func buildEvmMechanism(cfg *config.Config, logger logging.Logger) (*evm.Mechanism, []scheduler.Job, error) {
	keys := make([]*ecdsa.PrivateKey, 0, len(cfg.EvmPrivateKeys))
	for _, hexKey := range cfg.EvmPrivateKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, nil, fmt.Errorf("parse evm private key: %w", err)
		}
		keys = append(keys, key)
	}

	chainClient, err := evm.Dial(context.Background(), cfg.EvmRPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial evm rpc: %w", err)
	}

	pool := walletpool.New(cfg.WalletPool, keys)
	nonces := walletpool.NewNonceRegistry()
	verifier := evm.NewVerifier(chainClient, clock.System{})
	settler := evm.NewSettler(chainClient, verifier, pool, nonces, logger)

	networks := cfg.AllowedNetworks
	if len(networks) == 0 {
		networks = []x402.Network{cfg.DefaultEvmNetwork}
	}
	mech := evm.NewMechanism(verifier, settler, networks)

	jobs := []scheduler.Job{
		scheduler.GasBalanceRefreshJob(pool, chainClient),
		scheduler.WalletHealthCheckJob(pool, chainClient, nonces, logger),
	}
	return mech, jobs, nil
}

func buildSvmMechanism(cfg *config.Config, logger logging.Logger) (*svm.Mechanism, error) {
	privateKey, err := solana.PrivateKeyFromBase58(cfg.SvmPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse svm private key: %w", err)
	}

	chainClient := svm.Dial(cfg.SvmRPCURL)
	verifier := svm.NewVerifier(chainClient)
	feePayer := svm.NewEd25519FeePayer(privateKey)

	svmNetworks := []x402.Network{x402.NetworkSolana, x402.NetworkSolanaDevnet}
	feePayers := make(map[x402.Network]chain.SvmFeePayer, len(svmNetworks))
	feePayerAddresses := make(map[x402.Network]string, len(svmNetworks))
	for _, network := range svmNetworks {
		feePayers[network] = feePayer
		feePayerAddresses[network] = feePayer.PublicKey()
	}

	networks := cfg.AllowedNetworks
	if len(networks) == 0 {
		networks = svmNetworks
	}

	settler := svm.NewSettler(chainClient, verifier, feePayers, logger)
	mech := svm.NewMechanism(verifier, settler, networks, feePayerAddresses)
	return mech, nil
}

type verifyRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

type settleRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

func newRouter(facade *x402.Facade) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/verify", func(c *gin.Context) {
		var req verifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, x402.VerifyResponse{IsValid: false, InvalidReason: x402.ReasonInvalidPayload})
			return
		}
		response := facade.Verify(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
		c.JSON(http.StatusOK, response)
	})

	router.POST("/settle", func(c *gin.Context) {
		var req settleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, x402.SettleResponse{Success: false, ErrorReason: x402.ReasonInvalidPayload})
			return
		}
		response := facade.Settle(c.Request.Context(), req.PaymentPayload, req.PaymentRequirements)
		c.JSON(http.StatusOK, response)
	})

	router.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, facade.Supported())
	})

	router.GET("/discovery/resources", func(c *gin.Context) {
		opts := discovery.ListOptions{
			Type:   c.Query("type"),
			Limit:  queryInt(c, "limit", 100),
			Offset: queryInt(c, "offset", 0),
		}
		items, pagination, err := facade.DiscoveryList(c.Request.Context(), opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"x402Version": 1,
			"items":       items,
			"pagination":  pagination,
		})
	})

	router.GET("/list", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/discovery/resources")
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
