package svm

import (
	"context"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/x402-facilitator/facilitator/chain"
)

// ChainClient binds chain.SvmChain to a Solana RPC endpoint via solana-go.
type ChainClient struct {
	rpc *rpc.Client
}

func Dial(rpcURL string) *ChainClient {
	return &ChainClient{rpc: rpc.New(rpcURL)}
}

func (c *ChainClient) DecodeTransaction(base64Tx string) (*chain.SvmTransaction, error) {
	tx, err := solana.TransactionFromBase64(base64Tx)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	instructions := make([]chain.SvmInstruction, 0, len(tx.Message.Instructions))
	for i, compiled := range tx.Message.Instructions {
		programID, err := tx.Message.ResolveProgramIDIndex(compiled.ProgramIDIndex)
		if err != nil {
			return nil, fmt.Errorf("resolve program id for instruction %d: %w", i, err)
		}

		switch {
		case programID.Equals(solana.ComputeBudget):
			kind := classifyComputeBudgetInstruction(compiled.Data)
			instructions = append(instructions, chain.SvmInstruction{Kind: kind})
		case programID.Equals(solana.SPLAssociatedTokenAccountProgramID):
			instructions = append(instructions, chain.SvmInstruction{Kind: chain.SvmInstructionATACreate})
		case programID.Equals(solana.TokenProgramID) || programID.Equals(solana.Token2022ProgramID):
			transferChecked, err := decodeTransferChecked(tx, compiled)
			if err != nil {
				return nil, fmt.Errorf("decode instruction %d: %w", i, err)
			}
			instructions = append(instructions, chain.SvmInstruction{Kind: chain.SvmInstructionTransferChecked, TransferChecked: transferChecked})
		default:
			instructions = append(instructions, chain.SvmInstruction{Kind: chain.SvmInstructionOther})
		}
	}

	return &chain.SvmTransaction{
		Instructions:    instructions,
		FeePayer:        tx.Message.AccountKeys[0].String(),
		RecentBlockhash: tx.Message.RecentBlockhash.String(),
		Raw:             tx,
	}, nil
}

func classifyComputeBudgetInstruction(data []byte) chain.SvmInstructionKind {
	if len(data) == 0 {
		return chain.SvmInstructionOther
	}
	switch data[0] {
	case 2: // SetComputeUnitLimit discriminant
		return chain.SvmInstructionComputeBudgetLimit
	case 3: // SetComputeUnitPrice discriminant
		return chain.SvmInstructionComputeBudgetPrice
	default:
		return chain.SvmInstructionOther
	}
}

func decodeTransferChecked(tx *solana.Transaction, compiled solana.CompiledInstruction) (*chain.SvmTransferChecked, error) {
	accounts, err := compiled.ResolveInstructionAccounts(&tx.Message)
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}
	inst, err := token.DecodeInstruction(accounts, compiled.Data)
	if err != nil {
		return nil, fmt.Errorf("decode token instruction: %w", err)
	}
	transferChecked, ok := inst.Impl.(*token.TransferChecked)
	if !ok {
		return nil, fmt.Errorf("not a transferChecked instruction")
	}

	return &chain.SvmTransferChecked{
		Mint:        transferChecked.GetMintAccount().PublicKey.String(),
		Source:      transferChecked.GetSourceAccount().PublicKey.String(),
		Destination: transferChecked.GetDestinationAccount().PublicKey.String(),
		Owner:       transferChecked.GetOwnerAccount().PublicKey.String(),
		Amount:      *transferChecked.Amount,
		Decimals:    *transferChecked.Decimals,
	}, nil
}

func (c *ChainClient) MintDecimals(ctx context.Context, mint string) (uint8, error) {
	pubkey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint address: %w", err)
	}
	account, err := c.rpc.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return 0, fmt.Errorf("fetch mint account: %w", err)
	}
	var mintData token.Mint
	if err := bin.NewBinDecoder(account.Value.Data.GetBinary()).Decode(&mintData); err != nil {
		return 0, fmt.Errorf("decode mint account: %w", err)
	}
	return mintData.Decimals, nil
}

func (c *ChainClient) TokenBalance(ctx context.Context, tokenAccount string) (uint64, error) {
	pubkey, err := solana.PublicKeyFromBase58(tokenAccount)
	if err != nil {
		return 0, fmt.Errorf("invalid token account address: %w", err)
	}
	balance, err := c.rpc.GetTokenAccountBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("fetch token balance: %w", err)
	}
	var amount uint64
	if _, err := fmt.Sscan(balance.Value.Amount, &amount); err != nil {
		return 0, fmt.Errorf("parse token balance: %w", err)
	}
	return amount, nil
}

// substituteFeePayer clones the decoded transaction with its first account key
// (the fee payer slot) replaced by feePayer, for both Simulate and Send.
func substituteFeePayer(decoded *chain.SvmTransaction, feePayer solana.PublicKey) (*solana.Transaction, error) {
	raw, ok := decoded.Raw.(*solana.Transaction)
	if !ok {
		return nil, fmt.Errorf("decoded transaction has no underlying solana-go value")
	}
	tx := *raw
	tx.Message.AccountKeys = append([]solana.PublicKey(nil), raw.Message.AccountKeys...)
	tx.Message.AccountKeys[0] = feePayer
	tx.Signatures = append([]solana.Signature(nil), raw.Signatures...)
	if len(tx.Signatures) == 0 {
		tx.Signatures = make([]solana.Signature, 1)
	}
	return &tx, nil
}

func signAsFeePayer(tx *solana.Transaction, feePayer chain.SvmFeePayer) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	sigBytes, err := feePayer.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("sign as fee payer: %w", err)
	}
	feePayerKey, err := solana.PublicKeyFromBase58(feePayer.PublicKey())
	if err != nil {
		return fmt.Errorf("invalid fee payer public key: %w", err)
	}
	idx, err := tx.GetAccountIndex(feePayerKey)
	if err != nil {
		return fmt.Errorf("fee payer not present in transaction accounts: %w", err)
	}
	if len(tx.Signatures) <= int(idx) {
		grown := make([]solana.Signature, idx+1)
		copy(grown, tx.Signatures)
		tx.Signatures = grown
	}
	var sig solana.Signature
	copy(sig[:], sigBytes)
	tx.Signatures[idx] = sig
	return nil
}

func (c *ChainClient) Simulate(ctx context.Context, decoded *chain.SvmTransaction, feePayer chain.SvmFeePayer) (*chain.SvmSimulationResult, error) {
	feePayerKey, err := solana.PublicKeyFromBase58(feePayer.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("invalid fee payer public key: %w", err)
	}
	tx, err := substituteFeePayer(decoded, feePayerKey)
	if err != nil {
		return nil, err
	}

	result, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("simulate transaction: %w", err)
	}
	if result.Value.Err != nil {
		return &chain.SvmSimulationResult{Err: fmt.Sprintf("%v", result.Value.Err), Logs: result.Value.Logs}, nil
	}
	return &chain.SvmSimulationResult{Logs: result.Value.Logs}, nil
}

func (c *ChainClient) Send(ctx context.Context, decoded *chain.SvmTransaction, feePayer chain.SvmFeePayer) (string, uint64, error) {
	feePayerKey, err := solana.PublicKeyFromBase58(feePayer.PublicKey())
	if err != nil {
		return "", 0, fmt.Errorf("invalid fee payer public key: %w", err)
	}
	tx, err := substituteFeePayer(decoded, feePayerKey)
	if err != nil {
		return "", 0, err
	}

	latestBlockhash, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", 0, fmt.Errorf("fetch latest blockhash: %w", err)
	}
	tx.Message.RecentBlockhash = latestBlockhash.Value.Blockhash

	if err := signAsFeePayer(tx, feePayer); err != nil {
		return "", 0, err
	}

	sig, err := c.rpc.SendTransaction(ctx, tx)
	if err != nil {
		return "", 0, fmt.Errorf("send transaction: %w", err)
	}
	return sig.String(), latestBlockhash.Value.LastValidBlockHeight, nil
}

func (c *ChainClient) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64, timeout time.Duration) (*chain.SvmConfirmation, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			errStr := ""
			if status.Err != nil {
				errStr = fmt.Sprintf("%v", status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return &chain.SvmConfirmation{Err: errStr, Slot: status.Slot}, nil
			}
		}

		if lastValidBlockHeight > 0 {
			if height, heightErr := c.rpc.GetBlockHeight(ctx, rpc.CommitmentConfirmed); heightErr == nil && height > lastValidBlockHeight {
				return nil, chain.ErrSvmBlockHeightExceeded
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("transaction confirmation not observed within %s", timeout)
}
