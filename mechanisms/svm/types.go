// Package svm implements the exact-svm scheme: a base64-serialized,
// partially-signed Solana transaction carrying an SPL Token TransferChecked
// instruction, verified by instruction-shape introspection and settled by
// fee-payer substitution, simulation, and broadcast.
package svm

import (
	"fmt"

	"github.com/x402-facilitator/facilitator/chain"
)

// validateInstructionShape checks that a decoded transaction's instructions match
// the one accepted layout: zero or more compute-budget instructions, an optional
// associated-token-account creation, and exactly one trailing TransferChecked. Any
// other instruction, or a TransferChecked that isn't last, is rejected.
func validateInstructionShape(instructions []chain.SvmInstruction) (*chain.SvmTransferChecked, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("transaction has no instructions")
	}

	transferIdx := -1
	ataCreates := 0
	for i, instr := range instructions {
		switch instr.Kind {
		case chain.SvmInstructionComputeBudgetLimit, chain.SvmInstructionComputeBudgetPrice, chain.SvmInstructionATACreate:
			if transferIdx != -1 {
				return nil, fmt.Errorf("instruction %d follows the transferChecked instruction", i)
			}
			if instr.Kind == chain.SvmInstructionATACreate {
				ataCreates++
				if ataCreates > 1 {
					return nil, fmt.Errorf("transaction carries more than one associated-token-account creation")
				}
			}
		case chain.SvmInstructionTransferChecked:
			if transferIdx != -1 {
				return nil, fmt.Errorf("transaction carries more than one transferChecked instruction")
			}
			transferIdx = i
		default:
			return nil, fmt.Errorf("instruction %d has an unexpected program", i)
		}
	}

	if transferIdx != len(instructions)-1 {
		return nil, fmt.Errorf("transferChecked instruction must be last")
	}
	return instructions[transferIdx].TransferChecked, nil
}

// pubkeyOnlyFeePayer satisfies chain.SvmFeePayer for simulation paths, where the
// RPC is asked to skip signature verification and only the fee payer's public key
// is needed to substitute the account.
type pubkeyOnlyFeePayer struct {
	pubkey string
}

func (f pubkeyOnlyFeePayer) PublicKey() string { return f.pubkey }

func (f pubkeyOnlyFeePayer) Sign(message []byte) ([]byte, error) {
	return nil, fmt.Errorf("pubkeyOnlyFeePayer cannot sign, it is for simulation only")
}
