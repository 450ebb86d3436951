package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Ed25519FeePayer wraps a Solana keypair as a chain.SvmFeePayer, signing the
// transaction message directly the way a client-side Solana signer does.
type Ed25519FeePayer struct {
	privateKey solana.PrivateKey
}

func NewEd25519FeePayer(privateKey solana.PrivateKey) *Ed25519FeePayer {
	return &Ed25519FeePayer{privateKey: privateKey}
}

func (f *Ed25519FeePayer) PublicKey() string {
	return f.privateKey.PublicKey().String()
}

func (f *Ed25519FeePayer) Sign(message []byte) ([]byte, error) {
	sig, err := f.privateKey.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	return sig[:], nil
}
