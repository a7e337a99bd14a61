package soft

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signer holds an in-process ed25519 key derived from a configured seed.
// It exists so the ledger client depends on a signing interface instead of
// raw key material; production deployments can swap in an HSM-backed
// implementation without touching the client.
type Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

func NewSignerFromSeedHex(seedHex string) (*Signer, error) {
	if seedHex == "" {
		return nil, errors.New("signer seed is required")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode signer seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signer seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Signer{
		priv: priv,
		pub:  priv.Public().(ed25519.PublicKey),
	}, nil
}

func (s *Signer) Sign(_ context.Context, payload []byte) ([]byte, []byte, error) {
	if s == nil || len(s.priv) == 0 {
		return nil, nil, errors.New("signer is not initialized")
	}
	sig := ed25519.Sign(s.priv, payload)
	return sig, append([]byte(nil), s.pub...), nil
}
