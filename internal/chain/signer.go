package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the agent's spender key for the process lifetime. It is built
// once at startup and injected into the gateway; nothing re-derives keys per
// call.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded private key (with or without 0x prefix).
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest, returning a 65-byte (r, s, v) signature
// with the Ethereum v offset applied.
func (s *Signer) SignDigest(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignPayload hashes arbitrary payload bytes with keccak256 and signs the
// digest. Used to authorize relay batches.
func (s *Signer) SignPayload(payload []byte) (string, error) {
	sig, err := s.SignDigest(crypto.Keccak256(payload))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
