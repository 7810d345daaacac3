// Package chain implements core/chain on an Ethereum JSON-RPC endpoint with
// go-ethereum, guarded by a circuit breaker, plus an offline variant used
// when no endpoint is configured.
package chain

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	corechain "github.com/kilianp07/dobi/core/chain"
)

// GenerateWallet creates a new secp256k1 key pair.
func GenerateWallet() (corechain.Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return corechain.Wallet{}, fmt.Errorf("generate key: %w", err)
	}
	return corechain.Wallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

// ParseKey decodes a hex private key with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// AddressOf returns the checksummed address of key.
func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
