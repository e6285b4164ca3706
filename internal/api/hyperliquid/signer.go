package hyperliquid

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vmihailenco/msgpack/v5"
)

// Signature is the r/s/v triple the exchange endpoint expects.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V byte   `json:"v"`
}

// Signer produces the EIP-712 agent signature over an action hash. The
// exchange verifies actions signed this way against the API wallet, so the
// account address itself never leaves the process.
type Signer struct {
	key    *ecdsa.PrivateKey
	source string // "a" mainnet, "b" testnet
}

// NewSigner parses the API secret (hex private key, 0x prefix optional).
func NewSigner(secret string, mainnet bool) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(secret, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing API secret: %w", err)
	}
	source := "b"
	if mainnet {
		source = "a"
	}
	return &Signer{key: key, source: source}, nil
}

// Sign hashes the action into a connection id and signs the phantom agent
// typed data over it.
func (s *Signer) Sign(action any, nonce uint64) (Signature, error) {
	connectionID, err := actionHash(action, nonce)
	if err != nil {
		return Signature{}, err
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		PrimaryType: "Agent",
		Domain: apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(1337),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		Message: apitypes.TypedDataMessage{
			"source":       s.source,
			"connectionId": hexutil.Encode(connectionID),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return Signature{}, fmt.Errorf("hashing typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("signing action: %w", err)
	}

	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: sig[64] + 27,
	}, nil
}

// actionHash is keccak256 over the msgpack-encoded action, the big-endian
// nonce, and a zero byte marking the absent vault address. Field order in the
// wire structs must stay stable: the server hashes the same bytes.
func actionHash(action any, nonce uint64) ([]byte, error) {
	data, err := msgpack.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encoding action: %w", err)
	}
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], nonce)
	data = append(data, nonceBytes[:]...)
	data = append(data, 0x00)
	return crypto.Keccak256(data), nil
}
