package gateway

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// EthRecoverer recovers an address from an EIP-191 ("personal_sign")
// message and signature using secp256k1 ECDSA recovery. This is the
// concrete instantiation of the `ecrecover` primitive the spec treats as
// an external black box.
type EthRecoverer struct{}

// Recover implements Recoverer.
func (EthRecoverer) Recover(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	// personal_sign signatures encode v as 27/28; go-ethereum's recovery
	// primitive expects 0/1.
	if sig[64] == 27 || sig[64] == 28 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(personalMessageHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey).Hex(), nil
}

// personalMessageHash reproduces the "\x19Ethereum Signed Message:\n<len>"
// prefix every personal_sign-compatible wallet applies before signing.
func personalMessageHash(msg string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)
	return crypto.Keccak256([]byte(prefixed))
}
