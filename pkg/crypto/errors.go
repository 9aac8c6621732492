package crypto

import "github.com/pkg/errors"

var (
	// ErrAuthenticationFailed means decryption succeeded but the embedded
	// Ed25519 signature did not verify against the expected key.
	ErrAuthenticationFailed = errors.New("crypto: signature verification failed")
	// ErrDecryptionFailed means the AEAD open failed: wrong key, or
	// corrupted or truncated ciphertext. Input shorter than the nonce
	// fails earlier with errShortMessage.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")

	errBadKeySize   = errors.New("crypto: key must be 32 bytes")
	errNoPeer       = errors.New("crypto: peer public key not set")
	errShortMessage = errors.New("crypto: ciphertext shorter than nonce")
)
