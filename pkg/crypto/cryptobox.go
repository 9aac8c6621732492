// Package crypto implements sign-then-encrypt protection for envelopes:
// an Ed25519 signature over the plaintext, then symmetric or asymmetric
// NaCl authenticated encryption over (signature || plaintext). Grounded
// on the ARIA SDK's CryptoBox/AsymmetricCryptoBox, reimplemented against
// the Go NaCl primitives rather than PyNaCl.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"

	"golang.org/x/crypto/curve25519"
	naclbox "golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize     = 24
	signatureSize = ed25519.SignatureSize
)

// CryptoBox provides symmetric sign-then-encrypt: payloads are signed
// with Ed25519, then the (signature || plaintext) bundle is sealed with
// a shared secretbox key. Any holder of the shared key can decrypt;
// the embedded signature lets a recipient additionally confirm which
// signing identity produced the message.
type CryptoBox struct {
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	secretKey  [32]byte
}

// NewCryptoBox builds a CryptoBox from an existing 32-byte Ed25519 seed
// and a 32-byte secretbox key.
func NewCryptoBox(signingSeed, encryptionKey []byte) (*CryptoBox, error) {
	if len(signingSeed) != ed25519.SeedSize {
		return nil, errBadKeySize
	}
	if len(encryptionKey) != 32 {
		return nil, errBadKeySize
	}
	signingKey := ed25519.NewKeyFromSeed(signingSeed)
	b := &CryptoBox{
		signingKey: signingKey,
		verifyKey:  signingKey.Public().(ed25519.PublicKey),
	}
	copy(b.secretKey[:], encryptionKey)
	return b, nil
}

// GenerateCryptoBox creates a CryptoBox with freshly generated signing
// and encryption keys.
func GenerateCryptoBox() (*CryptoBox, error) {
	seed, key, err := GenerateKeys()
	if err != nil {
		return nil, err
	}
	return NewCryptoBox(seed, key[:])
}

// GenerateKeys returns a fresh 32-byte Ed25519 seed and a fresh 32-byte
// secretbox key.
func GenerateKeys() (seed []byte, key [32]byte, err error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, key, err
	}
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, key, err
	}
	return priv.Seed(), key, nil
}

// Encrypt signs plaintext, then seals (signature || plaintext) with a
// fresh random nonce. The nonce is prepended to the returned ciphertext.
func (b *CryptoBox) Encrypt(plaintext []byte) ([]byte, error) {
	sig := ed25519.Sign(b.signingKey, plaintext)
	signed := make([]byte, 0, len(sig)+len(plaintext))
	signed = append(signed, sig...)
	signed = append(signed, plaintext...)

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, nonceSize, nonceSize+len(signed)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, signed, &nonce, &b.secretKey), nil
}

// Decrypt opens ciphertext and verifies the embedded signature against
// verifyKey (or this box's own verify key, if verifyKey is nil).
func (b *CryptoBox) Decrypt(ciphertext []byte, verifyKey ed25519.PublicKey) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, errShortMessage
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	signed, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &b.secretKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	if len(signed) < signatureSize {
		return nil, ErrAuthenticationFailed
	}
	sig, plaintext := signed[:signatureSize], signed[signatureSize:]

	key := verifyKey
	if key == nil {
		key = b.verifyKey
	}
	if !ed25519.Verify(key, plaintext, sig) {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// VerifyKey returns this box's Ed25519 public verification key.
func (b *CryptoBox) VerifyKey() ed25519.PublicKey {
	return b.verifyKey
}

// EncryptionKey returns this box's shared secretbox key.
func (b *CryptoBox) EncryptionKey() [32]byte {
	return b.secretKey
}

// AsymmetricCryptoBox provides Ed25519 signing plus X25519 (NaCl box)
// encryption keyed to a specific peer, for point-to-point links where
// each party holds its own key pair.
type AsymmetricCryptoBox struct {
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey
	privateKey [32]byte
	publicKey  [32]byte
	peerKey    *[32]byte
}

// NewAsymmetricCryptoBox builds an AsymmetricCryptoBox from an existing
// Ed25519 seed and X25519 private key.
func NewAsymmetricCryptoBox(signingSeed []byte, privateKey []byte) (*AsymmetricCryptoBox, error) {
	if len(signingSeed) != ed25519.SeedSize {
		return nil, errBadKeySize
	}
	if len(privateKey) != 32 {
		return nil, errBadKeySize
	}
	signingKey := ed25519.NewKeyFromSeed(signingSeed)
	b := &AsymmetricCryptoBox{
		signingKey: signingKey,
		verifyKey:  signingKey.Public().(ed25519.PublicKey),
	}
	copy(b.privateKey[:], privateKey)
	curve25519.ScalarBaseMult(&b.publicKey, &b.privateKey)
	return b, nil
}

// GenerateAsymmetricCryptoBox creates an AsymmetricCryptoBox with a
// freshly generated Ed25519 signing key and X25519 key pair.
func GenerateAsymmetricCryptoBox() (*AsymmetricCryptoBox, error) {
	_, signingKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	pub, priv, err := naclbox.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	b := &AsymmetricCryptoBox{
		signingKey: signingKey,
		verifyKey:  signingKey.Public().(ed25519.PublicKey),
		privateKey: *priv,
		publicKey:  *pub,
	}
	return b, nil
}

// SetPeer installs the peer's X25519 public key, enabling Encrypt/Decrypt.
func (b *AsymmetricCryptoBox) SetPeer(peerPublicKey [32]byte) {
	k := peerPublicKey
	b.peerKey = &k
}

// PublicKeys returns this box's Ed25519 verify key and X25519 public key,
// to be shared with peers.
func (b *AsymmetricCryptoBox) PublicKeys() (ed25519.PublicKey, [32]byte) {
	return b.verifyKey, b.publicKey
}

// Encrypt signs plaintext and seals it to the configured peer.
func (b *AsymmetricCryptoBox) Encrypt(plaintext []byte) ([]byte, error) {
	if b.peerKey == nil {
		return nil, errNoPeer
	}
	sig := ed25519.Sign(b.signingKey, plaintext)
	signed := make([]byte, 0, len(sig)+len(plaintext))
	signed = append(signed, sig...)
	signed = append(signed, plaintext...)

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, nonceSize, nonceSize+len(signed)+naclbox.Overhead)
	copy(out, nonce[:])
	return naclbox.Seal(out, signed, &nonce, b.peerKey, &b.privateKey), nil
}

// Decrypt opens ciphertext sealed by the peer and verifies the embedded
// signature against verifyKey (or the peer's verify key is the caller's
// responsibility to supply; this box has no notion of "its own" peer
// verify key).
func (b *AsymmetricCryptoBox) Decrypt(ciphertext []byte, verifyKey ed25519.PublicKey) ([]byte, error) {
	if b.peerKey == nil {
		return nil, errNoPeer
	}
	if len(ciphertext) < nonceSize {
		return nil, errShortMessage
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	signed, ok := naclbox.Open(nil, ciphertext[nonceSize:], &nonce, b.peerKey, &b.privateKey)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	if len(signed) < signatureSize {
		return nil, ErrAuthenticationFailed
	}
	sig, plaintext := signed[:signatureSize], signed[signatureSize:]
	if !ed25519.Verify(verifyKey, plaintext, sig) {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
