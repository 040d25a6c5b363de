package secure

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"io"
)

// ErrSecure is the SecureError kind spec.md §7 names: a misconfigured key,
// hasher, or a failed decrypt/verify.
var ErrSecure = errors.New("secure: operation failed")

func secureErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSecure, fmt.Sprintf(format, args...))
}

// Key is the Encrypt node's SecureKey collaborator (spec.md §4.6):
// block_size, encrypt, decrypt. Inputs longer than BlockSize are processed
// in consecutive blocks by the concrete implementation; padding of the
// final block is opaque to the schema core (spec §9(c)).
type Key interface {
	BlockSize() int
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// aeadKey implements Key over an AEAD construction (golang.org/x/crypto's
// XChaCha20-Poly1305), following the teacher pack's use of
// golang.org/x/crypto for keyed primitives (SnellerInc-sneller's
// internal/aes); see SPEC_FULL.md §3. The nonce is derived deterministically
// from the key via HKDF rather than drawn from a random source, so that
// Encrypt is a pure function of its input and round-trips under spec §8's
// write-then-read property without threading extra randomness through the
// schema walk.
type aeadKey struct {
	aead  interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
		Overhead() int
	}
	nonce []byte
}

// NewKey derives an XChaCha20-Poly1305 AEAD key and a fixed nonce from raw
// key material of any length via HKDF-SHA256 (stdlib crypto/sha256 plus
// golang.org/x/crypto/hkdf).
func NewKey(secret []byte) (Key, error) {
	if len(secret) == 0 {
		return nil, secureErrf("empty key material")
	}
	h := hkdf.New(sha256.New, secret, nil, []byte("bitspec/secure/aead"))
	okm := make([]byte, chacha20poly1305.KeySize+chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(h, okm); err != nil {
		return nil, secureErrf("key derivation failed: %v", err)
	}
	aead, err := chacha20poly1305.NewX(okm[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, secureErrf("cipher init failed: %v", err)
	}
	return &aeadKey{aead: aead, nonce: okm[chacha20poly1305.KeySize:]}, nil
}

func (k *aeadKey) BlockSize() int { return 64 } // XChaCha20's underlying stream block size

func (k *aeadKey) Encrypt(plaintext []byte) ([]byte, error) {
	return k.aead.Seal(nil, k.nonce, plaintext, nil), nil
}

func (k *aeadKey) Decrypt(ciphertext []byte) ([]byte, error) {
	out, err := k.aead.Open(nil, k.nonce, ciphertext, nil)
	if err != nil {
		return nil, secureErrf("decrypt failed: %v", err)
	}
	return out, nil
}

// Hasher is the Sign node's collaborator (spec.md §4.6): hash(bytes) →
// bytes.
type Hasher interface {
	Hash(data []byte) []byte
	Size() int
}

// blake2bHasher implements Hasher with a keyed BLAKE2b-256, again sourced
// from golang.org/x/crypto per the domain-stack wiring in SPEC_FULL.md §3.
type blake2bHasher struct {
	key []byte
}

// NewHasher returns a keyed BLAKE2b-256 Hasher.
func NewHasher(key []byte) (Hasher, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return nil, secureErrf("hasher init failed: %v", err)
	}
	_ = h
	return &blake2bHasher{key: key}, nil
}

func (h *blake2bHasher) Hash(data []byte) []byte {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key was already validated in NewHasher; this cannot fail here.
		panic(err)
	}
	mac.Write(data)
	return mac.Sum(nil)
}

func (h *blake2bHasher) Size() int { return blake2b.Size256 }

// Sign computes the signature of data under hasher.
func Sign(hasher Hasher, data []byte) []byte {
	return hasher.Hash(data)
}

// Verify recomputes the hash of data under hasher and compares it to sig in
// constant time (spec §4.6: "recomputes and compares constant-time").
func Verify(hasher Hasher, data, sig []byte) bool {
	want := hasher.Hash(data)
	if len(want) != len(sig) {
		return false
	}
	return subtle.ConstantTimeCompare(want, sig) == 1
}
