package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	minMemoryKB     uint32 = 8 * 1024
	minTimeCost     uint32 = 1
	minParallelism  uint8  = 1
	minSaltLength   uint32 = 16
	minPassphrase          = 8
	kdfAlgorithm           = "argon2id"
	sealedKeyLength        = chacha20poly1305.KeySize

	// SaltKey holds the encoded KDF parameters and salt in the wrapped backend.
	SaltKey = "__sealed_kdf"
)

// ErrPassphraseTooShort is returned by NewSealed.
var ErrPassphraseTooShort = errors.New("sealed storage passphrase too short")

// KDFParams are the argon2id parameters used to derive the sealing key.
type KDFParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultKDFParams returns interactive-grade argon2id parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
	}
}

func (p KDFParams) validate() error {
	if p.Memory < minMemoryKB {
		return errors.New("kdf memory below minimum")
	}
	if p.Time < minTimeCost {
		return errors.New("kdf time cost below minimum")
	}
	if p.Parallelism < minParallelism {
		return errors.New("kdf parallelism below minimum")
	}
	if p.SaltLength < minSaltLength {
		return errors.New("kdf salt length below minimum")
	}
	return nil
}

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to the
// wrapped Backend. The key is derived once per process from a passphrase and a
// salt persisted next to the data, so any process holding the passphrase can
// open values written by another. The storage key is bound as associated data:
// a value copied under a different key fails to open.
type Sealed struct {
	inner      Backend
	passphrase []byte
	params     KDFParams

	mu   sync.Mutex
	aead cipher.AEAD
}

// NewSealed wraps inner.
func NewSealed(inner Backend, passphrase []byte, params KDFParams) (*Sealed, error) {
	if inner == nil {
		return nil, errors.New("sealed storage requires a backend")
	}
	if len(passphrase) < minPassphrase {
		return nil, ErrPassphraseTooShort
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	pp := make([]byte, len(passphrase))
	copy(pp, passphrase)
	return &Sealed{inner: inner, passphrase: pp, params: params}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	aead, err := s.cipher(ctx)
	if err != nil {
		return "", false, err
	}

	blob, err := base64.RawStdEncoding.DecodeString(raw)
	if err != nil || len(blob) < aead.NonceSize() {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return string(plain), true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	aead, err := s.cipher(ctx)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(value)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}
	blob := aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.inner.Set(ctx, key, base64.RawStdEncoding.EncodeToString(blob))
}

func (s *Sealed) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}

// cipher derives the key on first use. An existing parameter record in the
// backend wins over the configured params so data stays readable after a
// parameter change.
func (s *Sealed) cipher(ctx context.Context) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aead != nil {
		return s.aead, nil
	}

	encoded, ok, err := s.inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, err
	}

	var params KDFParams
	var salt []byte
	if ok {
		params, salt, err = parseKDFRecord(encoded)
		if err != nil {
			return nil, err
		}
	} else {
		params = s.params
		salt = make([]byte, params.SaltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, err
		}
		if err := s.inner.Set(ctx, SaltKey, encodeKDFRecord(params, salt)); err != nil {
			return nil, err
		}
	}

	key := argon2.IDKey(s.passphrase, salt, params.Time, params.Memory, params.Parallelism, sealedKeyLength)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	s.aead = aead
	return aead, nil
}

func encodeKDFRecord(p KDFParams, salt []byte) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s",
		kdfAlgorithm,
		argon2.Version,
		p.Memory,
		p.Time,
		p.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
	)
}

func parseKDFRecord(encoded string) (KDFParams, []byte, error) {
	corrupt := func(reason string) (KDFParams, []byte, error) {
		return KDFParams{}, nil, fmt.Errorf("%w: kdf record: %s", ErrCorrupt, reason)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" {
		return corrupt("format")
	}
	if parts[1] != kdfAlgorithm {
		return corrupt("algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return corrupt("version")
	}

	var p KDFParams
	for _, kv := range strings.Split(parts[3], ",") {
		name, raw, found := strings.Cut(kv, "=")
		if !found {
			return corrupt("params")
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return corrupt("params")
		}
		switch name {
		case "m":
			p.Memory = uint32(n)
		case "t":
			p.Time = uint32(n)
		case "p":
			if n > 255 {
				return corrupt("params")
			}
			p.Parallelism = uint8(n)
		default:
			return corrupt("params")
		}
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return corrupt("salt")
	}
	p.SaltLength = uint32(len(salt))
	if err := p.validate(); err != nil {
		return corrupt(err.Error())
	}
	return p, salt, nil
}
