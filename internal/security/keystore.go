// Package security persists the pipeline's Paillier key pair at rest.
//
// The key file is a CBOR document holding the scrypt parameters, a
// random salt and nonce, and the key material sealed with AES-256-GCM
// under a passphrase-derived key. Without the sealed store the pipeline
// falls back to a fresh ephemeral key pair per process, which makes
// artifacts from different runs mutually undecryptable.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/scrypt"

	"sheetvault/internal/paillier"
)

// scrypt parameters sized for an interactive unlock on server hardware.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32 // AES-256
)

const sealedVersion = 1

// ErrNoKey is returned by Load when no key file exists at the store path.
var ErrNoKey = errors.New("security: no key file at store path")

// ErrUnseal is returned when the key file cannot be opened with the
// given passphrase, either because the passphrase is wrong or the file
// was tampered with.
var ErrUnseal = errors.New("security: failed to unseal key file")

// sealedKey is the on-disk layout of a key file.
type sealedKey struct {
	Version uint8  `cbor:"version"`
	KDF     string `cbor:"kdf"`
	N       int    `cbor:"n"`
	R       int    `cbor:"r"`
	P       int    `cbor:"p"`
	Salt    []byte `cbor:"salt"`
	Nonce   []byte `cbor:"nonce"`
	Sealed  []byte `cbor:"sealed"`
}

// keyMaterial is the plaintext inside the seal: the prime factors are
// sufficient to reconstruct the full key pair.
type keyMaterial struct {
	P *big.Int `cbor:"p"`
	Q *big.Int `cbor:"q"`
}

// Store seals and unseals a Paillier key pair at a fixed path.
type Store struct {
	path       string
	passphrase []byte
	logger     *slog.Logger
}

// NewStore creates a key store for path. The passphrase must be
// non-empty; it is the only secret protecting the private key at rest.
func NewStore(path, passphrase string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("security: key store path must not be empty")
	}
	if passphrase == "" {
		return nil, errors.New("security: key store passphrase must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:       path,
		passphrase: []byte(passphrase),
		logger:     logger.With(slog.String("component", "security.store")),
	}, nil
}

// Path returns the key file location.
func (s *Store) Path() string { return s.path }

// Load reads and unseals the persisted key pair.
func (s *Store) Load() (*paillier.PrivateKey, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	var sk sealedKey
	if err := cbor.Unmarshal(data, &sk); err != nil {
		return nil, fmt.Errorf("decoding key file: %w", err)
	}
	if sk.Version != sealedVersion {
		return nil, fmt.Errorf("unsupported key file version %d", sk.Version)
	}
	if sk.KDF != "scrypt" {
		return nil, fmt.Errorf("unsupported key derivation %q", sk.KDF)
	}

	aead, err := s.aead(sk.Salt, sk.N, sk.R, sk.P)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, sk.Nonce, sk.Sealed, nil)
	if err != nil {
		return nil, ErrUnseal
	}

	var km keyMaterial
	if err := cbor.Unmarshal(plaintext, &km); err != nil {
		return nil, fmt.Errorf("decoding key material: %w", err)
	}
	key, err := paillier.NewPrivateKey(km.P, km.Q)
	if err != nil {
		return nil, fmt.Errorf("rebuilding key pair: %w", err)
	}

	s.logger.Info("key_store_loaded",
		slog.String("path", s.path),
		slog.String("fingerprint", key.Fingerprint()),
		slog.Int("modulus_bits", key.N.BitLen()))
	return key, nil
}

// Save seals the key pair under the passphrase and writes the key file
// atomically with owner-only permissions.
func (s *Store) Save(key *paillier.PrivateKey) error {
	plaintext, err := cbor.Marshal(keyMaterial{P: key.P, Q: key.Q})
	if err != nil {
		return fmt.Errorf("encoding key material: %w", err)
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	aead, err := s.aead(salt, scryptN, scryptR, scryptP)
	if err != nil {
		return err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	data, err := cbor.Marshal(sealedKey{
		Version: sealedVersion,
		KDF:     "scrypt",
		N:       scryptN,
		R:       scryptR,
		P:       scryptP,
		Salt:    salt,
		Nonce:   nonce,
		Sealed:  aead.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return fmt.Errorf("encoding key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalizing key file: %w", err)
	}

	s.logger.Info("key_store_saved",
		slog.String("path", s.path),
		slog.String("fingerprint", key.Fingerprint()))
	return nil
}

// LoadOrGenerate returns the persisted key pair, generating and sealing
// a fresh one of the given modulus size on first use.
func (s *Store) LoadOrGenerate(bits int) (*paillier.PrivateKey, error) {
	key, err := s.Load()
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoKey) {
		return nil, err
	}

	s.logger.Info("generating_key_pair", slog.Int("modulus_bits", bits))
	key, err = paillier.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	if err := s.Save(key); err != nil {
		return nil, err
	}
	return key, nil
}

// aead builds the AES-256-GCM cipher for the given scrypt parameters.
func (s *Store) aead(salt []byte, n, r, p int) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, n, r, p, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}
