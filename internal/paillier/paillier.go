// Package paillier implements the Paillier partially homomorphic
// cryptosystem over math/big integers.
//
// A Paillier key pair consists of a modulus n = p*q (p, q distinct primes
// of equal bit length) with generator g = n+1, and the private values
// lambda = lcm(p-1, q-1) and mu = lambda^-1 mod n. Encryption of a
// plaintext m in [0, n) produces c = g^m * r^n mod n^2 for a random
// obfuscator r, so every encryption of the same value yields a different
// ciphertext. The scheme is additively homomorphic: the product of two
// ciphertexts decrypts to the sum of their plaintexts, and a ciphertext
// raised to a scalar decrypts to the scaled plaintext.
//
// Raw ciphertexts carry values reduced modulo n. Signed integers and
// floating-point values are layered on top by EncryptInt64 and
// EncryptFloat64, which map them into [0, n) before encryption; see
// number.go for the encoding.
package paillier

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	one   = big.NewInt(1)
	three = big.NewInt(3)
)

// ErrKeySize is returned by GenerateKey when the requested modulus size
// is too small or odd.
var ErrKeySize = errors.New("paillier: key size must be an even number of bits, at least 64")

// ErrCiphertextRange is returned when a ciphertext lies outside [1, n^2).
var ErrCiphertextRange = errors.New("paillier: ciphertext out of range")

// ErrPlaintextRange is returned when a raw plaintext lies outside [0, n).
var ErrPlaintextRange = errors.New("paillier: plaintext out of range")

// PublicKey holds the encryption half of a Paillier key pair.
type PublicKey struct {
	N *big.Int // modulus, product of two equal-size primes

	nSquared *big.Int
}

// PrivateKey holds a complete Paillier key pair. The embedded PublicKey
// is always populated.
type PrivateKey struct {
	PublicKey
	P, Q *big.Int // prime factors of N

	lambda *big.Int // lcm(P-1, Q-1)
	mu     *big.Int // lambda^-1 mod N
}

// GenerateKey generates a Paillier key pair whose modulus is exactly
// bits long, reading randomness from random (typically crypto/rand.Reader).
func GenerateKey(random io.Reader, bits int) (*PrivateKey, error) {
	if bits < 64 || bits%2 != 0 {
		return nil, ErrKeySize
	}
	for {
		p, err := randPrime(random, bits/2)
		if err != nil {
			return nil, err
		}
		q, err := randPrime(random, bits/2)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) == 0 {
			continue
		}
		n := new(big.Int).Mul(p, q)
		if n.BitLen() != bits {
			continue
		}
		key, err := NewPrivateKey(p, q)
		if err != nil {
			// lambda shares a factor with n; astronomically rare,
			// retry with fresh primes.
			continue
		}
		return key, nil
	}
}

// NewPrivateKey reconstructs a key pair from its prime factors. It is
// used when loading a persisted key.
func NewPrivateKey(p, q *big.Int) (*PrivateKey, error) {
	if p == nil || q == nil || p.Cmp(q) == 0 {
		return nil, errors.New("paillier: invalid prime factors")
	}
	n := new(big.Int).Mul(p, q)

	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Mul(pMinus1, qMinus1)
	lambda.Div(lambda, gcd)

	mu := new(big.Int).ModInverse(lambda, n)
	if mu == nil {
		return nil, errors.New("paillier: lambda is not invertible modulo n")
	}

	return &PrivateKey{
		PublicKey: PublicKey{
			N:        n,
			nSquared: new(big.Int).Mul(n, n),
		},
		P:      new(big.Int).Set(p),
		Q:      new(big.Int).Set(q),
		lambda: lambda,
		mu:     mu,
	}, nil
}

func randPrime(random io.Reader, bits int) (*big.Int, error) {
	p, err := rand.Prime(random, bits)
	if err != nil {
		return nil, fmt.Errorf("generating %d-bit prime: %w", bits, err)
	}
	return p, nil
}

// NSquared returns n^2, computing and caching it if the key was built by
// hand (for example unmarshalled field-by-field in tests).
func (pub *PublicKey) NSquared() *big.Int {
	if pub.nSquared == nil {
		pub.nSquared = new(big.Int).Mul(pub.N, pub.N)
	}
	return pub.nSquared
}

// MaxInt returns n/3, the largest magnitude representable by the signed
// encoding. Values in (n/3, n - n/3) are reserved to detect overflow
// after homomorphic accumulation.
func (pub *PublicKey) MaxInt() *big.Int {
	return new(big.Int).Div(pub.N, three)
}

// Fingerprint returns a short hex digest of the public modulus, stable
// across processes, for correlating artifacts with the key that
// produced them.
func (pub *PublicKey) Fingerprint() string {
	sum := sha256.Sum256(pub.N.Bytes())
	return hex.EncodeToString(sum[:8])
}

// Encrypt encrypts a raw plaintext m in [0, n) and returns the
// ciphertext c = g^m * r^n mod n^2. Callers encrypting signed or
// floating-point values should use EncryptInt64 or EncryptFloat64
// instead.
func (pub *PublicKey) Encrypt(random io.Reader, m *big.Int) (*big.Int, error) {
	if m == nil || m.Sign() < 0 || m.Cmp(pub.N) >= 0 {
		return nil, ErrPlaintextRange
	}
	nSq := pub.NSquared()

	// g = n+1, so g^m mod n^2 reduces to 1 + m*n without a modexp.
	gm := new(big.Int).Mul(m, pub.N)
	gm.Add(gm, one)
	gm.Mod(gm, nSq)

	r, err := pub.randObfuscator(random)
	if err != nil {
		return nil, err
	}
	rn := new(big.Int).Exp(r, pub.N, nSq)

	c := gm.Mul(gm, rn)
	c.Mod(c, nSq)
	return c, nil
}

// randObfuscator picks r uniformly from [1, n) with gcd(r, n) = 1.
func (pub *PublicKey) randObfuscator(random io.Reader) (*big.Int, error) {
	gcd := new(big.Int)
	for {
		r, err := rand.Int(random, pub.N)
		if err != nil {
			return nil, fmt.Errorf("generating obfuscator: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		if gcd.GCD(nil, nil, r, pub.N).Cmp(one) == 0 {
			return r, nil
		}
	}
}

// AddCiphertext combines two raw ciphertexts so that the result decrypts
// to the sum of the plaintexts modulo n.
func (pub *PublicKey) AddCiphertext(c1, c2 *big.Int) *big.Int {
	sum := new(big.Int).Mul(c1, c2)
	return sum.Mod(sum, pub.NSquared())
}

// AddPlaintext folds a raw plaintext m into a ciphertext without an
// extra encryption: c * g^m mod n^2.
func (pub *PublicKey) AddPlaintext(c, m *big.Int) *big.Int {
	gm := new(big.Int).Mul(m, pub.N)
	gm.Add(gm, one)
	gm.Mod(gm, pub.NSquared())
	gm.Mul(gm, c)
	return gm.Mod(gm, pub.NSquared())
}

// MulPlaintext scales a raw ciphertext by a plaintext factor k, so that
// the result decrypts to k*m mod n.
func (pub *PublicKey) MulPlaintext(c, k *big.Int) *big.Int {
	return new(big.Int).Exp(c, k, pub.NSquared())
}

// Decrypt recovers the raw plaintext in [0, n) from a ciphertext:
// m = L(c^lambda mod n^2) * mu mod n with L(u) = (u-1)/n.
func (priv *PrivateKey) Decrypt(c *big.Int) (*big.Int, error) {
	if c == nil || c.Sign() <= 0 || c.Cmp(priv.NSquared()) >= 0 {
		return nil, ErrCiphertextRange
	}
	u := new(big.Int).Exp(c, priv.lambda, priv.NSquared())
	u.Sub(u, one)
	u.Div(u, priv.N)
	u.Mul(u, priv.mu)
	return u.Mod(u, priv.N), nil
}
