package paillier

import (
	"errors"
	"io"
	"math"
	"math/big"
)

// Signed values are folded into [0, n) by wrap-around: a negative value
// v is stored as n+v. On decryption the residue class decides the sign:
// residues up to n/3 are non-negative, residues from n - n/3 upward are
// negative, and the middle third only appears when homomorphic
// accumulation has overflowed the representable range.
var (
	// ErrValueTooLarge is returned when a value's magnitude exceeds n/3
	// and therefore cannot be represented by the signed encoding.
	ErrValueTooLarge = errors.New("paillier: value magnitude exceeds n/3")

	// ErrOverflow is returned on decryption when the residue falls in
	// the middle third of [0, n), which only results from overflowed
	// homomorphic arithmetic.
	ErrOverflow = errors.New("paillier: decrypted value overflowed the signed range")

	// ErrNotFinite is returned when encrypting NaN or an infinity.
	ErrNotFinite = errors.New("paillier: cannot encrypt a non-finite float")

	// ErrNonIntegral is returned by DecryptInt64 when the encrypted
	// number carries a negative base-2 exponent.
	ErrNonIntegral = errors.New("paillier: encrypted number has a fractional exponent")

	// ErrInt64Range is returned by DecryptInt64 when the decrypted
	// value does not fit in an int64.
	ErrInt64Range = errors.New("paillier: decrypted value does not fit in int64")
)

// EncryptedNumber is a ciphertext paired with a cleartext base-2
// exponent: it represents value = m * 2^Exponent where m is the signed
// plaintext hidden inside C. Integers are encrypted with exponent 0;
// floats carry the exponent produced by the exact mantissa split in
// EncryptFloat64. The exponent leaks the magnitude scale of the value,
// which is inherent to this encoding.
type EncryptedNumber struct {
	C        *big.Int `cbor:"c" json:"c"`
	Exponent int      `cbor:"e" json:"e"`
}

// EncryptInt64 encrypts a signed integer with exponent 0.
func (pub *PublicKey) EncryptInt64(random io.Reader, v int64) (*EncryptedNumber, error) {
	m, err := pub.encodeSigned(big.NewInt(v))
	if err != nil {
		return nil, err
	}
	c, err := pub.Encrypt(random, m)
	if err != nil {
		return nil, err
	}
	return &EncryptedNumber{C: c, Exponent: 0}, nil
}

// EncryptFloat64 encrypts a float64 exactly: the value is split as
// mantissa * 2^exponent with an integral 53-bit mantissa, the mantissa
// is encrypted and the exponent travels in clear. Decrypting with
// DecryptFloat64 reproduces the original value bit for bit.
func (pub *PublicKey) EncryptFloat64(random io.Reader, f float64) (*EncryptedNumber, error) {
	mant, exp, err := splitFloat(f)
	if err != nil {
		return nil, err
	}
	m, err := pub.encodeSigned(big.NewInt(mant))
	if err != nil {
		return nil, err
	}
	c, err := pub.Encrypt(random, m)
	if err != nil {
		return nil, err
	}
	return &EncryptedNumber{C: c, Exponent: exp}, nil
}

// DecryptInt64 recovers a signed integer from an encrypted number with
// a non-negative exponent.
func (priv *PrivateKey) DecryptInt64(num *EncryptedNumber) (int64, error) {
	if num.Exponent < 0 {
		return 0, ErrNonIntegral
	}
	m, err := priv.decodeSigned(num.C)
	if err != nil {
		return 0, err
	}
	if num.Exponent > 0 {
		m.Lsh(m, uint(num.Exponent))
	}
	if !m.IsInt64() {
		return 0, ErrInt64Range
	}
	return m.Int64(), nil
}

// DecryptFloat64 recovers a float64. Values produced by EncryptFloat64
// come back exactly; results of homomorphic accumulation are rounded to
// the nearest float64 if the accumulated mantissa has outgrown 53 bits.
func (priv *PrivateKey) DecryptFloat64(num *EncryptedNumber) (float64, error) {
	m, err := priv.decodeSigned(num.C)
	if err != nil {
		return 0, err
	}
	f, _ := new(big.Float).SetInt(m).Float64()
	return math.Ldexp(f, num.Exponent), nil
}

// Add combines two encrypted numbers into one encrypting their sum.
// Exponents are aligned to the smaller of the two first, which scales
// the other mantissa by a power of two under the encryption.
func (pub *PublicKey) Add(a, b *EncryptedNumber) *EncryptedNumber {
	a, b = pub.align(a, b)
	return &EncryptedNumber{
		C:        pub.AddCiphertext(a.C, b.C),
		Exponent: a.Exponent,
	}
}

// Mul scales an encrypted number by a cleartext integer factor.
func (pub *PublicKey) Mul(num *EncryptedNumber, k int64) (*EncryptedNumber, error) {
	factor, err := pub.encodeSigned(big.NewInt(k))
	if err != nil {
		return nil, err
	}
	return &EncryptedNumber{
		C:        pub.MulPlaintext(num.C, factor),
		Exponent: num.Exponent,
	}, nil
}

func (pub *PublicKey) align(a, b *EncryptedNumber) (*EncryptedNumber, *EncryptedNumber) {
	switch {
	case a.Exponent > b.Exponent:
		return pub.decreaseExponent(a, b.Exponent), b
	case b.Exponent > a.Exponent:
		return a, pub.decreaseExponent(b, a.Exponent)
	default:
		return a, b
	}
}

// decreaseExponent rewrites num to a smaller exponent by multiplying
// the hidden mantissa by 2^(num.Exponent - to).
func (pub *PublicKey) decreaseExponent(num *EncryptedNumber, to int) *EncryptedNumber {
	shift := new(big.Int).Lsh(one, uint(num.Exponent-to))
	return &EncryptedNumber{
		C:        pub.MulPlaintext(num.C, shift),
		Exponent: to,
	}
}

// encodeSigned maps a signed value of magnitude at most n/3 into [0, n).
func (pub *PublicKey) encodeSigned(v *big.Int) (*big.Int, error) {
	if v.CmpAbs(pub.MaxInt()) > 0 {
		return nil, ErrValueTooLarge
	}
	if v.Sign() < 0 {
		return new(big.Int).Add(pub.N, v), nil
	}
	return new(big.Int).Set(v), nil
}

// decodeSigned decrypts a raw ciphertext and resolves the sign of the
// residue, detecting overflow in the reserved middle third.
func (priv *PrivateKey) decodeSigned(c *big.Int) (*big.Int, error) {
	m, err := priv.Decrypt(c)
	if err != nil {
		return nil, err
	}
	maxInt := priv.MaxInt()
	if m.Cmp(maxInt) <= 0 {
		return m, nil
	}
	if m.Cmp(new(big.Int).Sub(priv.N, maxInt)) >= 0 {
		return m.Sub(m, priv.N), nil
	}
	return nil, ErrOverflow
}

// splitFloat decomposes a finite float64 into an integral mantissa and
// base-2 exponent with f == mantissa * 2^exponent exactly. Zero maps to
// (0, 0).
func splitFloat(f float64) (mantissa int64, exponent int, err error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, 0, ErrNotFinite
	}
	if f == 0 {
		return 0, 0, nil
	}
	frac, exp := math.Frexp(f)
	// frac is in [0.5, 1) with at most 53 significant bits, so scaling
	// by 2^53 yields an exact integer.
	return int64(frac * (1 << 53)), exp - 53, nil
}
