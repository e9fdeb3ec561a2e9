// Package artifact defines the encrypted artifact container written by
// the encryption stage and the CBOR codec that serializes it.
//
// An artifact is a single CBOR document: run metadata, the public key
// that produced the ciphertexts, and one ciphertext sequence per
// numeric source column, order-preserving row by row. Non-numeric
// columns are not represented at all. Ciphertext moduli are CBOR
// bignums, so an artifact round-trips through any compliant decoder.
package artifact

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"sheetvault/internal/paillier"
)

// FormatVersion identifies the envelope layout. Bump on incompatible
// changes.
const FormatVersion = 1

// Extension is the file extension of serialized artifacts.
const Extension = ".cbor"

// Envelope is the encrypted artifact for one processed workbook.
type Envelope struct {
	FormatVersion int       `cbor:"format_version"`
	RunID         string    `cbor:"run_id"`
	SourceFile    string    `cbor:"source_file"`
	CreatedAt     time.Time `cbor:"created_at"`
	Key           KeyInfo   `cbor:"key"`
	RowCount      int       `cbor:"row_count"`
	Columns       []Column  `cbor:"columns"`
}

// KeyInfo carries the public half of the key pair that encrypted the
// artifact, enough to verify provenance and to run homomorphic
// operations without the private key.
type KeyInfo struct {
	N           *big.Int `cbor:"n"`
	Fingerprint string   `cbor:"fingerprint"`
}

// Column is one encrypted numeric column. Kind records the source
// column's element type ("int" or "float"); Values[i] corresponds to
// row i of the cleaned table.
type Column struct {
	Name   string                     `cbor:"name"`
	Kind   string                     `cbor:"kind"`
	Values []paillier.EncryptedNumber `cbor:"values"`
}

// PublicKey rebuilds the Paillier public key embedded in the envelope.
func (e *Envelope) PublicKey() *paillier.PublicKey {
	return &paillier.PublicKey{N: e.Key.N}
}

// Column returns the named column, if present.
func (e *Envelope) Column(name string) (*Column, bool) {
	for i := range e.Columns {
		if e.Columns[i].Name == name {
			return &e.Columns[i], true
		}
	}
	return nil, false
}

// Codec serializes envelopes with fixed CBOR options so artifacts are
// readable across versions and platforms.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec builds the codec used for all artifact IO.
func NewCodec() (*Codec, error) {
	enc, err := cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
		Time:          cbor.TimeUnixMicro,
		TimeTag:       cbor.EncTagNone,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		// One ciphertext per spreadsheet row; cover the xlsx row limit.
		MaxArrayElements: 1 << 21,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	return &Codec{enc: enc, dec: dec}, nil
}

// Marshal encodes an envelope to CBOR bytes.
func (c *Codec) Marshal(env *Envelope) ([]byte, error) {
	return c.enc.Marshal(env)
}

// Unmarshal decodes CBOR bytes into an envelope and checks the format
// version.
func (c *Codec) Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := c.dec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d", env.FormatVersion)
	}
	return &env, nil
}

// WriteFile serializes the envelope to path, creating the parent
// directory if needed. The document is written to a temporary file and
// renamed into place, so a crash mid-write cannot leave a truncated
// file that looks like a finished artifact.
func (c *Codec) WriteFile(path string, env *Envelope) error {
	data, err := c.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize artifact: %w", err)
	}
	return nil
}

// ReadFile loads and decodes an artifact from disk.
func (c *Codec) ReadFile(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return c.Unmarshal(data)
}
