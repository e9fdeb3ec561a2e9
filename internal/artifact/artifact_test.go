package artifact

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetvault/internal/paillier"
)

func testEnvelope(t *testing.T, key *paillier.PrivateKey) *Envelope {
	t.Helper()

	ints := make([]paillier.EncryptedNumber, 0, 3)
	for _, v := range []int64{1, -2, 3} {
		num, err := key.EncryptInt64(rand.Reader, v)
		require.NoError(t, err)
		ints = append(ints, *num)
	}
	floats := make([]paillier.EncryptedNumber, 0, 2)
	for _, v := range []float64{1.5, -0.25} {
		num, err := key.EncryptFloat64(rand.Reader, v)
		require.NoError(t, err)
		floats = append(floats, *num)
	}

	return &Envelope{
		FormatVersion: FormatVersion,
		RunID:         "2f0d7f0a-run",
		SourceFile:    "cleaned_validated_report.xlsx",
		CreatedAt:     time.Now(),
		Key: KeyInfo{
			N:           key.N,
			Fingerprint: key.Fingerprint(),
		},
		RowCount: 3,
		Columns: []Column{
			{Name: "volume", Kind: "int", Values: ints},
			{Name: "price", Kind: "float", Values: floats},
		},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)

	env := testEnvelope(t, key)
	data, err := codec.Marshal(env)
	require.NoError(t, err)

	got, err := codec.Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, env.RunID, got.RunID)
	assert.Equal(t, env.SourceFile, got.SourceFile)
	assert.Equal(t, env.Key.Fingerprint, got.Key.Fingerprint)
	assert.Equal(t, 0, env.Key.N.Cmp(got.Key.N))
	assert.WithinDuration(t, env.CreatedAt, got.CreatedAt, time.Millisecond)
	require.Len(t, got.Columns, 2)

	// Ciphertexts must survive serialization bit for bit: the private
	// key has to decrypt them back to the source values.
	vol, ok := got.Column("volume")
	require.True(t, ok)
	for i, want := range []int64{1, -2, 3} {
		v, err := key.DecryptInt64(&vol.Values[i])
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	price, ok := got.Column("price")
	require.True(t, ok)
	for i, want := range []float64{1.5, -0.25} {
		v, err := key.DecryptFloat64(&price.Values[i])
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
}

func TestCodec_WriteReadFile(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "encrypted", "encrypted_report"+Extension)
	env := testEnvelope(t, key)

	require.NoError(t, codec.WriteFile(path, env))

	got, err := codec.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, env.RunID, got.RunID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary file may remain after a successful write")
}

func TestCodec_UnsupportedVersion(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	data, err := codec.Marshal(&Envelope{FormatVersion: 99})
	require.NoError(t, err)

	_, err = codec.Unmarshal(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestCodec_GarbageInput(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	_, err = codec.Unmarshal([]byte("definitely not cbor"))
	assert.Error(t, err)
}

func TestEnvelope_Column(t *testing.T) {
	env := &Envelope{Columns: []Column{{Name: "a"}, {Name: "b"}}}

	col, ok := env.Column("b")
	require.True(t, ok)
	assert.Equal(t, "b", col.Name)

	_, ok = env.Column("missing")
	assert.False(t, ok)
}

func TestEnvelope_PublicKey(t *testing.T) {
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	env := &Envelope{Key: KeyInfo{N: key.N, Fingerprint: key.Fingerprint()}}

	pub := env.PublicKey()
	require.NotNil(t, pub)
	assert.Equal(t, key.Fingerprint(), pub.Fingerprint())

	// A key rebuilt from the envelope must produce ciphertexts the
	// original private key can open.
	num, err := pub.EncryptInt64(rand.Reader, 7)
	require.NoError(t, err)
	got, err := key.DecryptInt64(num)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}
