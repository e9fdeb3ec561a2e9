// Command vaultinspect examines encrypted artifacts produced by the
// sheetvault pipeline. Without a key it prints envelope metadata and can
// compute homomorphic column sums over the ciphertexts; with the sealed
// key store it also decrypts.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"sheetvault/internal/artifact"
	"sheetvault/internal/paillier"
	"sheetvault/internal/security"
)

// passphraseEnv names the environment variable holding the key store
// passphrase, matching the server's configuration variable so the same
// deployment environment works for both.
const passphraseEnv = "SHEETVAULT_CRYPTO_PASSPHRASE"

func main() {
	keyFile := flag.String("key", "", "path to the sealed key store; unlocked with "+passphraseEnv)
	decrypt := flag.Bool("decrypt", false, "decrypt and print column values (requires -key)")
	sumCol := flag.String("sum", "", "homomorphically sum the named column")
	limit := flag.Int("limit", 10, "rows to print per column with -decrypt (0 = all)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: vaultinspect [flags] <artifact.cbor>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *decrypt && *keyFile == "" {
		slog.Error("-decrypt requires -key")
		os.Exit(2)
	}

	codec, err := artifact.NewCodec()
	if err != nil {
		slog.Error("Failed to create codec", slog.String("error", err.Error()))
		os.Exit(1)
	}
	env, err := codec.ReadFile(flag.Arg(0))
	if err != nil {
		slog.Error("Failed to read artifact", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var priv *paillier.PrivateKey
	if *keyFile != "" {
		priv = loadKey(*keyFile)
		if priv.Fingerprint() != env.Key.Fingerprint {
			slog.Error("Key does not match artifact",
				slog.String("key_fingerprint", priv.Fingerprint()),
				slog.String("artifact_fingerprint", env.Key.Fingerprint))
			os.Exit(1)
		}
	}

	printSummary(flag.Arg(0), env)

	if *sumCol != "" {
		printSum(env, *sumCol, priv)
	}
	if *decrypt {
		printValues(env, priv, *limit)
	}
}

// loadKey opens the sealed store with the passphrase from the
// environment. Store logging is discarded; this is an interactive tool.
func loadKey(path string) *paillier.PrivateKey {
	passphrase := os.Getenv(passphraseEnv)
	if passphrase == "" {
		slog.Error(passphraseEnv + " is not set")
		os.Exit(1)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := security.NewStore(path, passphrase, quiet)
	if err != nil {
		slog.Error("Failed to open key store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	priv, err := store.Load()
	if err != nil {
		slog.Error("Failed to load key pair", slog.String("error", err.Error()))
		os.Exit(1)
	}
	return priv
}

func printSummary(path string, env *artifact.Envelope) {
	fmt.Printf("artifact:        %s\n", path)
	fmt.Printf("format version:  %d\n", env.FormatVersion)
	fmt.Printf("run id:          %s\n", env.RunID)
	fmt.Printf("source file:     %s\n", env.SourceFile)
	fmt.Printf("created at:      %s\n", env.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Printf("key fingerprint: %s\n", env.Key.Fingerprint)
	fmt.Printf("modulus bits:    %d\n", env.Key.N.BitLen())
	fmt.Printf("rows:            %d\n", env.RowCount)
	fmt.Printf("columns:         %d\n", len(env.Columns))
	for _, col := range env.Columns {
		fmt.Printf("  %-24s %-6s %d values\n", col.Name, col.Kind, len(col.Values))
	}
}

// printSum accumulates the column under encryption. Addition happens on
// the ciphertexts alone, so it works without the private key; the key
// is only needed to reveal the result.
func printSum(env *artifact.Envelope, name string, priv *paillier.PrivateKey) {
	col, ok := env.Column(name)
	if !ok {
		slog.Error("Column not found in artifact", slog.String("column", name))
		os.Exit(1)
	}

	fmt.Println()
	if len(col.Values) == 0 {
		fmt.Printf("sum(%s): column is empty\n", name)
		return
	}

	pub := env.PublicKey()
	total := &col.Values[0]
	for i := 1; i < len(col.Values); i++ {
		total = pub.Add(total, &col.Values[i])
	}

	if priv == nil {
		fmt.Printf("sum(%s): ciphertext %s (exponent %d)\n", name, abbreviate(total.C.Text(16)), total.Exponent)
		fmt.Println("rerun with -key to decrypt the sum")
		return
	}

	if col.Kind == "int" && total.Exponent >= 0 {
		v, err := priv.DecryptInt64(total)
		if err != nil {
			reportDecryptError(name, err)
			return
		}
		fmt.Printf("sum(%s): %d over %d rows\n", name, v, len(col.Values))
		return
	}
	f, err := priv.DecryptFloat64(total)
	if err != nil {
		reportDecryptError(name, err)
		return
	}
	fmt.Printf("sum(%s): %g over %d rows\n", name, f, len(col.Values))
}

func printValues(env *artifact.Envelope, priv *paillier.PrivateKey, limit int) {
	for i := range env.Columns {
		col := &env.Columns[i]
		n := len(col.Values)
		if limit > 0 && limit < n {
			n = limit
		}

		fmt.Printf("\n%s (%s):\n", col.Name, col.Kind)
		for j := 0; j < n; j++ {
			if col.Kind == "int" {
				v, err := priv.DecryptInt64(&col.Values[j])
				if err != nil {
					fmt.Printf("  [%d] error: %v\n", j, err)
					continue
				}
				fmt.Printf("  [%d] %d\n", j, v)
				continue
			}
			f, err := priv.DecryptFloat64(&col.Values[j])
			if err != nil {
				fmt.Printf("  [%d] error: %v\n", j, err)
				continue
			}
			fmt.Printf("  [%d] %g\n", j, f)
		}
		if n < len(col.Values) {
			fmt.Printf("  (%d more rows)\n", len(col.Values)-n)
		}
	}
}

func reportDecryptError(column string, err error) {
	if errors.Is(err, paillier.ErrOverflow) {
		fmt.Printf("sum(%s): overflowed the representable range\n", column)
		return
	}
	slog.Error("Failed to decrypt sum",
		slog.String("column", column),
		slog.String("error", err.Error()))
	os.Exit(1)
}

// abbreviate keeps ciphertext output readable; the full value carries no
// information a human can use anyway.
func abbreviate(s string) string {
	if len(s) <= 40 {
		return s
	}
	return s[:40] + "..."
}
