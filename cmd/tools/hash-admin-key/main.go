// Command hash-admin-key generates or hashes the administrative key that
// guards binding edits. The printed hash goes into CLIPBIND_ADMIN_KEY_HASH or
// the --admin-key-hash flag; the plain key stays with the operator.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"clipbind/internal/auth"
)

const generatedKeyBytes = 24

func main() {
	key := flag.String("key", "", "existing admin key to hash (generates a fresh key when empty)")
	flag.Parse()

	plain := strings.TrimSpace(*key)
	generated := false
	if plain == "" {
		buf := make([]byte, generatedKeyBytes)
		if _, err := rand.Read(buf); err != nil {
			fatalf("generate key: %v", err)
		}
		plain = hex.EncodeToString(buf)
		generated = true
	}
	if len(plain) < 16 {
		fatalf("--key must be at least 16 characters")
	}

	hash, err := auth.HashAPIKey(plain)
	if err != nil {
		fatalf("hash key: %v", err)
	}

	if generated {
		fmt.Printf("Admin key: %s\n", plain)
	}
	fmt.Printf("Hash: %s\n", hash)
	fmt.Println("Store the hash in CLIPBIND_ADMIN_KEY_HASH and keep the key itself secret.")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
