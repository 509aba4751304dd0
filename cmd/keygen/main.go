// Command keygen prints a fresh base64-encoded AES-256 key for the
// ENCRYPTION_KEY environment variable.
package main

import (
	"fmt"
	"os"

	"github.com/dmitrymomot/authd/pkg/secrets"
)

func main() {
	key, err := secrets.GenerateEncodedKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(key)
}
