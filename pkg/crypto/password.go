package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// passwordKeyInfo is the HKDF context string binding password-derived key
// material to the zone-key-encryption role, distinct from any wire-format
// context string.
const passwordKeyInfo = "zone-key-password-wrap"

const (
	passwordSaltSize = 16
)

// ReadPassword prompts on stderr and reads a line from stdin without
// echoing it back, the way an operator enters a zone-key passphrase.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// ReadPasswordTwice prompts for a password and a confirmation, returning
// an error if they don't match.
func ReadPasswordTwice(prompt string) (string, error) {
	first, err := ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	second, err := ReadPassword("Confirm: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}

// SaveZoneKeyEncrypted writes zk's private key to path, sealed under a key
// derived from password. Layout: salt[16] || iv[12] || ciphertext||tag.
func SaveZoneKeyEncrypted(path string, zk *ZoneKey, password string) error {
	salt := make([]byte, passwordSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("save encrypted zone key: %w", err)
	}
	key, err := HKDF([]byte(password), salt, []byte(passwordKeyInfo), 32)
	if err != nil {
		return fmt.Errorf("save encrypted zone key: %w", err)
	}
	iv := make([]byte, GCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return fmt.Errorf("save encrypted zone key: %w", err)
	}
	sealed, err := AESGCMEncrypt(key, iv, zk.Private)
	if err != nil {
		return fmt.Errorf("save encrypted zone key: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(iv)+len(sealed))
	out = append(out, salt...)
	out = append(out, iv...)
	out = append(out, sealed...)
	return os.WriteFile(path, out, 0o600)
}

// LoadZoneKeyEncrypted reverses SaveZoneKeyEncrypted.
func LoadZoneKeyEncrypted(path string, password string) (*ZoneKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load encrypted zone key: %w", err)
	}
	if len(raw) < passwordSaltSize+GCMNonceSize+AEADTagSize {
		return nil, fmt.Errorf("load encrypted zone key: file too short")
	}
	salt := raw[:passwordSaltSize]
	iv := raw[passwordSaltSize : passwordSaltSize+GCMNonceSize]
	sealed := raw[passwordSaltSize+GCMNonceSize:]

	key, err := HKDF([]byte(password), salt, []byte(passwordKeyInfo), 32)
	if err != nil {
		return nil, fmt.Errorf("load encrypted zone key: %w", err)
	}
	privBytes, err := AESGCMDecrypt(key, iv, sealed)
	if err != nil {
		return nil, fmt.Errorf("load encrypted zone key: wrong password or corrupt file: %w", err)
	}
	if len(privBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("load encrypted zone key: bad length %d, want %d", len(privBytes), ed25519.PrivateKeySize)
	}
	priv := ed25519.PrivateKey(privBytes)
	return &ZoneKey{Private: priv, Public: priv.Public().(ed25519.PublicKey)}, nil
}
