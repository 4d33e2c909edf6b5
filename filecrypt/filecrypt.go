package filecrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/stockvault/backup/fault"
)

// Suffix appended to encrypted backup files.
const Suffix = ".encrypted"

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// deriveKey derives a 32-byte AES-256 key from a password and salt using
// Argon2id. The salt is random per file and stored in the file header.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMem, argonPar, keySize)
}

// Encrypt encrypts the file at path in place and returns the new path with
// the Suffix appended. The plaintext original is removed on success.
//
// On-disk layout: salt (16 bytes) || nonce (12 bytes) || AES-256-GCM
// ciphertext with trailing auth tag.
func Encrypt(path string, password string) (string, error) {
	plaintext, err := os.ReadFile(path)
	if err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not read file", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not generate salt", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not generate nonce", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not initialize cipher", err)
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	newPath := path + Suffix
	if err := os.WriteFile(newPath, out, 0600); err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not write encrypted file", err)
	}

	if err := os.Remove(path); err != nil {
		return "", fault.Wrap(fault.EncryptFailed, "could not remove plaintext file", err)
	}

	return newPath, nil
}

// Decrypt decrypts the file at path and returns the plaintext path with the
// Suffix stripped. The encrypted original is removed on success. A wrong
// password and a corrupted ciphertext are indistinguishable: both fail the
// auth tag check and return a DecryptFailed fault, and no output file is
// written.
func Decrypt(path string, password string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fault.Wrap(fault.DecryptFailed, "could not read encrypted file", err)
	}

	if len(data) < saltSize+nonceSize {
		return "", fault.New(fault.DecryptFailed, "encrypted file too small")
	}

	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return "", fault.Wrap(fault.DecryptFailed, "could not initialize cipher", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fault.New(fault.DecryptFailed, "wrong password or corrupted ciphertext")
	}

	newPath := strings.TrimSuffix(path, Suffix)
	if newPath == path {
		newPath = path + ".decrypted"
	}
	if err := os.WriteFile(newPath, plaintext, 0600); err != nil {
		return "", fault.Wrap(fault.DecryptFailed, "could not write decrypted file", err)
	}

	if err := os.Remove(path); err != nil {
		return "", fault.Wrap(fault.DecryptFailed, "could not remove encrypted file", err)
	}

	return newPath, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(password, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
