package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
)

// Digest returns the SHA-256 digest of data as a lowercase hex string.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestFile returns the SHA-256 digest of the file at path.
func DigestFile(path string) (string, error) {
	var err error
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer func() {
		closeErr := file.Close()
		err = errors.Join(err, closeErr)
	}()

	hash := sha256.New()
	if _, err = io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), err
}

// Verify reports whether the file at path digests to expected. Any read
// failure counts as a mismatch; verification sits on a trust boundary and
// must never take the caller down.
func Verify(path string, expected string) bool {
	if expected == "" {
		return false
	}
	actual, err := DigestFile(path)
	if err != nil {
		return false
	}
	return actual == expected
}
