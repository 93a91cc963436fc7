package crypto

import (
	"encoding/hex"
	"io/ioutil"
	"os"

	"github.com/iov-one/quorum/errors"
	"golang.org/x/crypto/ed25519"
)

// KeyPerm is the file permissions for saved private keys
const KeyPerm = 0600

// DecodePrivateKey reads a hex string created by EncodePrivateKey
// and returns the original PrivateKey
func DecodePrivateKey(hexKey string) (PrivateKey, error) {
	data, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, "cannot decode hex")
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "private key length %d", len(data))
	}
	return PrivateKey(data), nil
}

// EncodePrivateKey stores the private key as a hex string
// that can be saved and later loaded
func EncodePrivateKey(key PrivateKey) string {
	return hex.EncodeToString(key)
}

// LoadPrivateKey will load a private key from a file,
// Which was previously writen by SavePrivateKey
func LoadPrivateKey(filename string) (PrivateKey, error) {
	raw, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "read %q: %s", filename, err)
	}
	return DecodePrivateKey(string(raw))
}

// SavePrivateKey will encode the privatekey in hex and write to
// the named file. It will refuse to overwrite a file
func SavePrivateKey(key PrivateKey, filename string, force bool) error {
	if !force {
		if _, err := os.Stat(filename); err == nil {
			return errors.Wrapf(errors.ErrDuplicate, "refusing to overwrite %q", filename)
		}
	}
	if err := ioutil.WriteFile(filename, []byte(EncodePrivateKey(key)), KeyPerm); err != nil {
		return errors.Wrapf(errors.ErrInvalidState, "write %q: %s", filename, err)
	}
	return nil
}
