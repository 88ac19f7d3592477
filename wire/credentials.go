package wire

import (
	"encoding/gob"
	"os"

	"go.bryk.io/pubsub/errors"
)

// Credentials is the broker address/authentication-key pair persisted to
// disk by the broker CLI and consumed directly by endpoint constructors.
// It is encoded with the runtime's own object-serialization facility
// (encoding/gob) as a single struct value holding the network, address
// and key.
type Credentials struct {
	Network string
	Address string
	AuthKey []byte
}

// WriteCredentials persists creds to path. It refuses to overwrite an
// existing file unless overwrite is true.
func WriteCredentials(path string, creds Credentials, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("credentials file already exists, use --overwrite to replace it")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errors.Wrap(err, "open credentials file")
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(creds); err != nil {
		return errors.Wrap(err, "encode credentials")
	}
	return nil
}

// ReadCredentials loads a Credentials value previously written by
// WriteCredentials.
func ReadCredentials(path string) (Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "open credentials file")
	}
	defer f.Close()
	var creds Credentials
	if err := gob.NewDecoder(f).Decode(&creds); err != nil {
		return Credentials{}, errors.Wrap(err, "decode credentials")
	}
	return creds, nil
}
