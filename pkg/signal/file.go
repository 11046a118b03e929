package signal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ErrNoSequence indicates the signal file exists but carries no usable
// sequence number.
var ErrNoSequence = errors.New("signal has no usable sequence")

// ReadFile reads and parses the signal file at path.
//
// A missing file returns an error satisfying errors.Is(err, fs.ErrNotExist).
// A file without a usable sequence returns the partially decoded Signal
// together with ErrNoSequence.
func ReadFile(path string) (Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Signal{}, err
	}
	sig, ok := Parse(data)
	if !ok {
		return sig, ErrNoSequence
	}
	return sig, nil
}

// Remove deletes the signal file. A file that is already gone is not an
// error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove signal file: %w", err)
	}
	return nil
}

// Exists reports whether the signal file is present.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
