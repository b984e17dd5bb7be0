package securecard

import (
	"bufio"
	"encoding/hex"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadKeyHexFile loads the 16-byte shared AES key from a .hex file.
// The file should contain a single line with 32 hexadecimal characters;
// blank lines are skipped.
func LoadKeyHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return ParseKeyHex(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("key file is empty")
}

// ParseKeyHex decodes a 32-character hex key. Spaces and colons between
// bytes are tolerated.
func ParseKeyHex(s string) ([]byte, error) {
	b, err := ParseHexBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != KeySize {
		return nil, errors.Errorf("key must be %d hex chars, got %d", 2*KeySize, 2*len(b))
	}
	return b, nil
}

// ParseHexBytes decodes hex such as "A0 32 76 93 94 03" or "a0:32:76".
func ParseHexBytes(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "\t", "").Replace(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, errors.New("empty hex string")
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex")
	}
	return b, nil
}
