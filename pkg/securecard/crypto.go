package securecard

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

// BlockCipher is the symmetric primitive used for the handshake and for the
// payload. Both directions require block-aligned input.
type BlockCipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
	BlockSize() int
}

// ECB is AES in electronic codebook mode with no padding.
//
// ECB leaks block equality and gives no integrity. It is kept because the
// card firmware uses ALG_AES_BLOCK_128_ECB_NOPAD; authenticity of the payload
// comes from the ECDSA signature, never from this cipher.
type ECB struct {
	block cipher.Block
}

// NewECB creates an AES-128 ECB cipher from a 16-byte key.
func NewECB(key []byte) (*ECB, error) {
	if len(key) != 16 {
		return nil, errors.Errorf("AES key must be 16 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "AES key")
	}
	return &ECB{block: block}, nil
}

func (e *ECB) BlockSize() int { return e.block.BlockSize() }

func (e *ECB) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("ECB encrypt: data not block aligned (%d bytes)", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	for i := 0; i < len(plaintext); i += aes.BlockSize {
		e.block.Encrypt(out[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}
	return out, nil
}

func (e *ECB) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("ECB decrypt: data not block aligned (%d bytes)", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		e.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return out, nil
}

// padZero right-pads data with zero bytes to a multiple of blockSize.
func padZero(data []byte, blockSize int) []byte {
	n := len(data)
	if rem := n % blockSize; rem != 0 {
		n += blockSize - rem
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
