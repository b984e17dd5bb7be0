package securecard

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

const componentSize = 32 // P-256 scalar width

// ParsePublicKey parses a 65-byte uncompressed P-256 point (04 || X || Y).
// The point must lie on the curve.
func ParsePublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != PublicKeySize {
		return nil, errors.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(raw))
	}
	if raw[0] != 0x04 {
		return nil, errors.Errorf("public key is not an uncompressed point (tag 0x%02X)", raw[0])
	}
	if _, err := ecdh.P256().NewPublicKey(raw); err != nil {
		return nil, errors.Wrap(err, "public key is not a valid P-256 point")
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(raw[1 : 1+componentSize]),
		Y:     new(big.Int).SetBytes(raw[1+componentSize:]),
	}, nil
}

// DecodeSignature converts a DER ECDSA signature into the 64-byte r || s
// form. A component of 33 bytes loses its leading sign-padding zero; shorter
// components are left-padded to 32 bytes.
func DecodeSignature(der []byte) ([]byte, error) {
	if len(der) == 0 || der[0] != 0x30 {
		return nil, errors.New("signature does not start with a DER SEQUENCE tag")
	}
	input := cryptobyte.String(der)
	var seq, r, s cryptobyte.String
	if !input.ReadASN1(&seq, asn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("malformed signature SEQUENCE")
	}
	if !seq.ReadASN1(&r, asn1.INTEGER) || !seq.ReadASN1(&s, asn1.INTEGER) || !seq.Empty() {
		return nil, errors.New("malformed signature INTEGER components")
	}

	rs := make([]byte, 2*componentSize)
	if err := putComponent(rs[:componentSize], r); err != nil {
		return nil, errors.Wrap(err, "r")
	}
	if err := putComponent(rs[componentSize:], s); err != nil {
		return nil, errors.Wrap(err, "s")
	}
	return rs, nil
}

func putComponent(dst, v []byte) error {
	if len(v) == componentSize+1 && v[0] == 0x00 {
		v = v[1:]
	}
	if len(v) == 0 || len(v) > componentSize {
		return errors.Errorf("component length %d out of range", len(v))
	}
	copy(dst[componentSize-len(v):], v)
	return nil
}

// EncodeSignature encodes a 64-byte r || s signature as minimal DER.
func EncodeSignature(rs []byte) ([]byte, error) {
	if len(rs) != 2*componentSize {
		return nil, errors.Errorf("r||s must be %d bytes, got %d", 2*componentSize, len(rs))
	}
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(new(big.Int).SetBytes(rs[:componentSize]))
		b.AddASN1BigInt(new(big.Int).SetBytes(rs[componentSize:]))
	})
	return b.Bytes()
}

// VerifySignature checks r || s against the SHA-256 digest of payload, the
// ciphertext exactly as retrieved.
func VerifySignature(pub *ecdsa.PublicKey, payload, rs []byte) error {
	if pub == nil {
		return newSessionError(KindSignatureInvalid, "verify", errors.New("no public key"))
	}
	if len(rs) != 2*componentSize {
		return newSessionError(KindSignatureDecodeFailed, "verify",
			errors.Errorf("r||s must be %d bytes, got %d", 2*componentSize, len(rs)))
	}
	digest := sha256.Sum256(payload)
	r := new(big.Int).SetBytes(rs[:componentSize])
	s := new(big.Int).SetBytes(rs[componentSize:])
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return newSessionError(KindSignatureInvalid, "verify", errors.New("payload signature does not match"))
	}
	return nil
}

// FetchPublicKey reads the card's ECDSA public key.
func FetchPublicKey(card Card, tmpl CommandTemplate) (*ecdsa.PublicKey, error) {
	raw, err := transmitOK(card, "get-public-key", "", tmpl.Build(nil))
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(raw)
	if err != nil {
		return nil, newSessionError(KindKeyParseFailed, "get-public-key", err)
	}
	return pub, nil
}

// FetchSignature reads the detached payload signature and returns it as r || s.
func FetchSignature(card Card, tmpl CommandTemplate) ([]byte, error) {
	der, err := transmitOK(card, "get-signature", "", tmpl.Build(nil))
	if err != nil {
		return nil, err
	}
	if len(der) > MaxSignatureSize {
		return nil, newSessionError(KindSignatureDecodeFailed, "get-signature",
			errors.Errorf("signature too long (%d bytes)", len(der)))
	}
	rs, err := DecodeSignature(der)
	if err != nil {
		return nil, newSessionError(KindSignatureDecodeFailed, "get-signature", err)
	}
	return rs, nil
}
