// Package cardsim is a software applet that speaks the secure read protocol.
// It stands in for a physical card in tests and in the reader's emulator mode.
package cardsim

import (
	"bytes"
	"crypto/aes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"github.com/skythen/apdu"

	"github.com/barnettlynn/securecard/pkg/securecard"
)

// DefaultNonce is the nonce the card firmware returns from GET_NONCE.
var DefaultNonce = []byte{
	0x01, 0x02, 0x03, 0x04, 0x05, 0x11, 0x12, 0x13,
	0x14, 0x15, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
}

// DefaultCardID is appended to the echoed reader nonce in RESPOND_AUTH.
var DefaultCardID = []byte{
	0x01, 0x04, 0x03, 0x02, 0x05, 0x11, 0x12, 0x13,
	0x15, 0x14, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
}

// TamperFunc may rewrite the data part of a response before it is sent.
type TamperFunc func(ins byte, data []byte) []byte

// Option configures an Applet.
type Option func(*Applet)

// WithNonce sets the nonce returned from GET_NONCE.
func WithNonce(nonce []byte) Option {
	return func(a *Applet) { a.nonce = append([]byte(nil), nonce...) }
}

// WithCardID sets the card identifier returned after the reader nonce.
func WithCardID(id []byte) Option {
	return func(a *Applet) { a.cardID = append([]byte(nil), id...) }
}

// WithSigningKey sets the ECDSA P-256 key used to sign the payload.
func WithSigningKey(key *ecdsa.PrivateKey) Option {
	return func(a *Applet) { a.signKey = key }
}

// WithPadByte sets the byte used to fill the record up to the block size.
func WithPadByte(b byte) Option {
	return func(a *Applet) { a.padByte = b }
}

// WithTamper installs a hook that rewrites response data.
func WithTamper(fn TamperFunc) Option {
	return func(a *Applet) { a.tamper = fn }
}

// Applet emulates one provisioned card for a single deployment profile.
type Applet struct {
	mu sync.Mutex

	cfg     securecard.Config
	nonce   []byte
	cardID  []byte
	padByte byte
	signKey *ecdsa.PrivateKey
	tamper  TamperFunc

	ciphertext []byte
	signature  []byte

	selected      bool
	authenticated bool
	readerNonce   []byte
	history       []apdu.Capdu
}

// New provisions an applet for cfg holding record. The record is padded to
// the AES block size, encrypted with cfg.Key and signed.
func New(cfg securecard.Config, record []byte, opts ...Option) (*Applet, error) {
	if len(cfg.Key) != securecard.KeySize {
		return nil, errors.Errorf("applet key must be %d bytes, got %d", securecard.KeySize, len(cfg.Key))
	}
	a := &Applet{
		cfg:    cfg,
		nonce:  append([]byte(nil), DefaultNonce...),
		cardID: append([]byte(nil), DefaultCardID...),
	}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.nonce) == 0 {
		return nil, errors.New("applet nonce is empty")
	}
	if a.signKey == nil {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "generate signing key")
		}
		a.signKey = key
	}

	bc, err := securecard.NewECB(cfg.Key)
	if err != nil {
		return nil, err
	}
	plain := append([]byte(nil), record...)
	for len(plain)%aes.BlockSize != 0 {
		plain = append(plain, a.padByte)
	}
	ct, err := bc.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	if err := a.setCiphertext(ct); err != nil {
		return nil, err
	}
	return a, nil
}

// NewFromCiphertext provisions an applet that serves ciphertext as stored.
func NewFromCiphertext(cfg securecard.Config, ciphertext []byte, opts ...Option) (*Applet, error) {
	a, err := New(cfg, nil, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.setCiphertext(append([]byte(nil), ciphertext...)); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Applet) setCiphertext(ct []byte) error {
	digest := sha256.Sum256(ct)
	sig, err := ecdsa.SignASN1(rand.Reader, a.signKey, digest[:])
	if err != nil {
		return errors.Wrap(err, "sign payload")
	}
	a.ciphertext = ct
	a.signature = sig
	return nil
}

// Ciphertext returns the stored encrypted payload.
func (a *Applet) Ciphertext() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.ciphertext...)
}

// Signature returns the DER signature served by GET_SIGNATURE.
func (a *Applet) Signature() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]byte(nil), a.signature...)
}

// SetSignature replaces the DER signature served by GET_SIGNATURE.
func (a *Applet) SetSignature(der []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signature = append([]byte(nil), der...)
}

// PublicKey returns the uncompressed signing public key (04 || X || Y).
func (a *Applet) PublicKey() []byte {
	pub, err := a.signKey.PublicKey.ECDH()
	if err != nil {
		return nil
	}
	return pub.Bytes()
}

// History returns the commands received so far.
func (a *Applet) History() []apdu.Capdu {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]apdu.Capdu(nil), a.history...)
}

// Transmit implements securecard.Card.
func (a *Applet) Transmit(raw []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cmd, err := apdu.ParseCapdu(raw)
	if err != nil {
		slog.Debug("cardsim: malformed command", "error", err)
		return status(securecard.SWWrongLength), nil
	}
	a.history = append(a.history, *cmd)

	data, sw := a.process(*cmd)
	if sw == securecard.SWSuccess && a.tamper != nil {
		data = a.tamper(cmd.Ins, append([]byte(nil), data...))
	}
	return append(append([]byte(nil), data...), byte(sw>>8), byte(sw)), nil
}

func status(sw uint16) []byte {
	return []byte{byte(sw >> 8), byte(sw)}
}

func (a *Applet) process(cmd apdu.Capdu) ([]byte, uint16) {
	c := a.cfg.Commands
	if cmd.Ins == c.Select.INS && cmd.Cla == c.Select.CLA {
		return a.selectApplet(cmd)
	}
	if !a.selected {
		return nil, securecard.SWInsNotSupported
	}

	var tmpl securecard.CommandTemplate
	var handler func(apdu.Capdu) ([]byte, uint16)
	switch cmd.Ins {
	case c.GetNonce.INS:
		tmpl, handler = c.GetNonce, a.getNonce
	case c.MutualAuth.INS:
		tmpl, handler = c.MutualAuth, a.mutualAuth
	case c.RespondAuth.INS:
		tmpl, handler = c.RespondAuth, a.respondAuth
	case c.GetData.INS:
		tmpl, handler = c.GetData, a.getData
	case c.GetSignature.INS:
		tmpl, handler = c.GetSignature, a.getSignature
	case c.GetPublicKey.INS:
		tmpl, handler = c.GetPublicKey, a.getPublicKey
	default:
		return nil, securecard.SWInsNotSupported
	}
	if cmd.Cla != tmpl.CLA {
		return nil, securecard.SWClaNotSupported
	}
	return handler(cmd)
}

func (a *Applet) selectApplet(cmd apdu.Capdu) ([]byte, uint16) {
	a.authenticated = false
	a.readerNonce = nil
	if !bytes.Equal(cmd.Data, a.cfg.AID) {
		a.selected = false
		return nil, securecard.SWFileNotFound
	}
	a.selected = true
	return nil, securecard.SWSuccess
}

func (a *Applet) getNonce(apdu.Capdu) ([]byte, uint16) {
	return a.nonce, securecard.SWSuccess
}

// mutualAuth expects Enc(nonce || readerNonce || zero fill).
func (a *Applet) mutualAuth(cmd apdu.Capdu) ([]byte, uint16) {
	a.authenticated = false
	n := len(cmd.Data)
	if n == 0 || n%aes.BlockSize != 0 || n < len(a.nonce)+securecard.ReaderNonceSize {
		return nil, securecard.SWWrongLength
	}
	bc, err := securecard.NewECB(a.cfg.Key)
	if err != nil {
		return nil, securecard.SWConditionsNotSatisfied
	}
	plain, err := bc.Decrypt(cmd.Data)
	if err != nil {
		return nil, securecard.SWWrongLength
	}
	if !bytes.Equal(plain[:len(a.nonce)], a.nonce) {
		return nil, securecard.SWSecurityNotSatisfied
	}
	a.readerNonce = append([]byte(nil), plain[len(a.nonce):len(a.nonce)+securecard.ReaderNonceSize]...)
	a.authenticated = true
	return nil, securecard.SWSuccess
}

func (a *Applet) respondAuth(apdu.Capdu) ([]byte, uint16) {
	if !a.authenticated {
		return nil, securecard.SWConditionsNotSatisfied
	}
	bc, err := securecard.NewECB(a.cfg.Key)
	if err != nil {
		return nil, securecard.SWConditionsNotSatisfied
	}
	plain := make([]byte, 0, securecard.ReaderNonceSize+len(a.cardID)+aes.BlockSize)
	plain = append(plain, a.readerNonce...)
	plain = append(plain, a.cardID...)
	for len(plain)%aes.BlockSize != 0 {
		plain = append(plain, 0x00)
	}
	out, err := bc.Encrypt(plain)
	if err != nil {
		return nil, securecard.SWConditionsNotSatisfied
	}
	return out, securecard.SWSuccess
}

// getData serves the whole payload in single mode, otherwise up to Ne bytes
// at the P1P2 offset. Reading exactly at the end yields an empty 90 00 and
// only offsets past the end get 6B 00. Card firmware answers 6B 00 already at
// offset == length, so a payload that is an exact multiple of the chunk size
// reads here but fails against a real card.
func (a *Applet) getData(cmd apdu.Capdu) ([]byte, uint16) {
	if !a.authenticated {
		return nil, securecard.SWConditionsNotSatisfied
	}
	if a.cfg.Retrieval == securecard.RetrievalSingle {
		return a.ciphertext, securecard.SWSuccess
	}
	offset := int(cmd.P1)<<8 | int(cmd.P2)
	if offset > len(a.ciphertext) {
		return nil, securecard.SWWrongP1P2
	}
	end := offset + cmd.Ne
	if end > len(a.ciphertext) {
		end = len(a.ciphertext)
	}
	return a.ciphertext[offset:end], securecard.SWSuccess
}

func (a *Applet) getSignature(apdu.Capdu) ([]byte, uint16) {
	if !a.authenticated {
		return nil, securecard.SWConditionsNotSatisfied
	}
	return a.signature, securecard.SWSuccess
}

func (a *Applet) getPublicKey(apdu.Capdu) ([]byte, uint16) {
	pub := a.PublicKey()
	if pub == nil {
		return nil, securecard.SWConditionsNotSatisfied
	}
	return pub, securecard.SWSuccess
}
