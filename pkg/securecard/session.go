package securecard

import (
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// Phase is the progress of a Session through the protocol.
type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseAuthenticated
	PhaseKeyFetched
	PhasePayloadFetched
	PhaseSignatureVerified
	PhaseDecrypted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseKeyFetched:
		return "key-fetched"
	case PhasePayloadFetched:
		return "payload-fetched"
	case PhaseSignatureVerified:
		return "signature-verified"
	case PhaseDecrypted:
		return "decrypted"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Session runs the secure read protocol against one card, once.
//
// Each operation advances the session by exactly one phase and must be
// called in order. The first failure is terminal: every later call returns
// the same error. A Session is not safe for concurrent use.
type Session struct {
	card   Card
	cfg    Config
	cipher BlockCipher

	phase   Phase
	err     error
	pub     *ecdsa.PublicKey
	payload []byte
	record  Record
}

// NewSession validates cfg and prepares a session on card.
func NewSession(card Card, cfg Config) (*Session, error) {
	if card == nil {
		return nil, errors.New("nil card")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "profile %q", cfg.Name)
	}
	bc, err := NewECB(cfg.Key)
	if err != nil {
		return nil, err
	}
	cfg.AID = append([]byte(nil), cfg.AID...)
	cfg.Key = append([]byte(nil), cfg.Key...)
	cfg.ReaderNonce = append([]byte(nil), cfg.ReaderNonce...)
	return &Session{card: card, cfg: cfg, cipher: bc}, nil
}

// Phase reports the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error { return s.err }

// Payload returns the encrypted payload once it has been fetched.
func (s *Session) Payload() []byte { return s.payload }

// PublicKey returns the card key once it has been fetched.
func (s *Session) PublicKey() *ecdsa.PublicKey { return s.pub }

// Record returns the recovered record once the session is decrypted.
func (s *Session) Record() Record { return s.record }

func (s *Session) enter(want Phase, op string) error {
	if s.phase == PhaseFailed {
		return s.err
	}
	if s.phase != want {
		return errors.Wrapf(ErrSessionState, "%s called in phase %s", op, s.phase)
	}
	return nil
}

func (s *Session) advance(next Phase, err error) error {
	if err != nil {
		s.phase = PhaseFailed
		s.err = err
		slog.Warn("session failed", "profile", s.cfg.Name, "error", err)
		return err
	}
	s.phase = next
	slog.Debug("session phase", "profile", s.cfg.Name, "phase", next.String())
	return nil
}

// Authenticate performs the mutual authentication handshake.
func (s *Session) Authenticate() error {
	if err := s.enter(PhaseUnauthenticated, "Authenticate"); err != nil {
		return err
	}
	_, err := Authenticate(s.card, s.cfg, s.cipher)
	return s.advance(PhaseAuthenticated, err)
}

// FetchPublicKey reads the card's signing key.
func (s *Session) FetchPublicKey() error {
	if err := s.enter(PhaseAuthenticated, "FetchPublicKey"); err != nil {
		return err
	}
	pub, err := FetchPublicKey(s.card, s.cfg.Commands.GetPublicKey)
	s.pub = pub
	return s.advance(PhaseKeyFetched, err)
}

// FetchPayload retrieves the encrypted payload.
func (s *Session) FetchPayload() error {
	if err := s.enter(PhaseKeyFetched, "FetchPayload"); err != nil {
		return err
	}
	var (
		payload []byte
		err     error
	)
	switch s.cfg.Retrieval {
	case RetrievalSingle:
		payload, err = ReadSingle(s.card, s.cfg.Commands.GetData, s.cfg.MaxPayload)
	default:
		payload, err = ReadChunked(s.card, s.cfg.Commands.GetData, s.cfg.ChunkSize, s.cfg.MaxPayload)
	}
	if err == nil {
		slog.Info("payload retrieved", "profile", s.cfg.Name, "bytes", len(payload))
	}
	s.payload = payload
	return s.advance(PhasePayloadFetched, err)
}

// VerifyPayload fetches the detached signature and checks it against the
// payload as retrieved.
func (s *Session) VerifyPayload() error {
	if err := s.enter(PhasePayloadFetched, "VerifyPayload"); err != nil {
		return err
	}
	rs, err := FetchSignature(s.card, s.cfg.Commands.GetSignature)
	if err == nil {
		err = VerifySignature(s.pub, s.payload, rs)
	}
	if err == nil {
		slog.Info("payload signature verified", "profile", s.cfg.Name)
	}
	return s.advance(PhaseSignatureVerified, err)
}

// Decrypt decrypts the verified payload and extracts the record.
func (s *Session) Decrypt() (Record, error) {
	if err := s.enter(PhaseSignatureVerified, "Decrypt"); err != nil {
		return nil, err
	}
	rec, err := DecryptRecord(s.cipher, s.payload, s.cfg.Padding, s.cfg.Delimiter)
	if err := s.advance(PhaseDecrypted, err); err != nil {
		return nil, err
	}
	s.record = rec
	return rec, nil
}

// Run drives the session through every phase and returns the record.
func (s *Session) Run() (Record, error) {
	for _, step := range []func() error{s.Authenticate, s.FetchPublicKey, s.FetchPayload, s.VerifyPayload} {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return s.Decrypt()
}
