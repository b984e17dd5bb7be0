package securecard

import (
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
)

// AuthState is a state of the mutual authentication handshake.
type AuthState int

const (
	StateIdle AuthState = iota
	StateAppletSelected
	StateChallengeReceived
	StateChallengeSent
	StateAuthenticated
	StateFailed
)

func (s AuthState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAppletSelected:
		return "applet-selected"
	case StateChallengeReceived:
		return "challenge-received"
	case StateChallengeSent:
		return "challenge-sent"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// handshake drives SELECT, GET_NONCE, MUTUAL_AUTH and RESPOND_AUTH once, in
// that order. There is no retry: the first failing step moves it to StateFailed.
type handshake struct {
	card      Card
	cfg       Config
	cipher    BlockCipher
	state     AuthState
	cardNonce []byte
}

// Authenticate runs the mutual authentication handshake against card and
// returns the final state. The only success state is StateAuthenticated.
//
// Fail states:
//   - select rejected: KindCommandRejected ("applet not selectable")
//   - nonce request or MUTUAL_AUTH rejected: KindCommandRejected
//   - RESPOND_AUTH rejected: KindCommandRejected
//   - echoed reader nonce differs: KindAuthenticationFailed ("nonce mismatch")
func Authenticate(card Card, cfg Config, bc BlockCipher) (AuthState, error) {
	h := &handshake{card: card, cfg: cfg, cipher: bc, state: StateIdle}
	err := h.run()
	return h.state, err
}

func (h *handshake) run() error {
	steps := []func() error{h.selectApplet, h.requestNonce, h.sendChallenge, h.checkResponse}
	for _, step := range steps {
		if err := step(); err != nil {
			slog.Debug("handshake failed", "state", h.state.String(), "error", err)
			h.state = StateFailed
			return err
		}
		slog.Debug("handshake step", "state", h.state.String())
	}
	return nil
}

func (h *handshake) selectApplet() error {
	cmd := h.cfg.Commands.Select.Build(h.cfg.AID)
	if _, err := transmitOK(h.card, "select", "applet not selectable", cmd); err != nil {
		return err
	}
	h.state = StateAppletSelected
	return nil
}

func (h *handshake) requestNonce() error {
	data, err := transmitOK(h.card, "get-nonce", "", h.cfg.Commands.GetNonce.Build(nil))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return newSessionError(KindCommandRejected, "get-nonce", errors.New("card returned an empty nonce"))
	}
	h.cardNonce = append([]byte(nil), data...)
	h.state = StateChallengeReceived
	slog.Debug("card nonce", "nonce", hexUpper(h.cardNonce))
	return nil
}

func (h *handshake) sendChallenge() error {
	// cardNonce || readerNonce, zero-filled to the cipher block size.
	plain := make([]byte, 0, len(h.cardNonce)+len(h.cfg.ReaderNonce))
	plain = append(plain, h.cardNonce...)
	plain = append(plain, h.cfg.ReaderNonce...)
	plain = padZero(plain, h.cipher.BlockSize())

	enc, err := h.cipher.Encrypt(plain)
	if err != nil {
		return newSessionError(KindCommandRejected, "mutual-auth", errors.Wrap(err, "encrypt challenge"))
	}
	if _, err := transmitOK(h.card, "mutual-auth", "handshake rejected", h.cfg.Commands.MutualAuth.Build(enc)); err != nil {
		return err
	}
	h.state = StateChallengeSent
	return nil
}

func (h *handshake) checkResponse() error {
	data, err := transmitOK(h.card, "respond-auth", "", h.cfg.Commands.RespondAuth.Build(nil))
	if err != nil {
		return err
	}
	if len(data) < ReaderNonceSize || len(data)%h.cipher.BlockSize() != 0 {
		return newSessionError(KindAuthenticationFailed, "respond-auth",
			errors.Errorf("malformed auth response (%d bytes)", len(data)))
	}
	dec, err := h.cipher.Decrypt(data)
	if err != nil {
		return newSessionError(KindAuthenticationFailed, "respond-auth", err)
	}
	if subtle.ConstantTimeCompare(dec[:ReaderNonceSize], h.cfg.ReaderNonce) != 1 {
		return newSessionError(KindAuthenticationFailed, "respond-auth", errors.New("nonce mismatch"))
	}
	h.state = StateAuthenticated
	slog.Info("mutual authentication succeeded", "profile", h.cfg.Name)
	return nil
}
