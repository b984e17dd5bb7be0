package securecard

import (
	"sort"

	"github.com/pkg/errors"
)

const (
	KeySize          = 16  // AES-128 shared key
	ReaderNonceSize  = 16  // Fixed reader nonce, echoed back by the card
	DefaultChunkSize = 240 // GET_DATA chunk used by every known deployment
	PublicKeySize    = 65  // Uncompressed P-256 point
	MaxSignatureSize = 72  // DER ECDSA P-256 signature upper bound
)

// RetrievalMode selects how the encrypted payload is fetched.
type RetrievalMode string

const (
	// RetrievalChunked issues GET_DATA at increasing offsets until a short read.
	RetrievalChunked RetrievalMode = "chunked"
	// RetrievalSingle issues one GET_DATA and takes the whole response.
	RetrievalSingle RetrievalMode = "single"
)

// PaddingMode selects how the record is cut out of the decrypted buffer.
type PaddingMode string

const (
	// PaddingTrimNUL trims trailing NUL bytes and whitespace, then parses the rest.
	PaddingTrimNUL PaddingMode = "trim_nul"
	// PaddingLastDelimiter keeps everything up to the last structural delimiter.
	PaddingLastDelimiter PaddingMode = "last_delimiter"
)

// Commands holds the command headers of one deployment.
type Commands struct {
	Select       CommandTemplate
	GetNonce     CommandTemplate
	MutualAuth   CommandTemplate
	RespondAuth  CommandTemplate
	GetData      CommandTemplate
	GetSignature CommandTemplate
	GetPublicKey CommandTemplate
}

// Config is everything a Session needs to know about one deployment.
type Config struct {
	Name        string
	AID         []byte
	Commands    Commands
	Key         []byte // 16-byte shared AES key
	ReaderNonce []byte // 16-byte fixed reader nonce
	ChunkSize   int
	Retrieval   RetrievalMode
	MaxPayload  int // 0 = unbounded
	Padding     PaddingMode
	Delimiter   byte
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if len(c.AID) < 5 || len(c.AID) > 16 {
		return errors.Errorf("AID must be 5..16 bytes, got %d", len(c.AID))
	}
	if len(c.Key) != KeySize {
		return errors.Errorf("shared key must be %d bytes, got %d", KeySize, len(c.Key))
	}
	if len(c.ReaderNonce) != ReaderNonceSize {
		return errors.Errorf("reader nonce must be %d bytes, got %d", ReaderNonceSize, len(c.ReaderNonce))
	}
	switch c.Retrieval {
	case RetrievalChunked:
		if c.ChunkSize < 1 || c.ChunkSize > maxShortNe {
			return errors.Errorf("chunk size must be 1..%d, got %d", maxShortNe, c.ChunkSize)
		}
	case RetrievalSingle:
		if c.Commands.GetData.Ne < 1 {
			return errors.Errorf("single retrieval requires an Le on the GET_DATA command")
		}
	default:
		return errors.Errorf("unsupported retrieval mode %q", c.Retrieval)
	}
	if c.MaxPayload < 0 {
		return errors.Errorf("max payload must be >= 0")
	}
	switch c.Padding {
	case PaddingTrimNUL:
	case PaddingLastDelimiter:
		if c.Delimiter == 0 {
			return errors.Errorf("last_delimiter padding requires a delimiter byte")
		}
	default:
		return errors.Errorf("unsupported padding mode %q", c.Padding)
	}
	for _, t := range []struct {
		name string
		tmpl CommandTemplate
	}{
		{"get_nonce", c.Commands.GetNonce},
		{"respond_auth", c.Commands.RespondAuth},
		{"get_signature", c.Commands.GetSignature},
		{"get_public_key", c.Commands.GetPublicKey},
	} {
		if t.tmpl.Ne < 1 || t.tmpl.Ne > maxShortNe {
			return errors.Errorf("%s command needs an Le in 1..%d", t.name, maxShortNe)
		}
	}
	return nil
}

// DefaultReaderNonce is the reader nonce provisioned into every known deployment.
var DefaultReaderNonce = []byte{
	0x51, 0x52, 0x53, 0x54, 0x55, 0x41, 0x42, 0x43,
	0x44, 0x15, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26,
}

// commonCommands are the headers shared by all four applets; only GET_DATA differs.
func commonCommands(getData CommandTemplate) Commands {
	return Commands{
		Select:       CommandTemplate{CLA: 0x00, INS: 0xA4, P1: 0x04, P2: 0x00},
		GetNonce:     CommandTemplate{CLA: 0x80, INS: 0xCA, P1: 0x00, P2: 0x00, Ne: 0x05},
		MutualAuth:   CommandTemplate{CLA: 0x80, INS: 0x11, P1: 0x00, P2: 0x00},
		RespondAuth:  CommandTemplate{CLA: 0x80, INS: 0x12, P1: 0x00, P2: 0x00, Ne: 0x100},
		GetData:      getData,
		GetSignature: CommandTemplate{CLA: 0x00, INS: 0x51, P1: 0x00, P2: 0x00, Ne: MaxSignatureSize},
		GetPublicKey: CommandTemplate{CLA: 0x00, INS: 0x52, P1: 0x00, P2: 0x00, Ne: PublicKeySize},
	}
}

// votingCommands reads the record in one GET_DATA and asks for the voter
// data signature with P1 = 01.
func votingCommands() Commands {
	c := commonCommands(CommandTemplate{CLA: 0x80, INS: 0x13, Ne: 0x100})
	c.GetSignature.P1 = 0x01
	return c
}

var profiles = map[string]Config{
	"electricity": {
		Name:      "electricity",
		AID:       []byte{0xA0, 0x32, 0x76, 0x93, 0x94, 0x03},
		Commands:  commonCommands(CommandTemplate{CLA: 0x00, INS: 0x13}),
		ChunkSize: DefaultChunkSize,
		Retrieval: RetrievalChunked,
		Padding:   PaddingLastDelimiter,
		Delimiter: '}',
	},
	"banking": {
		Name:      "banking",
		AID:       []byte{0xA0, 0x45, 0x40, 0x20, 0x13, 0x03},
		Commands:  commonCommands(CommandTemplate{CLA: 0x00, INS: 0x50}),
		ChunkSize: DefaultChunkSize,
		Retrieval: RetrievalChunked,
		Padding:   PaddingTrimNUL,
		Delimiter: '}',
	},
	"transport": {
		Name:      "transport",
		AID:       []byte{0xAB, 0x03, 0x42, 0xE2, 0x20, 0x02},
		Commands:  commonCommands(CommandTemplate{CLA: 0x00, INS: 0x13}),
		ChunkSize: DefaultChunkSize,
		Retrieval: RetrievalChunked,
		Padding:   PaddingLastDelimiter,
		Delimiter: '}',
	},
	"voting": {
		Name:      "voting",
		AID:       []byte{0xAE, 0x33, 0x93, 0xEE, 0x01, 0x02},
		Commands:  votingCommands(),
		ChunkSize: DefaultChunkSize,
		Retrieval: RetrievalSingle,
		Padding:   PaddingLastDelimiter,
		Delimiter: '}',
	},
}

// Profile returns the deployment profile with the given name. The shared key
// is never part of a profile and must be filled in by the caller.
func Profile(name string) (Config, bool) {
	p, ok := profiles[name]
	if !ok {
		return Config{}, false
	}
	p.AID = append([]byte(nil), p.AID...)
	p.ReaderNonce = append([]byte(nil), DefaultReaderNonce...)
	return p, true
}

// Profiles returns every known deployment profile, sorted by name.
func Profiles() []Config {
	names := ProfileNames()
	out := make([]Config, 0, len(names))
	for _, name := range names {
		p, _ := Profile(name)
		out = append(out, p)
	}
	return out
}

// ProfileNames returns the known profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
