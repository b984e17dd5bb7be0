package securecard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Record is the key/value document recovered from a card. Numbers are kept
// as json.Number so identifiers survive without float rounding.
type Record map[string]any

// String returns the value for key formatted as text. Strings and numbers
// are returned as-is; other values are rendered as JSON.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return fmt.Sprintf("%t", t), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
}

// Keys returns the record's keys, sorted.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExtractRecord cuts the document out of a decrypted buffer and parses it.
//
// PaddingTrimNUL drops trailing NUL bytes and then trailing whitespace.
// PaddingLastDelimiter keeps everything up to and including the last delim
// byte and discards the rest unconditionally.
func ExtractRecord(plain []byte, mode PaddingMode, delim byte) (Record, error) {
	var doc []byte
	switch mode {
	case PaddingTrimNUL:
		doc = bytes.TrimRight(plain, "\x00")
		doc = bytes.TrimRight(doc, " \t\r\n")
	case PaddingLastDelimiter:
		i := bytes.LastIndexByte(plain, delim)
		if i < 0 {
			return nil, errors.Errorf("no %q delimiter in plaintext", delim)
		}
		doc = plain[:i+1]
	default:
		return nil, errors.Errorf("unsupported padding mode %q", mode)
	}

	if len(doc) == 0 {
		return nil, errors.New("empty record")
	}
	if !utf8.Valid(doc) {
		return nil, errors.New("record is not valid UTF-8")
	}

	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, errors.Wrap(err, "parse record")
	}
	if rec == nil {
		return nil, errors.New("record is not a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after record")
	}
	return rec, nil
}

// DecryptRecord decrypts the whole payload in one pass and extracts the
// record. Every failure is KindDecryptOrParseFailed.
func DecryptRecord(bc BlockCipher, payload []byte, mode PaddingMode, delim byte) (Record, error) {
	plain, err := bc.Decrypt(payload)
	if err != nil {
		return nil, newSessionError(KindDecryptOrParseFailed, "decrypt", err)
	}
	rec, err := ExtractRecord(plain, mode, delim)
	if err != nil {
		return nil, newSessionError(KindDecryptOrParseFailed, "decrypt", err)
	}
	return rec, nil
}
