package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/barnettlynn/securecard/pkg/securecard"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", filepath.Base(path), err)
	}
}

func TestLoadValidFullConfigAndResolveRelativePaths(t *testing.T) {
	tmp := t.TempDir()
	keyPath := filepath.Join(tmp, "shared.hex")
	writeFile(t, keyPath, "000102030405060708090A0B0C0D0E0F\n")

	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: electricity
keys:
  shared_key_file: "shared.hex"
runtime:
  reader_index: 0
`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Keys.SharedKeyFile != keyPath {
		t.Fatalf("expected resolved key path %q, got %q", keyPath, cfg.Keys.SharedKeyFile)
	}
	if cfg.IsAuto() {
		t.Fatalf("expected named profile, got auto")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: banking
runtime:
  reader_index: 0
  force_plain: true
`)

	_, err := LoadWithMode(cfgPath, ValidationPromptKey)
	if err == nil {
		t.Fatalf("expected parse error for unknown field")
	}
	if !strings.Contains(err.Error(), "parse config yaml") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequiresProfile(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
runtime:
  reader_index: 0
`)

	_, err := LoadWithMode(cfgPath, ValidationPromptKey)
	if err == nil || !strings.Contains(err.Error(), "config.profile is required") {
		t.Fatalf("expected missing profile error, got %v", err)
	}
}

func TestValidateRejectsUnknownProfile(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: parking
runtime:
  reader_index: 0
`)

	_, err := LoadWithMode(cfgPath, ValidationPromptKey)
	if err == nil || !strings.Contains(err.Error(), "is unknown") {
		t.Fatalf("expected unknown profile error, got %v", err)
	}
}

func TestValidateFullRequiresKeyFile(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: transport
runtime:
  reader_index: 0
`)

	_, err := Load(cfgPath)
	if err == nil || !strings.Contains(err.Error(), "config.keys.shared_key_file is required") {
		t.Fatalf("expected missing key file error, got %v", err)
	}
}

func TestValidateRequiresReaderIndex(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: auto
`)

	_, err := LoadWithMode(cfgPath, ValidationPromptKey)
	if err == nil || !strings.Contains(err.Error(), "config.runtime.reader_index is required") {
		t.Fatalf("expected missing reader index error, got %v", err)
	}
}

func TestLoadWithModeEmulatorSkipsReader(t *testing.T) {
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "shared.hex"), "000102030405060708090A0B0C0D0E0F\n")
	recordPath := filepath.Join(tmp, "record.json")
	writeFile(t, recordPath, `{"VoterID":"123456"}`)

	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: voting
keys:
  shared_key_file: "shared.hex"
emulator:
  record_file: "record.json"
`)

	cfg, err := LoadWithMode(cfgPath, ValidationEmulator)
	if err != nil {
		t.Fatalf("LoadWithMode returned error: %v", err)
	}
	if cfg.Emulator.RecordFile != recordPath {
		t.Fatalf("expected resolved record path %q, got %q", recordPath, cfg.Emulator.RecordFile)
	}
}

func TestLoadWithModeEmulatorRejectsAuto(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	writeFile(t, cfgPath, `
profile: auto
`)

	_, err := LoadWithMode(cfgPath, ValidationEmulator)
	if err == nil || !strings.Contains(err.Error(), "emulator mode") {
		t.Fatalf("expected emulator profile error, got %v", err)
	}
}

func TestValidateCardOverrides(t *testing.T) {
	tests := []struct {
		name string
		card string
		want string
	}{
		{"short aid", `aid: "A0 32 76"`, "config.card.aid must be 5..16 bytes"},
		{"bad aid hex", `aid: "ZZ"`, "config.card.aid"},
		{"short nonce", `reader_nonce: "5152"`, "config.card.reader_nonce must be 16 bytes"},
		{"chunk too large", `chunk_size: 300`, "config.card.chunk_size must be 1..256"},
		{"bad retrieval", `retrieval: streaming`, "config.card.retrieval"},
		{"bad padding", `padding: pkcs7`, "config.card.padding"},
		{"long delimiter", `delimiter: "}}"`, "config.card.delimiter"},
		{"negative max payload", `max_payload: -1`, "config.card.max_payload"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tmp := t.TempDir()
			cfgPath := filepath.Join(tmp, "config.yaml")
			writeFile(t, cfgPath, "profile: banking\nruntime:\n  reader_index: 0\ncard:\n  "+tc.card+"\n")

			_, err := LoadWithMode(cfgPath, ValidationPromptKey)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyOverridesProfile(t *testing.T) {
	chunk := 128
	maxPayload := 4096
	cfg := &Config{
		Profile: "electricity",
		Card: CardConfig{
			AID:        "A0:00:00:00:01:02",
			ChunkSize:  &chunk,
			Padding:    string(securecard.PaddingTrimNUL),
			MaxPayload: &maxPayload,
		},
	}
	base, err := cfg.BaseProfile()
	if err != nil {
		t.Fatalf("BaseProfile returned error: %v", err)
	}
	key := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}

	out, err := cfg.Apply(base, key)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if out.AID[0] != 0xA0 || out.AID[5] != 0x02 || len(out.AID) != 6 {
		t.Fatalf("unexpected AID % X", out.AID)
	}
	if out.ChunkSize != 128 || out.MaxPayload != 4096 || out.Padding != securecard.PaddingTrimNUL {
		t.Fatalf("overrides not applied: chunk=%d max=%d padding=%s", out.ChunkSize, out.MaxPayload, out.Padding)
	}
	if out.Retrieval != securecard.RetrievalChunked {
		t.Fatalf("expected profile retrieval to be kept, got %s", out.Retrieval)
	}
	if len(out.Key) != 16 {
		t.Fatalf("expected key to be installed")
	}
}

func TestBaseProfileRejectsAuto(t *testing.T) {
	cfg := &Config{Profile: ProfileAuto}
	if _, err := cfg.BaseProfile(); err == nil {
		t.Fatalf("expected error for auto profile")
	}
}
