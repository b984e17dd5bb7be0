package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/barnettlynn/securecard/cardreader/internal/config"
	"github.com/barnettlynn/securecard/pkg/securecard"
	"github.com/barnettlynn/securecard/pkg/securecard/cardsim"
	"github.com/barnettlynn/securecard/pkg/securecard/records"
)

const configFileName = "config.yaml"

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2 // card failed authentication or signature check
)

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the executable, then in the working directory)")
	emulator := flag.Bool("emulator", false, "skip physical card and read from a simulated card holding config.emulator.record_file")
	promptKeyFlag := flag.Bool("prompt-key", false, "read the shared key from the terminal instead of config.keys.shared_key_file")
	pickReaderFlag := flag.Bool("pick-reader", false, "choose the PC/SC reader interactively")
	probe := flag.Bool("probe", false, "only report which known applets the card selects")
	flag.Parse()

	// Configure slog
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	if *emulator && *promptKeyFlag {
		log.Fatalf("-prompt-key is not supported in emulator mode")
	}

	configPath := strings.TrimSpace(*configFlag)
	if configPath == "" {
		var err error
		configPath, err = defaultConfigPath()
		if err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", configPath)

	mode := config.ValidationFull
	switch {
	case *emulator:
		mode = config.ValidationEmulator
	case *promptKeyFlag:
		mode = config.ValidationPromptKey
	}
	cfg, err := config.LoadWithMode(configPath, mode)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var key []byte
	if *promptKeyFlag {
		key, err = promptKey()
	} else {
		key, err = securecard.LoadKeyHexFile(cfg.Keys.SharedKeyFile)
	}
	if err != nil {
		log.Fatalf("shared key invalid: %v", err)
	}
	slog.Debug("shared key loaded", "source", keySource(cfg, *promptKeyFlag))

	var (
		card securecard.Card
		conn *securecard.Connection
	)
	if *emulator {
		card, err = newEmulatedCard(cfg, key)
		if err != nil {
			log.Fatalf("emulator setup failed: %v", err)
		}
		fmt.Printf("Emulator mode: simulated %s card\n", cfg.Profile)
	} else {
		readerIdx := *cfg.Runtime.ReaderIndex
		if *pickReaderFlag {
			readerIdx, err = pickReader(readerIdx)
			if err != nil {
				log.Fatalf("list readers failed: %v", err)
			}
		}
		conn, err = securecard.Connect(readerIdx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Using reader [%d]: %s\n", conn.ReaderIdx, conn.Reader)
		card = conn
	}

	code := 0
	if *probe {
		fmt.Println("Applet probe:")
		securecard.PrintProbe(os.Stdout, securecard.ProbeProfiles(card, securecard.Profiles()))
	} else {
		code = run(card, cfg, key)
	}
	if conn != nil {
		conn.Close()
	}
	os.Exit(code)
}

// run reads one card and returns the process exit code.
func run(card securecard.Card, cfg *config.Config, key []byte) int {
	var base securecard.Config
	if cfg.IsAuto() {
		p, ok := securecard.DetectProfile(card, securecard.Profiles())
		if !ok {
			fmt.Fprintln(os.Stderr, "No known applet on this card")
			return exitFailure
		}
		fmt.Printf("Detected profile: %s\n", p.Name)
		base = p
	} else {
		p, err := cfg.BaseProfile()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitFailure
		}
		base = p
	}

	sessCfg, err := cfg.Apply(base, key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	sess, err := securecard.NewSession(card, sessCfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	rec, err := sess.Run()
	if err != nil {
		if securecard.IsSecurityRejection(err) {
			fmt.Fprintf(os.Stderr, "CARD REJECTED: %v\n", err)
			return exitRejected
		}
		fmt.Fprintf(os.Stderr, "Read failed in phase %s: %v\n", sess.Phase(), err)
		return exitFailure
	}

	fmt.Printf("Payload: %d bytes, signature verified\n", len(sess.Payload()))
	securecard.PrintRecord(os.Stdout, sessCfg.Name, rec)

	summary, err := records.Decode(sessCfg.Name, rec)
	if err != nil {
		slog.Warn("record does not match profile", "profile", sessCfg.Name, "error", err)
		return exitFailure
	}
	fmt.Printf("Subject: %s\n", summary.Subject)
	for _, f := range summary.Fields {
		fmt.Printf("%s: %s\n", f.Name, f.Value)
	}
	return 0
}

func newEmulatedCard(cfg *config.Config, key []byte) (*cardsim.Applet, error) {
	base, err := cfg.BaseProfile()
	if err != nil {
		return nil, err
	}
	appletCfg, err := cfg.Apply(base, key)
	if err != nil {
		return nil, err
	}
	record, err := os.ReadFile(cfg.Emulator.RecordFile)
	if err != nil {
		return nil, fmt.Errorf("read record file: %w", err)
	}
	return cardsim.New(appletCfg, []byte(strings.TrimSpace(string(record))))
}

func keySource(cfg *config.Config, prompted bool) string {
	if prompted {
		return "terminal"
	}
	return cfg.Keys.SharedKeyFile
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
