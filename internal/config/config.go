// Package config turns this server's CLI flags into a validated Config,
// grounded on the teacher's cmd-rpc.go: flags bound to local variables via
// Destination, gathered into one struct, and validated once up front
// rather than scattered through startup code.
package config

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

// Bounds carried unchanged from spec.md §6.
const (
	DefaultPort          = 1178
	DefaultAddress       = "0.0.0.0"
	DefaultMaxConnection = 8
	MinMaxConnection     = 1
	MaxMaxConnection     = 1024

	DefaultCompletionMidasiLength = 2048
	MinCompletionMidasiLength     = 256
	MaxCompletionMidasiLength     = 32768

	DefaultCompletionMidasiStringSize = 262144
	MinCompletionMidasiStringSize     = 16384
	MaxCompletionMidasiStringSize     = 1048576

	DefaultIMETimeoutMillis = 2500
)

// Config is the validated result of parsing the CLI surface named in
// SPEC_FULL.md §6: spec.md's core flags plus the ime-*/metrics-listen
// additions this expansion adds for the optional collaborators.
type Config struct {
	Port          int
	Address       string
	MaxConnection int

	CheckUpdate bool
	NoDaemonize bool

	CompletionMidasiLength     int
	CompletionMidasiStringSize int
	CompletionTest             int // 1..4, see CompletionSeparator/CompletionAliasC

	DictionaryPaths []string

	IMEServerURL   string
	IMECacheFile   string
	IMETimeoutMs   int
	MetricsListen  string
}

// CompletionSeparator and CompletionAliasC resolve the §6
// --server-completion-test selector into the two knobs internal/dispatch
// actually needs.
//
// Open Question (spec.md §9(c)) resolution: mode 2's "slash-ignore"
// variant is left unimplemented as a distinct behavior — whether '/' can
// legitimately appear inside a well-formed decoded headword is left
// unresolved by every available source, and a wrong guess here would
// silently corrupt completion output. Modes 1 and 2 are therefore
// observably identical (both use '/' as the separator, matching the
// worked example in §8); only the slash-vs-space and 'c'-alias axes,
// which are fully specified, actually vary.
func (c *Config) CompletionSeparator() byte {
	if c.CompletionTest == 3 || c.CompletionTest == 4 {
		return ' '
	}
	return '/'
}

// CompletionAliasC reports whether the 'c' command byte should behave as
// an alias for '4' (completion); only --server-completion-test=4 enables
// it, matching the "hairy variant" alias spec.md names.
func (c *Config) CompletionAliasC() bool {
	return c.CompletionTest == 4
}

// Flags returns the urfave/cli flag set that populates c, through each
// flag's Destination, once the flags are parsed.
func Flags(c *Config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "port",
			Usage:       "TCP port to listen on",
			Value:       DefaultPort,
			Destination: &c.Port,
		},
		&cli.StringFlag{
			Name:        "address",
			Usage:       "Address to listen on",
			Value:       DefaultAddress,
			Destination: &c.Address,
		},
		&cli.IntFlag{
			Name:        "max-connection",
			Usage:       fmt.Sprintf("Maximum simultaneous connections (%d..%d)", MinMaxConnection, MaxMaxConnection),
			Value:       DefaultMaxConnection,
			Destination: &c.MaxConnection,
		},
		&cli.BoolFlag{
			Name:        "check-update",
			Usage:       "Watch dictionary files for mtime changes and reload on SIGHUP",
			Destination: &c.CheckUpdate,
		},
		&cli.BoolFlag{
			Name:        "no-daemonize",
			Usage:       "Stay in the foreground (accepted for compatibility; the server never daemonizes)",
			Destination: &c.NoDaemonize,
		},
		&cli.IntFlag{
			Name:        "server-completion-midasi-length",
			Usage:       fmt.Sprintf("Maximum number of completion candidates (%d..%d)", MinCompletionMidasiLength, MaxCompletionMidasiLength),
			Value:       DefaultCompletionMidasiLength,
			Destination: &c.CompletionMidasiLength,
		},
		&cli.IntFlag{
			Name:        "server-completion-midasi-string-size",
			Usage:       fmt.Sprintf("Maximum completion response size in bytes (%d..%d)", MinCompletionMidasiStringSize, MaxCompletionMidasiStringSize),
			Value:       DefaultCompletionMidasiStringSize,
			Destination: &c.CompletionMidasiStringSize,
		},
		&cli.IntFlag{
			Name:        "server-completion-test",
			Usage:       "Completion variant selector (1..4): separator choice and 'c' alias",
			Value:       1,
			Destination: &c.CompletionTest,
		},
		&cli.StringFlag{
			Name:        "ime-server",
			Usage:       "Base URL of an optional remote IME transliteration collaborator",
			Destination: &c.IMEServerURL,
		},
		&cli.StringFlag{
			Name:        "ime-cache-file",
			Usage:       "Path to persist the IME ring cache across restarts",
			Destination: &c.IMECacheFile,
		},
		&cli.IntFlag{
			Name:        "ime-timeout",
			Usage:       "Timeout in milliseconds for IME collaborator requests",
			Value:       DefaultIMETimeoutMillis,
			Destination: &c.IMETimeoutMs,
		},
		&cli.StringFlag{
			Name:        "metrics-listen",
			Usage:       "Address to serve Prometheus /metrics on (empty disables it)",
			Destination: &c.MetricsListen,
		},
	}
}

// Validate checks the bounds spec.md §6 names and pulls the positional
// dictionary-path arguments out of ctx. It must run after ctx's flags have
// been parsed (i.e. from an Action, not a Before).
func (c *Config) Validate(ctx *cli.Context) error {
	if c.MaxConnection < MinMaxConnection || c.MaxConnection > MaxMaxConnection {
		return fmt.Errorf("--max-connection must be in %d..%d, got %d", MinMaxConnection, MaxMaxConnection, c.MaxConnection)
	}
	if c.CompletionMidasiLength < MinCompletionMidasiLength || c.CompletionMidasiLength > MaxCompletionMidasiLength {
		return fmt.Errorf("--server-completion-midasi-length must be in %d..%d, got %d", MinCompletionMidasiLength, MaxCompletionMidasiLength, c.CompletionMidasiLength)
	}
	if c.CompletionMidasiStringSize < MinCompletionMidasiStringSize || c.CompletionMidasiStringSize > MaxCompletionMidasiStringSize {
		return fmt.Errorf("--server-completion-midasi-string-size must be in %d..%d, got %d", MinCompletionMidasiStringSize, MaxCompletionMidasiStringSize, c.CompletionMidasiStringSize)
	}
	if c.CompletionTest < 1 || c.CompletionTest > 4 {
		return fmt.Errorf("--server-completion-test must be in 1..4, got %d", c.CompletionTest)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("--port must be a valid TCP port, got %d", c.Port)
	}

	c.DictionaryPaths = ctx.Args().Slice()
	if len(c.DictionaryPaths) == 0 {
		return fmt.Errorf("at least one dictionary file path is required")
	}
	return nil
}
