// Command skkmkdict is the make_dictionary collaborator (§4.7): it reads
// EUC-JP SKK source text (one "headword /cand1/cand2/.../" entry per
// line) and writes the binary dictionary format of §3, via
// internal/dictionary.Build — the same code path internal/dictionary's own
// tests use to produce fixtures, grounded on
// original_source/source/yaskkserv_make_dictionary/yaskkserv_make_dictionary.cpp's
// command-line shape (-b/--block-size, -s/--short-block).
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/yaskkserv/yaskkserv-go/internal/dictionary"
	"github.com/yaskkserv/yaskkserv-go/internal/wire"
)

func main() {
	var output string
	var shortBlock bool
	var byteOrderFlag string
	var blockSize int

	app := &cli.App{
		Name:      "skkmkdict",
		Usage:     "Build a yaskkserv binary dictionary from EUC-JP SKK source text",
		ArgsUsage: "<source-file> [source-file ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Output dictionary path",
				Required:    true,
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "short-block",
				Aliases:     []string{"s"},
				Usage:       "Use the compact BlockShort layout",
				Destination: &shortBlock,
			},
			&cli.StringFlag{
				Name:        "byte-order",
				Usage:       "Byte order to write the index in (little|big)",
				Value:       "little",
				Destination: &byteOrderFlag,
			},
			&cli.IntFlag{
				Name:        "block-size",
				Aliases:     []string{"b"},
				Usage:       "Block size in bytes",
				Value:       int(dictionary.DefaultBuildOptions().BlockSize),
				Destination: &blockSize,
			},
		},
		Action: func(cctx *cli.Context) error {
			sources := cctx.Args().Slice()
			if len(sources) == 0 {
				return cli.Exit("at least one source file is required", 1)
			}

			order, err := parseByteOrder(byteOrderFlag)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			var entries []dictionary.SourceEntry
			for _, src := range sources {
				parsed, err := readSourceFile(src)
				if err != nil {
					return cli.Exit(fmt.Sprintf("reading %q: %s", src, err.Error()), 1)
				}
				klog.Infof("skkmkdict: %q: %d entries", src, len(parsed))
				entries = append(entries, parsed...)
			}

			opts := dictionary.BuildOptions{
				BlockSize:     int32(blockSize),
				UseBlockShort: shortBlock,
				ByteOrder:     order,
			}
			data, err := dictionary.Build(entries, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("building dictionary: %s", err.Error()), 1)
			}

			if err := os.WriteFile(output, data, 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("writing %q: %s", output, err.Error()), 1)
			}
			klog.Infof("skkmkdict: wrote %q (%d entries, %d bytes)", output, len(entries), len(data))
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		klog.Fatal(err)
	}
}

func parseByteOrder(s string) (wire.Order, error) {
	switch s {
	case "little", "":
		return wire.LittleEndian, nil
	case "big":
		return wire.BigEndian, nil
	default:
		return wire.LittleEndian, fmt.Errorf("--byte-order must be little or big, got %q", s)
	}
}

// readSourceFile parses one EUC-JP SKK source file: each non-empty,
// non-comment line is "<headword> <candidates>", where candidates is
// already the "/cand1/cand2/.../" string SKK dictionaries use on disk.
func readSourceFile(path string) ([]dictionary.SourceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []dictionary.SourceEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == ';' {
			continue
		}
		sep := bytes.IndexByte(line, ' ')
		if sep < 0 {
			klog.Warningf("%s:%d: no candidate field, skipping", path, lineNo)
			continue
		}
		headword := append([]byte(nil), line[:sep]...)
		candidates := append([]byte(nil), line[sep+1:]...)
		entries = append(entries, dictionary.SourceEntry{Headword: headword, Candidates: candidates})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
