package config

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func contextWithArgs(cfg *Config, args ...string) *cli.Context {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags(cfg) {
		f.Apply(fs)
	}
	fs.Parse(args)
	return cli.NewContext(cli.NewApp(), fs, nil)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg := &Config{
		MaxConnection:              DefaultMaxConnection,
		CompletionMidasiLength:     DefaultCompletionMidasiLength,
		CompletionMidasiStringSize: DefaultCompletionMidasiStringSize,
		CompletionTest:             1,
		Port:                       DefaultPort,
	}
	ctx := contextWithArgs(cfg, "dict1.dat")
	require.NoError(t, cfg.Validate(ctx))
	require.Equal(t, []string{"dict1.dat"}, cfg.DictionaryPaths)
}

func TestValidateRejectsOutOfRangeMaxConnection(t *testing.T) {
	cfg := &Config{MaxConnection: 0, CompletionTest: 1}
	ctx := contextWithArgs(cfg, "dict1.dat")
	require.Error(t, cfg.Validate(ctx))
}

func TestValidateRejectsMissingDictionaryPaths(t *testing.T) {
	cfg := &Config{
		MaxConnection:              DefaultMaxConnection,
		CompletionMidasiLength:     DefaultCompletionMidasiLength,
		CompletionMidasiStringSize: DefaultCompletionMidasiStringSize,
		CompletionTest:             1,
	}
	ctx := contextWithArgs(cfg)
	require.Error(t, cfg.Validate(ctx))
}

func TestCompletionSeparatorAndAlias(t *testing.T) {
	cases := []struct {
		test      int
		separator byte
		alias     bool
	}{
		{1, '/', false},
		{2, '/', false},
		{3, ' ', false},
		{4, ' ', true},
	}
	for _, c := range cases {
		cfg := &Config{CompletionTest: c.test}
		require.Equal(t, c.separator, cfg.CompletionSeparator())
		require.Equal(t, c.alias, cfg.CompletionAliasC())
	}
}
