package passphrase

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeSource(env map[string]string, terminal bool, typed string) *Source {
	s := NewSource("NFTLEDGER_SIGNER_PASS", "Enter passphrase")
	s.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readPassword = func() ([]byte, error) { return []byte(typed), nil }
	s.out = &bytes.Buffer{}
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := fakeSource(map[string]string{"NFTLEDGER_SIGNER_PASS": "from-env"}, true, "typed")
	got, err := s.Get()
	require.NoError(t, err)
	require.Equal(t, "from-env", got)
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := fakeSource(map[string]string{"NFTLEDGER_SIGNER_PASS": "  "}, true, "typed")
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestSourcePromptsAndCaches(t *testing.T) {
	s := fakeSource(nil, true, "typed")
	prompts := 0
	s.readPassword = func() ([]byte, error) {
		prompts++
		return []byte("typed"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "typed", got)
	}
	require.Equal(t, 1, prompts)
}

func TestSourceWithoutTerminal(t *testing.T) {
	_, err := fakeSource(nil, false, "").Get()
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestSourceRejectsBlankPrompt(t *testing.T) {
	_, err := fakeSource(nil, true, "   ").Get()
	require.ErrorContains(t, err, "cannot be empty")
}
