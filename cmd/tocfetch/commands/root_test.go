package commands

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInputAndOutputFlagsRequired(t *testing.T) {
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{})

	err := rootCmd.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "required flag(s)")
	require.Contains(t, err.Error(), "input")
	require.Contains(t, err.Error(), "output")
}
