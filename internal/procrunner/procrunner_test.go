package procrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	r := New()
	res, err := r.Run(context.Background(), "echo", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello\n", res.Stdout)
}

func TestRunDistinguishesExitNonzeroFromSpawnFailure(t *testing.T) {
	r := New()

	_, err := r.Run(context.Background(), "sh", "-c", "exit 3")
	require.Error(t, err)
	require.False(t, IsSpawnFailure(err))

	_, err = r.Run(context.Background(), "definitely-not-a-real-binary-xyz")
	require.Error(t, err)
	require.True(t, IsSpawnFailure(err))
}

func TestQuoteShellEscapesSpecialChars(t *testing.T) {
	input := "a\\b\"c$d`e`"
	want := "a\\\\b\\\"c\\$d\\`e\\`"
	require.Equal(t, want, QuoteShell(input))
}

func TestQuoteTmuxLiteralGuardsLeadingDash(t *testing.T) {
	require.Equal(t, "\\-foo", QuoteTmuxLiteral("-foo"))
	require.Equal(t, "foo", QuoteTmuxLiteral("foo"))
}

func TestRunInAugmentsPath(t *testing.T) {
	r := &Runner{ExtraPathDirs: []string{"/custom/bin"}}
	res, err := r.RunIn(context.Background(), "", "sh", "-c", "echo $PATH")
	require.NoError(t, err)
	require.Contains(t, res.Stdout, "/custom/bin")
}
