package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderProducesClassifiedError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ConnectionError("gateway unreachable").
		WithCause(cause).
		WithContext("host", "127.0.0.1").
		WithContext("attempts", 4).
		Build()

	require.True(t, err.IsCategory(CategoryConnection))
	require.Equal(t, SeverityError, err.Severity())
	require.Equal(t, RetryFixed, err.RetryStrategy())
	require.True(t, err.CanRetry())
	require.ErrorIs(t, err, err) // Is() compares category+message
	require.Equal(t, cause, err.Unwrap())

	host, ok := err.Context().Get("host")
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", host)
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := BindError("attach failed").Build()
	enriched := base.WithContext("handler", "on_bar")

	_, ok := base.Context().Get("handler")
	require.False(t, ok)
	v, ok := enriched.Context().Get("handler")
	require.True(t, ok)
	require.Equal(t, "on_bar", v)
}

func TestCategoryExtraction(t *testing.T) {
	err := ScriptError("parse failed").Build()
	require.True(t, HasCategory(err, CategoryScript))
	require.Equal(t, CategoryScript, GetCategory(err))

	plain := errors.New("plain")
	require.False(t, HasCategory(plain, CategoryScript))
	require.Equal(t, CategoryInternal, GetCategory(plain))
}

func TestSeverityShortcuts(t *testing.T) {
	require.True(t, ConfigError("bad").Build().IsFatal())
	require.Equal(t, SeverityWarning, BridgeError("mirror down").Build().Severity())
	require.False(t, ValidationError("nope").Build().CanRetry())
}

func TestCLIAdapterExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	require.Equal(t, 0, a.ExitCodeFor(nil))
	require.Equal(t, 1, a.ExitCodeFor(errors.New("plain")))
	require.Equal(t, 2, a.ExitCodeFor(ValidationError("v").Build()))
	require.Equal(t, 7, a.ExitCodeFor(ConfigError("c").Build()))
	require.Equal(t, 8, a.ExitCodeFor(ConnectionError("c").Build()))
	require.Equal(t, 11, a.ExitCodeFor(BindError("b").Build()))
	require.Equal(t, 12, a.ExitCodeFor(DaemonError("d").Build()))
}
