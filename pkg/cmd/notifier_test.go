package cmd

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chroniclehq/chronicle/pkg/notify"
)

func TestNewNotifier_NoneIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	for _, providers := range []string{"", "none"} {
		notifier, err := NewNotifier(providers, "chronicle", logger)
		require.NoError(t, err)
		assert.IsType(t, notify.NoopNotifier{}, notifier)
	}
}

func TestNewNotifier_SingleProviderIsUnwrapped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	notifier, err := NewNotifier("gochannel", "chronicle", logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.WatermillNotifier{}, notifier)
}

func TestNewNotifier_ComposesProviderList(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	notifier, err := NewNotifier("gochannel, gochannel, none", "chronicle", logger)
	require.NoError(t, err)

	multi, ok := notifier.(notify.MultiNotifier)
	require.True(t, ok)
	assert.Len(t, multi, 2)
}

func TestNewNotifier_RejectsUnknownProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	_, err := NewNotifier("carrier-pigeon", "chronicle", logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}
