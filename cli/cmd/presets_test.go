package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/globalfilter"
	"github.com/tracebase-eu/tracebase/internal/orchestrator"
	"github.com/tracebase-eu/tracebase/internal/preset"
)

func TestReadNavigationLines(t *testing.T) {
	input := `
# first the list filter
applyListFilter=CASES_LESS_CONTACTS&x=3

   applyListFilter=CASES_DECEASED
`
	var lines []string
	err := readNavigationLines(strings.NewReader(input), func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"applyListFilter=CASES_LESS_CONTACTS&x=3",
		"applyListFilter=CASES_DECEASED",
	}, lines)
}

func TestReadNavigationLines_StopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := readNavigationLines(strings.NewReader("a=1\nb=2\n"), func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWaitIdle(t *testing.T) {
	registry := preset.NewDefaultRegistry()
	o, err := orchestrator.New(registry, nil, nil, config.OrchestratorConfig{AsyncWorkers: 1})
	require.NoError(t, err)
	defer o.Close()

	t.Run("idle returns immediately", func(t *testing.T) {
		assert.NoError(t, waitIdle(context.Background(), o, time.Second))
	})

	t.Run("held cycle times out", func(t *testing.T) {
		nav, err := globalfilter.NavigationFromQuery("applyListFilter=CASES_DECEASED")
		require.NoError(t, err)
		require.NoError(t, o.Schedule(nav))

		err = waitIdle(context.Background(), o, 50*time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("released cycle completes", func(t *testing.T) {
		o.Ready()
		assert.NoError(t, waitIdle(context.Background(), o, 2*time.Second))
	})
}
