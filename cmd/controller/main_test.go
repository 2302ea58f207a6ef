package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/freqtag/go-controller/internal/logger"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/logging"
	"github.com/danielpatrickdp/freqtag/go-controller/internal/trigger"
)

func TestSignalEnd(t *testing.T) {
	cases := []struct {
		name string
		err  error
		quit bool
		want trigger.Code
	}{
		{"finished", nil, false, 255},
		{"quit key", nil, true, 17},
		{"interrupted", fmt.Errorf("run: %w", context.Canceled), true, 17},
		{"failed", errors.New("refresh: device lost"), false, 18},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			port := trigger.NewMock()
			signalEnd(port, tc.err, tc.quit, logger.Discard())
			assert.Equal(t, []trigger.Code{tc.want}, port.Codes())
		})
	}
}

func TestSaveLog(t *testing.T) {
	dir := t.TempDir()
	l := logging.New(logging.DefaultLoggables())
	require.NoError(t, l.Log(0, "state", "fixation"))

	db := filepath.Join(dir, "run.db")
	bundle := filepath.Join(dir, "run.json")
	require.NoError(t, saveLog(l, db, bundle, logging.FormatJSON, logger.Discard()))

	for _, p := range []string{db, bundle} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}
