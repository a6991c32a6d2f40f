package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/config"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

func TestLocalAddress(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{":3000", "127.0.0.1:3000"},
		{"0.0.0.0:8080", "127.0.0.1:8080"},
		{"10.0.0.5:3000", "10.0.0.5:3000"},
		{"", "http://127.0.0.1:3000"},
	}
	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			assert.Equal(t, tt.want, localAddress(tt.listen))
		})
	}
}

func TestHealthConfigOverrides(t *testing.T) {
	cfg := config.Default()
	cfg.Health.Interval = time.Minute
	cfg.Health.Timeout = 0
	cfg.Health.Retries = 5

	hc := healthConfig(cfg)
	assert.Equal(t, time.Minute, hc.Interval)
	assert.Equal(t, 3*time.Second, hc.Timeout, "zero keeps the default")
	assert.Equal(t, 5, hc.Retries)
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, []byte(`{"global_settings":{},"listeners":[{"id":"a","port":1883,"protocol":"mqtt"}]}`), 0600))
	doc, err := readDocument(valid)
	require.NoError(t, err)
	assert.Len(t, doc.Listeners, 1)

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"listeners":`), 0600))
	_, err = readDocument(broken)
	assert.ErrorIs(t, err, types.ErrMalformedDocument)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"listeners":[{"id":"a","port":0,"protocol":"mqtt"}]}`), 0600))
	_, err = readDocument(invalid)
	assert.ErrorIs(t, err, types.ErrMalformedDocument)
}

func TestPrintArtifacts(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, printArtifacts(&sb, "listener 1883\n", nil))
	assert.Equal(t, "### mosquitto.conf\nlistener 1883\n", sb.String())
}
