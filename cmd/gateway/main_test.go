package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/smartdevs17/ticket-gateway/internal/models"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "Ticket Gateway "+AppVersion+"\n", out.String())
}

func TestValidateConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"network:",
		"  name: localhost",
		"  chain_id: 31337",
		"storage:",
		"  enabled: false",
	}, "\n")), 0o600))

	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })

	var out bytes.Buffer
	validateConfigCmd.SetOut(&out)
	require.NoError(t, validateConfigCmd.RunE(validateConfigCmd, nil))
	assert.Contains(t, out.String(), "Configuration is valid!")
	assert.Contains(t, out.String(), "Network: localhost (chain 31337)")
	assert.Contains(t, out.String(), "Journal: disabled")
}

func TestValidateConfigRejectsBadWallet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wallet:\n  type: key\n"), 0o600))

	viper.Set("config", path)
	t.Cleanup(func() { viper.Set("config", "") })

	err := validateConfigCmd.RunE(validateConfigCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet private key is required")
}

func TestPrintJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printJSON(&out, map[string]int{"minted": 2}))
	assert.Equal(t, "{\n  \"minted\": 2\n}\n", out.String())
}

func TestStdinIsTerminal(t *testing.T) {
	assert.False(t, stdinIsTerminal(strings.NewReader("ticket:0xabc:1")))
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestReportScan(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	verification := models.Verification{Kind: "ticket", IsTicket: true, TokenID: 7, Message: "Valid ticket."}

	var out bytes.Buffer
	reportScan(&out, logger, verification)
	assert.Contains(t, out.String(), `"token_id": 7`)
	assert.Empty(t, hook.AllEntries())

	reportScan(brokenWriter{}, logger, verification)
	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Failed to print scan result", entry.Message)
	assert.Equal(t, uint64(7), entry.Data["token_id"])
}
