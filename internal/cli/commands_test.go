package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/ledger"
	"github.com/abm1119/bita/internal/report"
	"github.com/abm1119/bita/internal/slotserver"
	"github.com/abm1119/bita/internal/testutil"
)

// testCLI runs commands against one data directory and config file.
type testCLI struct {
	t          *testing.T
	dataDir    string
	configFile string
	clock      *testutil.FixedClock
	stdin      string
}

func newTestCLI(t *testing.T, extraConfig string) *testCLI {
	t.Helper()
	dir := t.TempDir()
	configFile := filepath.Join(dir, "bita.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("log:\n  level: error\n"+extraConfig), 0o600))
	return &testCLI{
		t:          t,
		dataDir:    filepath.Join(dir, "data"),
		configFile: configFile,
		clock:      testutil.NewFixedClockOn("2024-03-15"),
	}
}

// device returns a CLI for another machine of the same account.
func (c *testCLI) device() *testCLI {
	return &testCLI{
		t:          c.t,
		dataDir:    filepath.Join(c.t.TempDir(), "data"),
		configFile: c.configFile,
		clock:      c.clock,
	}
}

func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCommand(&RootOptions{Clock: c.clock})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(c.stdin))
	cmd.SetArgs(append([]string{"--config", c.configFile, "--data-dir", c.dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "bita %s", strings.Join(args, " "))
	return out
}

func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestInvalidFormat(t *testing.T) {
	c := newTestCLI(t, "")
	_, err := c.run("--format", "xml", "vendor", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestVendorAndInvoiceWorkflow(t *testing.T) {
	c := newTestCLI(t, "")

	out := c.mustRun("vendor", "add", "--id", "v1", "--name", "Acme Mills", "--contact", "Sam")
	assert.Contains(t, out, "Added vendor v1 (Acme Mills)")

	out = c.mustRun("invoice", "add", "--id", "i1", "--vendor", "v1", "--number", "A-1",
		"--date", "2024-03-01", "--item", "Flour:Baking:10:3.50")
	assert.Contains(t, out, "total 35.00")

	c.mustRun("invoice", "add", "--id", "i2", "--vendor", "v1", "--number", "A-2",
		"--item", "Flour:Baking:2:3.75", "--item", "Salt::1:0.50")

	out = c.mustRun("invoice", "pay", "i1", "--amount", "35")
	assert.Contains(t, out, "Invoice i1 is Paid")

	invoices := decodeData[[]ledger.Invoice](t, c.mustRun("--format", "json", "invoice", "list"))
	require.Len(t, invoices, 2)
	assert.Equal(t, ledger.StatusPaid, invoices[0].Status)
	require.NotNil(t, invoices[0].PaymentDate)
	assert.Equal(t, "2024-03-15", invoices[0].PaymentDate.String())
	assert.Equal(t, "2024-03-15", invoices[1].IssueDate.String(), "issue date defaults to today")
	assert.Equal(t, "8", invoices[1].TotalAmount.String())

	unpaid := decodeData[[]ledger.Invoice](t, c.mustRun("--format", "json", "invoice", "list", "--status", "Unpaid"))
	require.Len(t, unpaid, 1)
	assert.Equal(t, "i2", unpaid[0].ID)

	out = c.mustRun("report", "summary")
	assert.Contains(t, out, "Settled this month:  35.00")
	assert.Contains(t, out, "Total unpaid:        8.00")

	items := decodeData[[]report.ItemHistory](t, c.mustRun("--format", "json", "report", "prices", "flour"))
	require.Len(t, items, 1)
	assert.Equal(t, report.TrendIncrease, items[0].Trend)

	c.mustRun("vendor", "delete", "v1")
	out = c.mustRun("invoice", "list")
	assert.Contains(t, out, "No invoices.")
}

func TestYAMLOutput(t *testing.T) {
	c := newTestCLI(t, "")
	c.mustRun("vendor", "add", "--id", "v1", "--name", "Acme")

	out := c.mustRun("--format", "yaml", "vendor", "list")
	assert.Contains(t, out, "status: ok")
	assert.Contains(t, out, "name: Acme")
}

func TestCommandErrors(t *testing.T) {
	c := newTestCLI(t, "")

	_, err := c.run("vendor", "add")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")

	_, err = c.run("invoice", "pay", "missing", "--amount", "5")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = c.run("invoice", "pay", "missing", "--amount", "five")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.run("invoice", "add", "--vendor", "v1", "--number", "N", "--item", "bad")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.run("invoice", "list", "--status", "Overdue")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.run("sync", "push")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "no remote configured")

	_, err = c.run("account", "delete")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = c.run("token", "issue", "--account", "a")
	assert.Equal(t, ExitCommandError, GetExitCode(err), "no secret configured")
}

func TestSnapshotExportImport(t *testing.T) {
	c := newTestCLI(t, "")
	c.mustRun("vendor", "add", "--id", "v1", "--name", "Acme")

	file := filepath.Join(t.TempDir(), "ledger.sqlite")
	c.mustRun("snapshot", "export", "-o", file)

	other := c.device()
	other.mustRun("snapshot", "import", file)
	vendors := decodeData[[]ledger.Vendor](t, other.mustRun("--format", "json", "vendor", "list"))
	require.Len(t, vendors, 1)
	assert.Equal(t, "Acme", vendors[0].Name)

	garbage := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a database"), 0o600))
	_, err := other.run("snapshot", "import", garbage)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	vendors = decodeData[[]ledger.Vendor](t, other.mustRun("--format", "json", "vendor", "list"))
	assert.Len(t, vendors, 1, "corrupt import leaves the ledger unchanged")
}

func TestScanImportFromStdin(t *testing.T) {
	c := newTestCLI(t, "")
	c.stdin = "```json\n{\"vendorName\": \"Fresh Farms\", \"invoiceNumber\": \"FF-1\", " +
		"\"lineItems\": [{\"name\": \"Eggs\", \"quantity\": 30, \"unitPrice\": 0.2}], \"totalAmount\": 6}\n```"

	out := c.mustRun("scan", "import", "-")
	assert.Contains(t, out, "new vendor Fresh Farms")
	assert.Contains(t, out, "total 6.00")

	vendors := decodeData[[]ledger.Vendor](t, c.mustRun("--format", "json", "vendor", "list"))
	require.Len(t, vendors, 1)
	assert.Equal(t, "AI Identified", vendors[0].ContactPerson)

	c.stdin = "I could not read this invoice."
	_, err := c.run("scan", "import", "-")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTokenIssue(t *testing.T) {
	c := newTestCLI(t, "auth:\n  secret: s3cret\n")

	out := c.mustRun("token", "issue", "--account", "bakery-1", "--email", "b@example.com")
	verifier, err := identity.NewJWTVerifier("s3cret")
	require.NoError(t, err)
	acct, err := verifier.Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, identity.Account{ID: "bakery-1", Email: "b@example.com"}, acct)
}

// startSlotServer runs a slot server and returns config pointing a client
// at it with a valid token for account.
func startSlotServer(t *testing.T, account string) string {
	t.Helper()
	db, err := slotserver.Connect(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	verifier, err := identity.NewJWTVerifier("s3cret")
	require.NoError(t, err)
	srv := httptest.NewServer(slotserver.New(db, verifier).Router())
	t.Cleanup(srv.Close)

	token, err := verifier.Issue(identity.Account{ID: account}, time.Hour)
	require.NoError(t, err)
	return fmt.Sprintf("remote:\n  url: %s\nauth:\n  token: %s\n", srv.URL, token)
}

func TestRemoteSyncAcrossDevices(t *testing.T) {
	laptop := newTestCLI(t, startSlotServer(t, "bakery-1"))
	laptop.mustRun("vendor", "add", "--id", "v1", "--name", "Acme")

	phone := laptop.device()
	out := phone.mustRun("sync", "pull")
	assert.Contains(t, out, "Restored ledger from remote backup.")

	vendors := decodeData[[]ledger.Vendor](t, phone.mustRun("--format", "json", "vendor", "list"))
	require.Len(t, vendors, 1)
	assert.Equal(t, "v1", vendors[0].ID)

	phone.mustRun("vendor", "add", "--id", "v2", "--name", "Sugar Co")
	vendors = decodeData[[]ledger.Vendor](t, laptop.mustRun("--format", "json", "vendor", "list"))
	assert.Len(t, vendors, 2, "laptop restores the phone's upload on start")

	status := decodeData[SyncStatus](t, laptop.mustRun("--format", "json", "sync", "status"))
	assert.Equal(t, "bakery-1", status.Account)
	assert.True(t, status.RemoteExists)
	assert.NotNil(t, status.LocalSaved)

	laptop.mustRun("account", "delete", "--yes")
	status = decodeData[SyncStatus](t, phone.mustRun("--format", "json", "sync", "status"))
	assert.False(t, status.RemoteExists)
}

func TestRemoteSync_OfflineEditSurvivesNextCommand(t *testing.T) {
	remoteCfg := startSlotServer(t, "bakery-1")
	laptop := newTestCLI(t, remoteCfg)
	laptop.mustRun("vendor", "add", "--id", "v1", "--name", "Acme")

	url := strings.TrimPrefix(strings.SplitN(remoteCfg, "\n", 3)[1], "  url: ")
	offline := *laptop
	offline.configFile = filepath.Join(t.TempDir(), "offline.yaml")
	unreachable := strings.Replace(remoteCfg, url, "http://127.0.0.1:1", 1)
	require.NoError(t, os.WriteFile(offline.configFile, []byte("log:\n  level: error\n"+unreachable), 0o600))

	_, err := offline.run("vendor", "add", "--id", "v2", "--name", "Sugar Co")
	require.Error(t, err, "upload to an unreachable slot fails")

	vendors := decodeData[[]ledger.Vendor](t, laptop.mustRun("--format", "json", "vendor", "list"))
	assert.Len(t, vendors, 2, "next online command keeps the offline edit")

	phone := laptop.device()
	vendors = decodeData[[]ledger.Vendor](t, phone.mustRun("--format", "json", "vendor", "list"))
	assert.Len(t, vendors, 2, "offline edit reached the backup")
}

func TestRemoteSync_BadToken(t *testing.T) {
	cfg := startSlotServer(t, "bakery-1")
	c := newTestCLI(t, cfg+"  secret: wrong-secret\n")

	_, err := c.run("vendor", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSlotServe(t *testing.T) {
	c := newTestCLI(t, "auth:\n  secret: s3cret\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan string, 1)

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	opts := &SlotServeOptions{
		RootOptions: &RootOptions{Format: "text", ConfigFile: c.configFile},
		Addr:        "127.0.0.1:0",
		Database:    filepath.Join(t.TempDir(), "slots.db"),
		Ready:       ready,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- serveSlots(cmd, opts) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-errCh:
		t.Fatalf("serveSlots() exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("slot server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/users/bakery-1/sqlite_backup.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("slot server did not stop")
	}
}
