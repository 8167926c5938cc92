package slotserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abm1119/bita/internal/identity"
	"github.com/abm1119/bita/internal/metrics"
	"github.com/abm1119/bita/internal/remote"
)

const testSecret = "slot-secret"

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Connect(filepath.Join(t.TempDir(), "slots.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type testEnv struct {
	srv      *httptest.Server
	verifier *identity.JWTVerifier
	registry *prometheus.Registry
	repo     *Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := openTestDB(t)
	verifier, err := identity.NewJWTVerifier(testSecret)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewSlotMetrics(reg)
	s := New(db, verifier, WithMetrics(m, reg), WithMaxBody(1<<20))

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, verifier: verifier, registry: reg, repo: NewRepository(db)}
}

// requests returns the bita_slot_requests_total sample for method and code.
func (e *testEnv) requests(t *testing.T, method, code string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "bita_slot_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["method"] == method && labels["code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func (e *testEnv) slot(t *testing.T, account string) *remote.HTTPSlot {
	t.Helper()
	token, err := e.verifier.Issue(identity.Account{ID: account}, time.Hour)
	require.NoError(t, err)
	slot, err := remote.NewHTTPSlot(e.srv.URL, remote.WithToken(token))
	require.NoError(t, err)
	return slot
}

func TestRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(openTestDB(t))

	_, ok, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Put(ctx, "alice", remote.Backup{Data: "AA==", Timestamp: 1}))
	require.NoError(t, repo.Put(ctx, "alice", remote.Backup{Data: "AQ==", Timestamp: 2}))
	require.NoError(t, repo.Put(ctx, "bob", remote.Backup{Data: "Ag==", Timestamp: 3}))

	b, ok, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, remote.Backup{Data: "AQ==", Timestamp: 2}, b)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, repo.Delete(ctx, "alice"))
	_, ok, err = repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestServer_SlotRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	slot := env.slot(t, "acct-1")

	_, ok, err := slot.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, ok)

	want := remote.EncodeBackup([]byte("SQLite format 3\x00..."), time.UnixMilli(1700000000000))
	require.NoError(t, slot.Put(ctx, "acct-1", want))

	got, ok, err := slot.Get(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, slot.Delete(ctx, "acct-1"))
	_, ok, err = slot.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 1.0, env.requests(t, "PUT", "200"))
	assert.Equal(t, 3.0, env.requests(t, "GET", "200"))

	count, err := testutil.GatherAndCount(env.registry, "bita_slot_payload_bytes")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServer_RejectsOtherAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.repo.Put(ctx, "acct-2", remote.Backup{Data: "AA==", Timestamp: 1}))

	slot := env.slot(t, "acct-1")
	_, _, err := slot.Get(ctx, "acct-2")
	require.Error(t, err)
	var re *remote.RemoteUnavailableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.StatusCode)

	err = slot.Put(ctx, "acct-2", remote.Backup{Data: "AQ=="})
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.StatusCode)
	assert.Equal(t, 2.0, env.requests(t, "GET", "403")+env.requests(t, "PUT", "403"))

	b, _, err := env.repo.Get(ctx, "acct-2")
	require.NoError(t, err)
	assert.Equal(t, "AA==", b.Data)
}

func TestServer_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/users/acct-1/sqlite_backup.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	slot, err := remote.NewHTTPSlot(env.srv.URL, remote.WithToken("forged"))
	require.NoError(t, err)
	_, _, err = slot.Get(context.Background(), "acct-1")
	var re *remote.RemoteUnavailableError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
}

func TestServer_RejectsBadPayload(t *testing.T) {
	env := newTestEnv(t)
	token, err := env.verifier.Issue(identity.Account{ID: "acct-1"}, time.Hour)
	require.NoError(t, err)

	for name, body := range map[string]string{
		"not json":    "{",
		"bad base64":  `{"data":"***","timestamp":1}`,
		"unknown key": `{"data":"AA==","timestamp":1,"extra":true}`,
		"too large":   `{"data":"` + strings.Repeat("A", 1<<20) + `","timestamp":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodPut, env.srv.URL+"/users/acct-1/sqlite_backup.json", strings.NewReader(body))
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
