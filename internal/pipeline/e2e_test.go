package pipeline

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"

	"github.com/mattjoyce/commitgate/internal/directory"
	"github.com/mattjoyce/commitgate/internal/ledger"
	"github.com/mattjoyce/commitgate/internal/log"
	"github.com/mattjoyce/commitgate/internal/signature"
	"github.com/mattjoyce/commitgate/internal/storage"
	"github.com/mattjoyce/commitgate/internal/upstream"
	"github.com/mattjoyce/commitgate/internal/vcs"
	"github.com/mattjoyce/commitgate/internal/vcs/vcstest"
	"github.com/mattjoyce/commitgate/internal/webhook"
)

const statusContext = "commit-integrity-verification"

type signer struct {
	key     *ecdsa.PrivateKey
	cert    *x509.Certificate
	certPEM string
}

func newSigner(t *testing.T, serial int64) signer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return signer{
		key:     key,
		cert:    cert,
		certPEM: string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
	}
}

func (s signer) sign(t *testing.T, content string) string {
	t.Helper()
	sd, err := pkcs7.NewSignedData([]byte(content))
	require.NoError(t, err)
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	require.NoError(t, sd.AddSigner(s.cert, s.key, pkcs7.SignerInfoConfig{}))
	sd.Detach()
	der, err := sd.Finish()
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "SIGNED MESSAGE", Bytes: der}))
}

type fakeDirectory struct {
	*httptest.Server
	devices map[string]map[string]any
	calls   atomic.Int32
}

func newFakeDirectory(t *testing.T) *fakeDirectory {
	t.Helper()
	d := &fakeDirectory{devices: map[string]map[string]any{}}
	d.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer dir-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		email := strings.TrimPrefix(r.URL.Query().Get("filter"), "email=")
		devices := []map[string]any{}
		if dev, ok := d.devices[email]; ok {
			devices = append(devices, dev)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"devices": devices})
	}))
	t.Cleanup(d.Close)
	return d
}

func (d *fakeDirectory) enroll(email, id, certPEM string) {
	d.devices[email] = map[string]any{"id": id, "email": email, "managed": true, "compliant": true, "certificate": certPEM}
}

type env struct {
	host   *vcstest.Host
	dir    *fakeDirectory
	ledger *ledger.Store
	p      *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	host := vcstest.New()
	t.Cleanup(host.Close)
	dir := newFakeDirectory(t)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := ledger.NewStore(db)

	verifier, err := signature.New("cms", "pem")
	require.NoError(t, err)

	vc := vcs.NewClient(host.URL, time.Second, vcs.Options{Mode: vcs.ModeStatus, Context: statusContext})
	resolver := directory.New(
		directory.NewClient(upstream.New(dir.URL, time.Second), "/api/v1/devices", "filter"),
		directory.NewMemoryCache(time.Minute),
		log.Discard(),
	)

	p := New(testSettings(), Deps{
		Secrets:  testSecrets,
		Fetcher:  vc,
		Resolver: resolver,
		Verifier: verifier,
		Reporter: vc,
		Recorder: store,
		Logger:   log.Discard(),
	})
	return &env{host: host, dir: dir, ledger: store, p: p}
}

func (e *env) status(t *testing.T) vcstest.Status {
	t.Helper()
	st, ok := e.host.Statuses()[vcstest.Key{SHA: testSHA, Context: statusContext}]
	require.True(t, ok, "no status reported")
	return st
}

const commitPayload = "tree 4b825dc6\nauthor Alice <alice@example.com> 1700000000 +0000\ncommitter Alice <alice@example.com> 1700000000 +0000\n\nadd widget\n"

// Scenario A: managed device, valid signature.
func TestEndToEndTrustedCommit(t *testing.T) {
	e := newEnv(t)
	c := newSigner(t, 1)
	e.dir.enroll(testEmail, "dev-1", c.certPEM)
	e.host.AddCommit(testRepo, testSHA, testEmail, vcstest.StringPtr(c.sign(t, commitPayload)), vcstest.StringPtr(commitPayload))

	out, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), testSecret))
	require.NoError(t, err)
	assert.True(t, out.Verdict.Trusted)

	st := e.status(t)
	assert.Equal(t, "success", st.State)
	assert.Equal(t, "Bearer gh-token", e.host.LastAuthorization())

	entries, err := e.ledger.List(context.Background(), ledger.Filter{SHA: testSHA})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "trusted", entries[0].Reason)
	assert.Equal(t, ledger.CertFingerprint([]byte(strings.TrimSpace(c.certPEM))), entries[0].CertFingerprint)
}

// Scenario B: author has no managed device.
func TestEndToEndUnmanagedAuthor(t *testing.T) {
	e := newEnv(t)
	c := newSigner(t, 1)
	e.host.AddCommit(testRepo, testSHA, "mallory@example.com", vcstest.StringPtr(c.sign(t, commitPayload)), vcstest.StringPtr(commitPayload))

	_, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), testSecret))
	require.NoError(t, err)

	st := e.status(t)
	assert.Equal(t, "failure", st.State)
	assert.Contains(t, st.Description, "author not a managed device")
}

// Scenario C: forged delivery never reaches any upstream.
func TestEndToEndForgedDelivery(t *testing.T) {
	e := newEnv(t)
	e.host.AddCommit(testRepo, testSHA, testEmail, nil, nil)

	_, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), "attacker-secret"))
	assert.ErrorIs(t, err, webhook.ErrUnauthenticated)

	assert.Zero(t, e.host.FetchCalls())
	assert.Zero(t, e.host.ReportCalls())
	assert.Zero(t, e.dir.calls.Load())

	entries, err := e.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// Scenario D: two transient VCS failures, then success.
func TestEndToEndTransientFetchRecovers(t *testing.T) {
	e := newEnv(t)
	c := newSigner(t, 1)
	e.dir.enroll(testEmail, "dev-1", c.certPEM)
	e.host.AddCommit(testRepo, testSHA, testEmail, vcstest.StringPtr(c.sign(t, commitPayload)), vcstest.StringPtr(commitPayload))
	e.host.FailNextFetches(2)

	out, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), testSecret))
	require.NoError(t, err)

	assert.Equal(t, 3, e.host.FetchCalls())
	assert.True(t, out.Verdict.Trusted)
	assert.Equal(t, "success", e.status(t).State)
}

func TestEndToEndSignatureFromOtherDevice(t *testing.T) {
	e := newEnv(t)
	enrolled := newSigner(t, 1)
	other := newSigner(t, 2)
	e.dir.enroll(testEmail, "dev-1", enrolled.certPEM)
	e.host.AddCommit(testRepo, testSHA, testEmail, vcstest.StringPtr(other.sign(t, commitPayload)), vcstest.StringPtr(commitPayload))

	_, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), testSecret))
	require.NoError(t, err)

	st := e.status(t)
	assert.Equal(t, "failure", st.State)
	assert.Contains(t, st.Description, "signature invalid")
}

func TestEndToEndUnsignedCommit(t *testing.T) {
	e := newEnv(t)
	c := newSigner(t, 1)
	e.dir.enroll(testEmail, "dev-1", c.certPEM)
	e.host.AddCommit(testRepo, testSHA, testEmail, nil, nil)

	_, err := e.p.Handle(context.Background(), signedEvent("push", pushBody(testRepo, testSHA), testSecret))
	require.NoError(t, err)
	assert.Contains(t, e.status(t).Description, "signature invalid")
}

func TestEndToEndRedeliveryIsIdempotent(t *testing.T) {
	e := newEnv(t)
	c := newSigner(t, 1)
	e.dir.enroll(testEmail, "dev-1", c.certPEM)
	e.host.AddCommit(testRepo, testSHA, testEmail, vcstest.StringPtr(c.sign(t, commitPayload)), vcstest.StringPtr(commitPayload))

	ev := signedEvent("push", pushBody(testRepo, testSHA), testSecret)
	for i := 0; i < 3; i++ {
		_, err := e.p.Handle(context.Background(), ev)
		require.NoError(t, err)
	}

	assert.Len(t, e.host.Statuses(), 1)
	assert.Equal(t, int32(1), e.dir.calls.Load(), "device lookups should be served from cache")

	entries, err := e.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
