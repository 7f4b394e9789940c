package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

var commitContent = []byte("tree 9bd9b6f0\nparent 1f0c2a3e\nauthor Alice <alice@example.com> 1700000000 +0000\n\nfix: tighten lookup\n")

type deviceCert struct {
	key  crypto.Signer
	cert *x509.Certificate
	pem  []byte
}

func newDeviceCert(t *testing.T, key crypto.Signer, serial int64) deviceCert {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "alice@example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return deviceCert{
		key:  key,
		cert: cert,
		pem:  pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

func rsaCert(t *testing.T, serial int64) deviceCert {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return newDeviceCert(t, k, serial)
}

func ecdsaCert(t *testing.T, serial int64) deviceCert {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return newDeviceCert(t, k, serial)
}

func ed25519Cert(t *testing.T, serial int64) deviceCert {
	t.Helper()
	_, k, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return newDeviceCert(t, k, serial)
}

func rawSign(t *testing.T, scheme Scheme, dc deviceCert, content []byte) []byte {
	t.Helper()
	digest := sha256.Sum256(content)
	var (
		sig []byte
		err error
	)
	switch scheme {
	case SchemeRSAPKCS1v15:
		sig, err = rsa.SignPKCS1v15(rand.Reader, dc.key.(*rsa.PrivateKey), crypto.SHA256, digest[:])
	case SchemeRSAPSS:
		sig, err = rsa.SignPSS(rand.Reader, dc.key.(*rsa.PrivateKey), crypto.SHA256, digest[:], nil)
	case SchemeECDSA:
		sig, err = ecdsa.SignASN1(rand.Reader, dc.key.(*ecdsa.PrivateKey), digest[:])
	case SchemeEd25519:
		sig = ed25519.Sign(dc.key.(ed25519.PrivateKey), content)
	}
	require.NoError(t, err)
	return sig
}

func cmsSign(t *testing.T, dc deviceCert, content []byte) []byte {
	t.Helper()
	sd, err := pkcs7.NewSignedData(content)
	require.NoError(t, err)
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)
	require.NoError(t, sd.AddSigner(dc.cert, dc.key, pkcs7.SignerInfoConfig{}))
	sd.Detach()
	der, err := sd.Finish()
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "SIGNED MESSAGE", Bytes: der})
}

func mustVerifier(t *testing.T, scheme Scheme, enc Encoding) *Verifier {
	t.Helper()
	v, err := New(string(scheme), string(enc))
	require.NoError(t, err)
	return v
}

func TestRawSchemesRoundTrip(t *testing.T) {
	tests := []struct {
		scheme Scheme
		mk     func(*testing.T, int64) deviceCert
	}{
		{SchemeRSAPKCS1v15, rsaCert},
		{SchemeRSAPSS, rsaCert},
		{SchemeECDSA, ecdsaCert},
		{SchemeEd25519, ed25519Cert},
	}

	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			c := tt.mk(t, 1)
			other := tt.mk(t, 2)
			sig := rawSign(t, tt.scheme, c, commitContent)
			payload := []byte(base64.StdEncoding.EncodeToString(sig))
			v := mustVerifier(t, tt.scheme, EncodingBase64)

			assert.True(t, v.Verify(commitContent, payload, c.pem), "signature must verify against its own certificate")
			assert.False(t, v.Verify(commitContent, payload, other.pem), "signature must not verify against another certificate")

			tampered := append([]byte(nil), commitContent...)
			tampered[0] ^= 1
			assert.False(t, v.Verify(tampered, payload, c.pem))
		})
	}
}

func TestPayloadEncodings(t *testing.T) {
	c := ecdsaCert(t, 1)
	sig := rawSign(t, SchemeECDSA, c, commitContent)

	hexPayload := []byte(hex.EncodeToString(sig))
	assert.True(t, mustVerifier(t, SchemeECDSA, EncodingHex).Verify(commitContent, hexPayload, c.pem))

	pemPayload := pem.EncodeToMemory(&pem.Block{Type: "SIGNATURE", Bytes: sig})
	assert.True(t, mustVerifier(t, SchemeECDSA, EncodingPEM).Verify(commitContent, pemPayload, c.pem))

	// Wrapped base64 as commonly found in headers.
	b64 := base64.StdEncoding.EncodeToString(sig)
	wrapped := []byte(b64[:20] + "\n " + b64[20:])
	assert.True(t, mustVerifier(t, SchemeECDSA, EncodingBase64).Verify(commitContent, wrapped, c.pem))
}

func TestCertificateForms(t *testing.T) {
	c := ed25519Cert(t, 1)
	sig := rawSign(t, SchemeEd25519, c, commitContent)
	payload := []byte(base64.StdEncoding.EncodeToString(sig))
	v := mustVerifier(t, SchemeEd25519, EncodingBase64)

	assert.True(t, v.Verify(commitContent, payload, c.pem), "pem")
	assert.True(t, v.Verify(commitContent, payload, c.cert.Raw), "der")
	assert.True(t, v.Verify(commitContent, payload, []byte(base64.StdEncoding.EncodeToString(c.cert.Raw))), "base64 der")
}

func TestCMSRoundTrip(t *testing.T) {
	for name, mk := range map[string]func(*testing.T, int64) deviceCert{"rsa": rsaCert, "ecdsa": ecdsaCert} {
		t.Run(name, func(t *testing.T) {
			c := mk(t, 1)
			other := mk(t, 2)
			payload := cmsSign(t, c, commitContent)
			v := mustVerifier(t, SchemeCMS, EncodingPEM)

			require.NoError(t, v.Check(commitContent, payload, c.pem))
			assert.False(t, v.Verify(commitContent, payload, other.pem))
			assert.False(t, v.Verify([]byte("different content"), payload, c.pem))

			block, _ := pem.Decode(payload)
			b64 := []byte(base64.StdEncoding.EncodeToString(block.Bytes))
			assert.True(t, v.Verify(commitContent, b64, c.pem), "base64 DER payload")
		})
	}
}

func TestCMSRejectsImpostorWithSameSerial(t *testing.T) {
	device := rsaCert(t, 42)
	impostor := rsaCert(t, 42) // same subject and serial, different key

	payload := cmsSign(t, impostor, commitContent)
	v := mustVerifier(t, SchemeCMS, EncodingPEM)

	err := v.Check(commitContent, payload, device.pem)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyFailsClosed(t *testing.T) {
	c := rsaCert(t, 1)
	ec := ecdsaCert(t, 2)
	sig := rawSign(t, SchemeRSAPKCS1v15, c, commitContent)
	good := []byte(base64.StdEncoding.EncodeToString(sig))
	v := mustVerifier(t, SchemeRSAPKCS1v15, EncodingBase64)
	cms := mustVerifier(t, SchemeCMS, EncodingPEM)

	tests := []struct {
		name    string
		v       *Verifier
		payload []byte
		cert    []byte
		wantErr error
	}{
		{"empty payload", v, nil, c.pem, ErrEmptyPayload},
		{"whitespace payload", v, []byte("  \n"), c.pem, ErrEmptyPayload},
		{"garbage payload", v, []byte("!!not-base64!!"), c.pem, ErrMalformedPayload},
		{"empty certificate", v, good, nil, ErrCertificate},
		{"garbage certificate", v, good, []byte("not a cert"), ErrCertificate},
		{"oversized certificate", v, good, []byte(strings.Repeat("A", MaxCertificateSize+1)), ErrCertificate},
		{"path is not a certificate", v, good, []byte("/etc/ssl/certs/device.pem"), ErrCertificate},
		{"key type mismatch", v, good, ec.pem, ErrKeyMismatch},
		{"truncated signature", v, []byte(base64.StdEncoding.EncodeToString(sig[:10])), c.pem, ErrBadSignature},
		{"cms garbage", cms, []byte("-----BEGIN SIGNED MESSAGE-----\nAAAA\n-----END SIGNED MESSAGE-----\n"), c.pem, ErrMalformedPayload},
		{"cms wrong pem type", cms, pem.EncodeToMemory(&pem.Block{Type: "PGP SIGNATURE", Bytes: []byte{1}}), c.pem, ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Check(commitContent, tt.payload, tt.cert)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, tt.v.Verify(commitContent, tt.payload, tt.cert))
		})
	}
}

func TestNewRejectsUnknownScheme(t *testing.T) {
	_, err := New("pgp", "base64")
	assert.Error(t, err)
	_, err = New("ed25519", "uuencode")
	assert.Error(t, err)

	v, err := New("ed25519", "")
	require.NoError(t, err)
	assert.Equal(t, SchemeEd25519, v.Scheme())
}
