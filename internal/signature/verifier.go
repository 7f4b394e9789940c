package signature

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// Scheme names a signing scheme. It must match the device-side signer.
type Scheme string

const (
	SchemeCMS         Scheme = "cms"
	SchemeRSAPKCS1v15 Scheme = "rsa-pkcs1v15-sha256"
	SchemeRSAPSS      Scheme = "rsa-pss-sha256"
	SchemeECDSA       Scheme = "ecdsa-sha256"
	SchemeEd25519     Scheme = "ed25519"
)

// Encoding is the transport encoding of a raw signature payload.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
	EncodingPEM    Encoding = "pem"
)

var (
	ErrEmptyPayload     = errors.New("signature payload is empty")
	ErrMalformedPayload = errors.New("signature payload is malformed")
	ErrKeyMismatch      = errors.New("certificate key does not fit the signature scheme")
	ErrBadSignature     = errors.New("signature does not verify")
)

// Verifier is configured once per deployment with a scheme and encoding.
type Verifier struct {
	scheme   Scheme
	encoding Encoding
}

// New validates scheme and encoding.
func New(scheme, encoding string) (*Verifier, error) {
	s := Scheme(scheme)
	switch s {
	case SchemeCMS, SchemeRSAPKCS1v15, SchemeRSAPSS, SchemeECDSA, SchemeEd25519:
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
	e := Encoding(encoding)
	switch e {
	case EncodingBase64, EncodingHex, EncodingPEM:
	case "":
		e = EncodingBase64
	default:
		return nil, fmt.Errorf("unsupported signature encoding %q", encoding)
	}
	return &Verifier{scheme: s, encoding: e}, nil
}

// Scheme returns the configured scheme.
func (v *Verifier) Scheme() Scheme { return v.scheme }

// Verify reports whether payload is a valid signature over signedContent by
// the key in certificate.
func (v *Verifier) Verify(signedContent, payload, certificate []byte) bool {
	return v.Check(signedContent, payload, certificate) == nil
}

// Check is Verify with the failure reason.
func (v *Verifier) Check(signedContent, payload, certificate []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformedPayload, r)
		}
	}()

	if len(bytes.TrimSpace(payload)) == 0 {
		return ErrEmptyPayload
	}
	cert, err := ParseCertificate(certificate)
	if err != nil {
		return err
	}

	if v.scheme == SchemeCMS {
		return verifyCMS(signedContent, payload, cert)
	}

	sig, err := v.decode(payload)
	if err != nil {
		return err
	}
	return verifyRaw(v.scheme, signedContent, sig, cert)
}

func (v *Verifier) decode(payload []byte) ([]byte, error) {
	payload = bytes.TrimSpace(payload)
	var (
		out []byte
		err error
	)
	switch v.encoding {
	case EncodingHex:
		out, err = hex.DecodeString(string(payload))
	case EncodingPEM:
		block, _ := pem.Decode(payload)
		if block == nil {
			err = errors.New("no PEM block")
		} else {
			out = block.Bytes
		}
	default:
		out, err = decodeBase64(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyPayload
	}
	return out, nil
}

func verifyRaw(scheme Scheme, content, sig []byte, cert *x509.Certificate) error {
	digest := sha256.Sum256(content)

	switch scheme {
	case SchemeRSAPKCS1v15, SchemeRSAPSS:
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return ErrKeyMismatch
		}
		var err error
		if scheme == SchemeRSAPSS {
			err = rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil)
		} else {
			err = rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig)
		}
		if err != nil {
			return ErrBadSignature
		}
	case SchemeECDSA:
		pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return ErrKeyMismatch
		}
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return ErrBadSignature
		}
	case SchemeEd25519:
		pub, ok := cert.PublicKey.(ed25519.PublicKey)
		if !ok {
			return ErrKeyMismatch
		}
		if !ed25519.Verify(pub, content, sig) {
			return ErrBadSignature
		}
	default:
		return fmt.Errorf("unsupported signature scheme %q", scheme)
	}
	return nil
}
