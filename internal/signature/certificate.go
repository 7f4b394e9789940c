package signature

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// MaxCertificateSize bounds certificate input.
const MaxCertificateSize = 64 << 10

// ErrCertificate wraps every certificate parsing failure.
var ErrCertificate = errors.New("unusable device certificate")

// ParseCertificate accepts a PEM CERTIFICATE block, base64-encoded DER, or
// raw DER.
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrCertificate)
	}
	if len(data) > MaxCertificateSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrCertificate, MaxCertificateSize)
	}

	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrCertificate, block.Type)
		}
		der = block.Bytes
	} else if data[0] != 0x30 {
		decoded, err := decodeBase64(data)
		if err != nil {
			return nil, fmt.Errorf("%w: not PEM, base64 or DER", ErrCertificate)
		}
		der = decoded
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificate, err)
	}
	return cert, nil
}

func decodeBase64(data []byte) ([]byte, error) {
	compact := bytes.Join(bytes.Fields(data), nil)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(string(compact)); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("invalid base64")
}
