package signature

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"go.mozilla.org/pkcs7"
)

// verifyCMS checks a detached CMS SignedData (the S/MIME form written by
// smimesign) over content. Only the device certificate is offered to the
// verifier, so a signature by any other key fails.
func verifyCMS(content, payload []byte, device *x509.Certificate) error {
	der, err := cmsDER(payload)
	if err != nil {
		return err
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p7.Signers) != 1 {
		return fmt.Errorf("%w: want exactly one signer, got %d", ErrMalformedPayload, len(p7.Signers))
	}

	p7.Content = content
	p7.Certificates = []*x509.Certificate{device}
	if err := p7.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	signer := p7.GetOnlySigner()
	if signer == nil || !bytes.Equal(signer.Raw, device.Raw) {
		return ErrBadSignature
	}
	return nil
}

func cmsDER(payload []byte) ([]byte, error) {
	payload = bytes.TrimSpace(payload)
	if block, _ := pem.Decode(payload); block != nil {
		switch block.Type {
		case "SIGNED MESSAGE", "PKCS7", "CMS":
			return block.Bytes, nil
		default:
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrMalformedPayload, block.Type)
		}
	}
	if len(payload) > 0 && payload[0] == 0x30 {
		return payload, nil
	}
	der, err := decodeBase64(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return der, nil
}
