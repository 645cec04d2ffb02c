package ocsp

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// ParseResponse parses a DER-encoded OCSPResponse envelope.
func ParseResponse(data []byte) (*OCSPResponse, error) {
	var resp OCSPResponse
	rest, err := asn1.Unmarshal(data, &resp)
	if err != nil {
		return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if len(rest) > 0 {
		return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: trailing data after OCSP response", ErrMalformedResponse)}
	}
	return &resp, nil
}

// ParseBasicResponse parses either a full OCSPResponse or a bare
// BasicOCSPResponse, as archived in revocation evidence. The envelope is
// recognized by its leading responseStatus ENUMERATED.
func ParseBasicResponse(data []byte) (*BasicOCSPResponse, error) {
	basicDER := data
	if isEnvelope(data) {
		resp, err := ParseResponse(data)
		if err != nil {
			return nil, err
		}
		if status := ResponseStatus(resp.Status); status != StatusSuccessful {
			return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: %s", ErrUnsuccessfulResponse, status)}
		}
		if !resp.ResponseBytes.ResponseType.Equal(OIDOcspBasic) {
			return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: unsupported response type %v", ErrMalformedResponse, resp.ResponseBytes.ResponseType)}
		}
		basicDER = resp.ResponseBytes.Response
	}

	var basic BasicOCSPResponse
	rest, err := asn1.Unmarshal(basicDER, &basic)
	if err != nil {
		return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: BasicOCSPResponse: %v", ErrMalformedResponse, err)}
	}
	if len(rest) > 0 {
		return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: trailing data after BasicOCSPResponse", ErrMalformedResponse)}
	}
	return &basic, nil
}

func isEnvelope(data []byte) bool {
	input := cryptobyte.String(data)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return false
	}
	return seq.PeekASN1Tag(cbasn1.ENUM)
}

// Certificates parses the certificates embedded in the response.
func (r *BasicOCSPResponse) Certificates() ([]*x509.Certificate, error) {
	certs := make([]*x509.Certificate, 0, len(r.Certs))
	for i, raw := range r.Certs {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, &VerifyError{Op: "parse", Err: fmt.Errorf("%w: certificate %d: %v", ErrMalformedResponse, i, err)}
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// Nonce returns the nonce extension value, or nil when absent.
func (r *BasicOCSPResponse) Nonce() []byte {
	for _, ext := range r.TBSResponseData.ResponseExtensions {
		if ext.Id.Equal(OIDOcspNonce) {
			var nonce []byte
			if _, err := asn1.Unmarshal(ext.Value, &nonce); err == nil {
				return nonce
			}
			return ext.Value
		}
	}
	return nil
}
