// Package ocsp implements the RFC 6960 structures needed to check archived
// revocation evidence: response parsing, a response builder used to produce
// evidence and test fixtures, and a time-windowed Verifier.
package ocsp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// ResponseStatus represents the status of an OCSP response.
type ResponseStatus int

const (
	StatusSuccessful       ResponseStatus = 0
	StatusMalformedRequest ResponseStatus = 1
	StatusInternalError    ResponseStatus = 2
	StatusTryLater         ResponseStatus = 3
	// 4 is not used
	StatusSigRequired  ResponseStatus = 5
	StatusUnauthorized ResponseStatus = 6
)

// String returns a human-readable status string.
func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccessful:
		return "successful"
	case StatusMalformedRequest:
		return "malformedRequest"
	case StatusInternalError:
		return "internalError"
	case StatusTryLater:
		return "tryLater"
	case StatusSigRequired:
		return "sigRequired"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// CertStatus represents the revocation status of a certificate.
type CertStatus int

const (
	CertStatusGood    CertStatus = 0
	CertStatusRevoked CertStatus = 1
	CertStatusUnknown CertStatus = 2
)

// String returns a human-readable status string.
func (s CertStatus) String() string {
	switch s {
	case CertStatusGood:
		return "good"
	case CertStatusRevoked:
		return "revoked"
	case CertStatusUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// RevocationReason per RFC 5280 §5.3.1
type RevocationReason int

const (
	ReasonUnspecified          RevocationReason = 0
	ReasonKeyCompromise        RevocationReason = 1
	ReasonCACompromise         RevocationReason = 2
	ReasonAffiliationChanged   RevocationReason = 3
	ReasonSuperseded           RevocationReason = 4
	ReasonCessationOfOperation RevocationReason = 5
	ReasonCertificateHold      RevocationReason = 6
	// 7 is not used
	ReasonRemoveFromCRL      RevocationReason = 8
	ReasonPrivilegeWithdrawn RevocationReason = 9
	ReasonAACompromise       RevocationReason = 10
)

var reasonNames = map[RevocationReason]string{
	ReasonUnspecified:          "unspecified",
	ReasonKeyCompromise:        "keyCompromise",
	ReasonCACompromise:         "cACompromise",
	ReasonAffiliationChanged:   "affiliationChanged",
	ReasonSuperseded:           "superseded",
	ReasonCessationOfOperation: "cessationOfOperation",
	ReasonCertificateHold:      "certificateHold",
	ReasonRemoveFromCRL:        "removeFromCRL",
	ReasonPrivilegeWithdrawn:   "privilegeWithdrawn",
	ReasonAACompromise:         "aACompromise",
}

// String returns the RFC 5280 name of the reason.
func (r RevocationReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// OCSPResponse represents an OCSP response (RFC 6960 §4.2.1).
// OCSPResponse ::= SEQUENCE {
//
//	responseStatus         OCSPResponseStatus,
//	responseBytes          [0] EXPLICIT ResponseBytes OPTIONAL }
type OCSPResponse struct {
	Status        asn1.Enumerated
	ResponseBytes responseBytes `asn1:"optional,explicit,tag:0"`
}

// ResponseBytes ::= SEQUENCE {
//
//	responseType   OBJECT IDENTIFIER,
//	response       OCTET STRING }
type responseBytes struct {
	ResponseType asn1.ObjectIdentifier
	Response     []byte
}

// BasicOCSPResponse ::= SEQUENCE {
//
//	tbsResponseData      ResponseData,
//	signatureAlgorithm   AlgorithmIdentifier,
//	signature            BIT STRING,
//	certs            [0] EXPLICIT SEQUENCE OF Certificate OPTIONAL }
type BasicOCSPResponse struct {
	TBSResponseData    ResponseData
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          asn1.BitString
	Certs              []asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

// ResponseData contains the signed part of a basic response. Raw holds the
// exact DER read by the parser; the signature is verified over it.
// ResponseData ::= SEQUENCE {
//
//	version              [0] EXPLICIT Version DEFAULT v1,
//	responderID              ResponderID,
//	producedAt               GeneralizedTime,
//	responses                SEQUENCE OF SingleResponse,
//	responseExtensions   [1] EXPLICIT Extensions OPTIONAL }
type ResponseData struct {
	Raw                asn1.RawContent
	Version            int              `asn1:"optional,explicit,tag:0,default:0"`
	ResponderID        asn1.RawValue    // CHOICE: byName [1] or byKey [2]
	ProducedAt         time.Time        `asn1:"generalized"`
	Responses          []SingleResponse `asn1:"sequence"`
	ResponseExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// SingleResponse ::= SEQUENCE {
//
//	certID                       CertID,
//	certStatus                   CertStatus,
//	thisUpdate                   GeneralizedTime,
//	nextUpdate           [0]     EXPLICIT GeneralizedTime OPTIONAL,
//	singleExtensions     [1]     EXPLICIT Extensions OPTIONAL }
type SingleResponse struct {
	CertID           CertID
	CertStatus       asn1.RawValue
	ThisUpdate       time.Time        `asn1:"generalized"`
	NextUpdate       time.Time        `asn1:"optional,explicit,tag:0,generalized"`
	SingleExtensions []pkix.Extension `asn1:"optional,explicit,tag:1"`
}

// RevokedInfo ::= SEQUENCE {
//
//	revocationTime              GeneralizedTime,
//	revocationReason    [0]     EXPLICIT CRLReason OPTIONAL }
//
// It is carried as revoked [1] IMPLICIT RevokedInfo.
type RevokedInfo struct {
	RevocationTime   time.Time       `asn1:"generalized"`
	RevocationReason asn1.Enumerated `asn1:"optional,explicit,tag:0"`
}

// Status decodes the certStatus CHOICE.
func (r *SingleResponse) Status() (CertStatus, *RevokedInfo, error) {
	if r.CertStatus.Class != asn1.ClassContextSpecific {
		return 0, nil, fmt.Errorf("%w: certStatus class %d", ErrMalformedResponse, r.CertStatus.Class)
	}
	switch r.CertStatus.Tag {
	case 0:
		return CertStatusGood, nil, nil
	case 1:
		var info RevokedInfo
		if _, err := asn1.UnmarshalWithParams(r.CertStatus.FullBytes, &info, "tag:1"); err != nil {
			return 0, nil, fmt.Errorf("%w: revokedInfo: %v", ErrMalformedResponse, err)
		}
		return CertStatusRevoked, &info, nil
	case 2:
		return CertStatusUnknown, nil, nil
	default:
		return 0, nil, fmt.Errorf("%w: certStatus tag %d", ErrMalformedResponse, r.CertStatus.Tag)
	}
}

// ResponseBuilder helps construct OCSP responses.
type ResponseBuilder struct {
	responderCert *x509.Certificate
	signer        crypto.Signer
	producedAt    time.Time
	responses     []SingleResponse
	extensions    []pkix.Extension
	includeCerts  bool
	byName        bool
	err           error
}

// NewResponseBuilder creates a new response builder.
func NewResponseBuilder(responderCert *x509.Certificate, signer crypto.Signer) *ResponseBuilder {
	return &ResponseBuilder{
		responderCert: responderCert,
		signer:        signer,
		producedAt:    time.Now().UTC(),
		includeCerts:  true,
	}
}

// SetProducedAt sets the producedAt time.
func (b *ResponseBuilder) SetProducedAt(t time.Time) *ResponseBuilder {
	b.producedAt = t.UTC()
	return b
}

// IncludeCerts sets whether to include the responder certificate.
func (b *ResponseBuilder) IncludeCerts(include bool) *ResponseBuilder {
	b.includeCerts = include
	return b
}

// ResponderByName identifies the responder by subject name instead of the
// default SHA-1 key hash.
func (b *ResponseBuilder) ResponderByName(byName bool) *ResponseBuilder {
	b.byName = byName
	return b
}

// AddGood adds a "good" status for a certificate. A zero nextUpdate is
// omitted from the response.
func (b *ResponseBuilder) AddGood(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// good [0] IMPLICIT NULL
	return b.add(certID, asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0}, thisUpdate, nextUpdate)
}

// AddRevoked adds a "revoked" status for a certificate.
func (b *ResponseBuilder) AddRevoked(certID *CertID, thisUpdate, nextUpdate, revocationTime time.Time, reason RevocationReason) *ResponseBuilder {
	info := RevokedInfo{
		RevocationTime:   revocationTime.UTC(),
		RevocationReason: asn1.Enumerated(reason),
	}
	// revoked [1] IMPLICIT RevokedInfo
	der, err := asn1.MarshalWithParams(info, "tag:1")
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to marshal revoked info: %w", err)
	}
	return b.add(certID, asn1.RawValue{FullBytes: der}, thisUpdate, nextUpdate)
}

// AddUnknown adds an "unknown" status for a certificate.
func (b *ResponseBuilder) AddUnknown(certID *CertID, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	// unknown [2] IMPLICIT NULL
	return b.add(certID, asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 2}, thisUpdate, nextUpdate)
}

func (b *ResponseBuilder) add(certID *CertID, status asn1.RawValue, thisUpdate, nextUpdate time.Time) *ResponseBuilder {
	sr := SingleResponse{
		CertID:     *certID,
		CertStatus: status,
		ThisUpdate: thisUpdate.UTC(),
	}
	if !nextUpdate.IsZero() {
		sr.NextUpdate = nextUpdate.UTC()
	}
	b.responses = append(b.responses, sr)
	return b
}

// AddNonce adds a nonce extension to the response.
func (b *ResponseBuilder) AddNonce(nonce []byte) *ResponseBuilder {
	if len(nonce) > 0 {
		nonceValue, _ := asn1.Marshal(nonce)
		b.extensions = append(b.extensions, pkix.Extension{
			Id:    OIDOcspNonce,
			Value: nonceValue,
		})
	}
	return b
}

// Build creates and signs a complete OCSPResponse.
func (b *ResponseBuilder) Build() ([]byte, error) {
	basic, err := b.BuildBasic()
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(OCSPResponse{
		Status: asn1.Enumerated(StatusSuccessful),
		ResponseBytes: responseBytes{
			ResponseType: OIDOcspBasic,
			Response:     basic,
		},
	})
}

// BuildBasic creates and signs a BasicOCSPResponse without the outer
// OCSPResponse envelope.
func (b *ResponseBuilder) BuildBasic() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.responses) == 0 {
		return nil, fmt.Errorf("no responses added")
	}

	responderID, err := b.responderID()
	if err != nil {
		return nil, err
	}

	responseData := ResponseData{
		ResponderID:        responderID,
		ProducedAt:         b.producedAt,
		Responses:          b.responses,
		ResponseExtensions: b.extensions,
	}
	tbsData, err := asn1.Marshal(responseData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	sigAlg, err := pkicrypto.SignatureAlgorithmFor(b.signer.Public(), defaultHash(b.signer.Public()))
	if err != nil {
		return nil, fmt.Errorf("failed to sign response: %w", err)
	}
	signature, err := pkicrypto.SignMessage(b.signer, sigAlg, 0, tbsData)
	if err != nil {
		return nil, fmt.Errorf("failed to sign response: %w", err)
	}

	basicResp := BasicOCSPResponse{
		TBSResponseData:    ResponseData{Raw: tbsData},
		SignatureAlgorithm: sigAlg,
		Signature:          asn1.BitString{Bytes: signature, BitLength: len(signature) * 8},
	}
	if b.includeCerts {
		basicResp.Certs = []asn1.RawValue{{FullBytes: b.responderCert.Raw}}
	}

	return asn1.Marshal(basicResp)
}

// responderID builds the ResponderID CHOICE:
//
//	byName   [1] Name,
//	byKey    [2] KeyHash
//
// KeyHash is the SHA-1 hash of the subjectPublicKey BIT STRING contents.
// Both alternatives are EXPLICIT.
func (b *ResponseBuilder) responderID() (asn1.RawValue, error) {
	if b.byName {
		return asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        1,
			IsCompound: true,
			Bytes:      b.responderCert.RawSubject,
		}, nil
	}
	bits, err := x509util.PublicKeyBits(b.responderCert)
	if err != nil {
		return asn1.RawValue{}, err
	}
	keyHash := sha1.Sum(bits)
	octetString, err := asn1.Marshal(keyHash[:])
	if err != nil {
		return asn1.RawValue{}, fmt.Errorf("failed to marshal key hash: %w", err)
	}
	return asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        2,
		IsCompound: true,
		Bytes:      octetString,
	}, nil
}

// defaultHash picks the digest paired with the responder key: SHA-256 for
// RSA, the curve-sized SHA-2 for ECDSA. Pure schemes ignore it.
func defaultHash(pub crypto.PublicKey) crypto.Hash {
	if k, ok := pub.(*ecdsa.PublicKey); ok {
		switch k.Curve.Params().BitSize {
		case 384:
			return crypto.SHA384
		case 521:
			return crypto.SHA512
		}
	}
	return crypto.SHA256
}

// NewErrorResponse creates an unsigned OCSPResponse carrying a non-successful
// status.
func NewErrorResponse(status ResponseStatus) ([]byte, error) {
	if status == StatusSuccessful {
		return nil, fmt.Errorf("cannot create error response with successful status")
	}
	return asn1.Marshal(OCSPResponse{Status: asn1.Enumerated(status)})
}
