package cms

import (
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// EvidenceKind discriminates revocation evidence.
type EvidenceKind int

const (
	// EvidenceOCSP is a DER OCSPResponse.
	EvidenceOCSP EvidenceKind = iota + 1
	// EvidenceCRL is a DER CertificateList.
	EvidenceCRL
)

// String returns a human-readable name.
func (k EvidenceKind) String() string {
	switch k {
	case EvidenceOCSP:
		return "ocsp"
	case EvidenceCRL:
		return "crl"
	default:
		return fmt.Sprintf("EvidenceKind(%d)", int(k))
	}
}

// RevocationEvidence is one archived OCSP response or CRL.
type RevocationEvidence struct {
	Kind EvidenceKind
	DER  []byte
}

// OCSPEvidence wraps a DER OCSP response.
func OCSPEvidence(der []byte) RevocationEvidence {
	return RevocationEvidence{Kind: EvidenceOCSP, DER: der}
}

// CRLEvidence wraps a DER CRL.
func CRLEvidence(der []byte) RevocationEvidence {
	return RevocationEvidence{Kind: EvidenceCRL, DER: der}
}

// Implicit and explicit context tags.
var (
	tagSignedAttrs   = cbasn1.Tag(0).ContextSpecific().Constructed()
	tagUnsignedAttrs = cbasn1.Tag(1).ContextSpecific().Constructed()
	tagSubjectKeyID  = cbasn1.Tag(0).ContextSpecific()
	tagDirectoryName = cbasn1.Tag(4).ContextSpecific().Constructed()
	tagArchivalCRL   = cbasn1.Tag(0).ContextSpecific().Constructed()
	tagArchivalOCSP  = cbasn1.Tag(1).ContextSpecific().Constructed()
	tagArchivalOther = cbasn1.Tag(2).ContextSpecific().Constructed()
	tagOCSPBytes     = cbasn1.Tag(0).ContextSpecific().Constructed()
)

// revocationArchivalAttribute builds adbe-revocationInfoArchival:
//
//	RevocationInfoArchival ::= SEQUENCE {
//	    crl          [0] EXPLICIT SEQUENCE of CRLs OPTIONAL,
//	    ocsp         [1] EXPLICIT SEQUENCE of OCSPResponse OPTIONAL,
//	    otherRevInfo [2] EXPLICIT SEQUENCE of OtherRevInfo OPTIONAL
//	}
func revocationArchivalAttribute(crls, ocsps [][]byte) (Attribute, error) {
	wrapped := make([][]byte, 0, len(ocsps))
	for _, der := range ocsps {
		full, err := toOCSPResponse(der)
		if err != nil {
			return Attribute{}, err
		}
		wrapped = append(wrapped, full)
	}
	for _, der := range crls {
		if err := checkElement(der, cbasn1.SEQUENCE); err != nil {
			return Attribute{}, fmt.Errorf("CRL: %w", err)
		}
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		if len(crls) > 0 {
			b.AddASN1(tagArchivalCRL, func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					for _, der := range crls {
						b.AddBytes(der)
					}
				})
			})
		}
		if len(wrapped) > 0 {
			b.AddASN1(tagArchivalOCSP, func(b *cryptobyte.Builder) {
				b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
					for _, der := range wrapped {
						b.AddBytes(der)
					}
				})
			})
		}
	})
	value, err := b.Bytes()
	if err != nil {
		return Attribute{}, fmt.Errorf("failed to encode revocation archival: %w", err)
	}
	return Attribute{Type: OIDRevocationInfoArchival, Values: []asn1.RawValue{{FullBytes: value}}}, nil
}

// toOCSPResponse returns der as a complete OCSPResponse, wrapping a bare
// BasicOCSPResponse in a successful OCSPResponse when needed.
//
//	OCSPResponse ::= SEQUENCE {
//	    responseStatus ENUMERATED,
//	    responseBytes  [0] EXPLICIT SEQUENCE { responseType OID, response OCTET STRING } OPTIONAL
//	}
func toOCSPResponse(der []byte) ([]byte, error) {
	if err := checkElement(der, cbasn1.SEQUENCE); err != nil {
		return nil, fmt.Errorf("OCSP response: %w", err)
	}
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	input.ReadASN1(&seq, cbasn1.SEQUENCE)
	if seq.PeekASN1Tag(cbasn1.ENUM) {
		return der, nil
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Enum(0) // successful
		b.AddASN1(tagOCSPBytes, func(b *cryptobyte.Builder) {
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidOCSPBasic)
				b.AddASN1OctetString(der)
			})
		})
	})
	return b.Bytes()
}

// checkElement verifies that der is exactly one element with the given tag.
func checkElement(der []byte, tag cbasn1.Tag) error {
	input := cryptobyte.String(der)
	var elem cryptobyte.String
	if !input.ReadASN1(&elem, tag) || !input.Empty() {
		return fmt.Errorf("%w: expected a single DER element", ErrInvalidContainerStructure)
	}
	return nil
}

// parseRevocationArchival extracts the archived evidence, CRLs first.
func parseRevocationArchival(attr Attribute) ([]RevocationEvidence, error) {
	var out []RevocationEvidence
	for _, v := range attr.Values {
		input := cryptobyte.String(v.FullBytes)
		var seq cryptobyte.String
		if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
			return nil, fmt.Errorf("%w: revocation archival", ErrInvalidContainerStructure)
		}
		for !seq.Empty() {
			var tagged, list cryptobyte.String
			var tag cbasn1.Tag
			if !seq.ReadAnyASN1(&tagged, &tag) {
				return nil, fmt.Errorf("%w: revocation archival entry", ErrInvalidContainerStructure)
			}
			var kind EvidenceKind
			switch tag {
			case tagArchivalCRL:
				kind = EvidenceCRL
			case tagArchivalOCSP:
				kind = EvidenceOCSP
			case tagArchivalOther:
				continue
			default:
				return nil, fmt.Errorf("%w: revocation archival tag 0x%02x", ErrInvalidContainerStructure, uint8(tag))
			}
			if !tagged.ReadASN1(&list, cbasn1.SEQUENCE) {
				return nil, fmt.Errorf("%w: revocation archival list", ErrInvalidContainerStructure)
			}
			for !list.Empty() {
				var elem cryptobyte.String
				if !list.ReadASN1Element(&elem, cbasn1.SEQUENCE) {
					return nil, fmt.Errorf("%w: revocation archival item", ErrInvalidContainerStructure)
				}
				out = append(out, RevocationEvidence{Kind: kind, DER: append([]byte(nil), elem...)})
			}
		}
	}
	return out, nil
}
