package cms

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

// SignerIdentifierKind selects the SignerIdentifier CHOICE arm.
type SignerIdentifierKind int

const (
	// IssuerAndSerialNumber identifies the signer by issuer DN and serial (version 1).
	IssuerAndSerialNumber SignerIdentifierKind = iota
	// SubjectKeyIdentifier identifies the signer by its SKI extension (version 3).
	SubjectKeyIdentifier
)

// String returns a human-readable name.
func (k SignerIdentifierKind) String() string {
	switch k {
	case IssuerAndSerialNumber:
		return "issuerAndSerialNumber"
	case SubjectKeyIdentifier:
		return "subjectKeyIdentifier"
	default:
		return fmt.Sprintf("SignerIdentifierKind(%d)", int(k))
	}
}

// SignerIdentifier references the signing certificate.
//
//	SignerIdentifier ::= CHOICE {
//	    issuerAndSerialNumber IssuerAndSerialNumber,
//	    subjectKeyIdentifier  [0] SubjectKeyIdentifier
//	}
type SignerIdentifier struct {
	Kind         SignerIdentifierKind
	Issuer       []byte // DER-encoded issuer Name
	SerialNumber *big.Int
	SubjectKeyID []byte
}

// NewSignerIdentifier builds the identifier of cert for the given kind.
func NewSignerIdentifier(cert *x509.Certificate, kind SignerIdentifierKind) (SignerIdentifier, error) {
	switch kind {
	case IssuerAndSerialNumber:
		return SignerIdentifier{
			Kind:         kind,
			Issuer:       append([]byte(nil), cert.RawIssuer...),
			SerialNumber: new(big.Int).Set(cert.SerialNumber),
		}, nil
	case SubjectKeyIdentifier:
		ski := x509util.SubjectKeyID(cert)
		if len(ski) == 0 {
			return SignerIdentifier{}, fmt.Errorf("certificate %s has no subject key identifier", cert.Subject)
		}
		return SignerIdentifier{Kind: kind, SubjectKeyID: append([]byte(nil), ski...)}, nil
	default:
		return SignerIdentifier{}, fmt.Errorf("unknown signer identifier kind %d", int(kind))
	}
}

// version returns the CMSVersion of a SignerInfo using this identifier.
func (sid SignerIdentifier) version() int64 {
	if sid.Kind == SubjectKeyIdentifier {
		return 3
	}
	return 1
}

func (sid SignerIdentifier) marshal(b *cryptobyte.Builder) {
	if sid.Kind == SubjectKeyIdentifier {
		b.AddASN1(tagSubjectKeyID, func(b *cryptobyte.Builder) {
			b.AddBytes(sid.SubjectKeyID)
		})
		return
	}
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddBytes(sid.Issuer)
		b.AddASN1BigInt(sid.SerialNumber)
	})
}

// Marshal returns the DER encoding of the identifier.
func (sid SignerIdentifier) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	sid.marshal(&b)
	return b.Bytes()
}

// ParseSignerIdentifier parses a DER SignerIdentifier.
func ParseSignerIdentifier(der []byte) (SignerIdentifier, error) {
	input := cryptobyte.String(der)
	sid, err := readSignerIdentifier(&input)
	if err != nil {
		return SignerIdentifier{}, err
	}
	if !input.Empty() {
		return SignerIdentifier{}, fmt.Errorf("%w: trailing data after signer identifier", ErrInvalidContainerStructure)
	}
	return sid, nil
}

func readSignerIdentifier(input *cryptobyte.String) (SignerIdentifier, error) {
	switch {
	case input.PeekASN1Tag(cbasn1.SEQUENCE):
		var seq, issuer cryptobyte.String
		serial := new(big.Int)
		if !input.ReadASN1(&seq, cbasn1.SEQUENCE) ||
			!seq.ReadASN1Element(&issuer, cbasn1.SEQUENCE) ||
			!seq.ReadASN1Integer(serial) ||
			!seq.Empty() {
			return SignerIdentifier{}, fmt.Errorf("%w: issuerAndSerialNumber", ErrInvalidContainerStructure)
		}
		return SignerIdentifier{
			Kind:         IssuerAndSerialNumber,
			Issuer:       append([]byte(nil), issuer...),
			SerialNumber: serial,
		}, nil

	case input.PeekASN1Tag(tagSubjectKeyID):
		var ski cryptobyte.String
		if !input.ReadASN1(&ski, tagSubjectKeyID) {
			return SignerIdentifier{}, fmt.Errorf("%w: subjectKeyIdentifier", ErrInvalidContainerStructure)
		}
		return SignerIdentifier{Kind: SubjectKeyIdentifier, SubjectKeyID: append([]byte(nil), ski...)}, nil

	default:
		return SignerIdentifier{}, fmt.Errorf("%w: signer identifier is neither issuerAndSerialNumber nor [0]", ErrInvalidContainerStructure)
	}
}

// Matches reports whether cert is the certificate the identifier refers to.
func (sid SignerIdentifier) Matches(cert *x509.Certificate) bool {
	if cert == nil {
		return false
	}
	switch sid.Kind {
	case IssuerAndSerialNumber:
		return sid.SerialNumber != nil &&
			bytes.Equal(cert.RawIssuer, sid.Issuer) &&
			cert.SerialNumber.Cmp(sid.SerialNumber) == 0
	case SubjectKeyIdentifier:
		ski := x509util.SubjectKeyID(cert)
		return len(ski) > 0 && bytes.Equal(ski, sid.SubjectKeyID)
	}
	return false
}

// Identify returns the first certificate of chain matching sid.
func Identify(chain []*x509.Certificate, sid SignerIdentifier) (*x509.Certificate, error) {
	for _, cert := range chain {
		if sid.Matches(cert) {
			return cert, nil
		}
	}
	return nil, ErrCertificateNotFound
}

// BindCertificate builds the ESS signing-certificate attribute for cert.
// A SHA-1 digest OID yields id-aa-signingCertificate (RFC 2634), any other
// digest id-aa-signingCertificateV2 (RFC 5035).
func BindCertificate(cert *x509.Certificate, digestOID asn1.ObjectIdentifier) (Attribute, error) {
	h, err := pkicrypto.HashForOID(digestOID)
	if err != nil {
		return Attribute{}, err
	}
	certHash, err := pkicrypto.Digest(h, cert.Raw)
	if err != nil {
		return Attribute{}, err
	}

	v1 := h == crypto.SHA1
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) { // SigningCertificate(V2)
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) { // certs
			b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) { // ESSCertID(v2)
				if !v1 && h != crypto.SHA256 {
					b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1ObjectIdentifier(digestOID)
					})
				}
				b.AddASN1OctetString(certHash)
				addIssuerSerial(b, cert)
			})
		})
	})
	value, err := b.Bytes()
	if err != nil {
		return Attribute{}, fmt.Errorf("failed to encode signing certificate: %w", err)
	}

	oid := OIDSigningCertificateV2
	if v1 {
		oid = OIDSigningCertificate
	}
	return Attribute{Type: oid, Values: []asn1.RawValue{{FullBytes: value}}}.normalize()
}

// addIssuerSerial writes IssuerSerial ::= SEQUENCE { issuer GeneralNames, serialNumber }
// with the issuer as a single directoryName.
func addIssuerSerial(b *cryptobyte.Builder, cert *x509.Certificate) {
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1(tagDirectoryName, func(b *cryptobyte.Builder) {
				b.AddBytes(cert.RawIssuer)
			})
		})
		b.AddASN1BigInt(cert.SerialNumber)
	})
}

// CheckCertificateBinding verifies that an ESS signing-certificate attribute
// refers to cert: the first ESSCertID hash must equal the digest of the
// certificate and, when present, the serial number must match.
func CheckCertificateBinding(attr Attribute, cert *x509.Certificate) error {
	v1 := attr.Type.Equal(OIDSigningCertificate)
	if !v1 && !attr.Type.Equal(OIDSigningCertificateV2) {
		return fmt.Errorf("%w: %s is not a signing-certificate attribute", ErrMissingAttribute, attr.Type)
	}
	if len(attr.Values) != 1 {
		return fmt.Errorf("%w: signing-certificate attribute must have one value", ErrInvalidContainerStructure)
	}

	input := cryptobyte.String(attr.Values[0].FullBytes)
	var signingCert, certs, essCertID, certHash cryptobyte.String
	if !input.ReadASN1(&signingCert, cbasn1.SEQUENCE) ||
		!signingCert.ReadASN1(&certs, cbasn1.SEQUENCE) ||
		!certs.ReadASN1(&essCertID, cbasn1.SEQUENCE) {
		return fmt.Errorf("%w: signing-certificate attribute", ErrInvalidContainerStructure)
	}

	h := crypto.SHA1
	if !v1 {
		h = crypto.SHA256
		if essCertID.PeekASN1Tag(cbasn1.SEQUENCE) {
			var algID cryptobyte.String
			var oid asn1.ObjectIdentifier
			if !essCertID.ReadASN1(&algID, cbasn1.SEQUENCE) || !algID.ReadASN1ObjectIdentifier(&oid) {
				return fmt.Errorf("%w: ESSCertIDv2 hash algorithm", ErrInvalidContainerStructure)
			}
			var err error
			if h, err = pkicrypto.HashForOID(oid); err != nil {
				return err
			}
		}
	}
	if !essCertID.ReadASN1(&certHash, cbasn1.OCTET_STRING) {
		return fmt.Errorf("%w: ESSCertID hash", ErrInvalidContainerStructure)
	}

	want, err := pkicrypto.Digest(h, cert.Raw)
	if err != nil {
		return err
	}
	if !bytes.Equal(certHash, want) {
		return fmt.Errorf("%w: signing-certificate hash does not match %s", ErrCertificateNotFound, cert.Subject)
	}

	if essCertID.PeekASN1Tag(cbasn1.SEQUENCE) {
		var issuerSerial, generalNames cryptobyte.String
		serial := new(big.Int)
		if !essCertID.ReadASN1(&issuerSerial, cbasn1.SEQUENCE) ||
			!issuerSerial.ReadASN1(&generalNames, cbasn1.SEQUENCE) ||
			!issuerSerial.ReadASN1Integer(serial) {
			return fmt.Errorf("%w: ESSCertID issuerSerial", ErrInvalidContainerStructure)
		}
		if serial.Cmp(cert.SerialNumber) != 0 {
			return fmt.Errorf("%w: signing-certificate serial does not match %s", ErrCertificateNotFound, cert.Subject)
		}
	}
	return nil
}
