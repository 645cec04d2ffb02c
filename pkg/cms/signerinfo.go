package cms

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"

	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
)

// SignerInfo is a CMS SignerInfo under construction or parsed from DER.
//
//	SignerInfo ::= SEQUENCE {
//	    version            CMSVersion,
//	    sid                SignerIdentifier,
//	    digestAlgorithm    DigestAlgorithmIdentifier,
//	    signedAttrs        [0] IMPLICIT SignedAttributes OPTIONAL,
//	    signatureAlgorithm SignatureAlgorithmIdentifier,
//	    signature          SignatureValue,
//	    unsignedAttrs      [1] IMPLICIT UnsignedAttributes OPTIONAL
//	}
//
// A SignerInfo starts in the building state. Serializing the signed
// attributes captures their bytes and freezes it: from then on the digest
// algorithm, the signing certificate, the signed attributes and the
// revocation evidence can no longer change, while the signature algorithm,
// the signature value and the unsigned attributes stay writable.
//
// A SignerInfo is not safe for concurrent mutation.
type SignerInfo struct {
	digestAlgorithm    pkix.AlgorithmIdentifier
	signatureAlgorithm pkix.AlgorithmIdentifier

	signingCert *x509.Certificate
	sidKind     SignerIdentifierKind
	sid         *SignerIdentifier

	signedAttrs   *AttributeSet
	unsignedAttrs *AttributeSet

	ocspResponses [][]byte
	crlResponses  [][]byte

	// serializedSignedAttrs holds the captured SET OF Attribute encoding.
	// Non-nil means frozen.
	serializedSignedAttrs []byte
	signature             []byte
}

// NewSignerInfo returns an empty SignerInfo in the building state.
func NewSignerInfo() *SignerInfo {
	return &SignerInfo{
		signedAttrs:   &AttributeSet{},
		unsignedAttrs: &AttributeSet{},
	}
}

// IsFrozen reports whether the signed attributes have been serialized.
func (si *SignerInfo) IsFrozen() bool {
	return si.serializedSignedAttrs != nil
}

func (si *SignerInfo) checkBuilding(op string) error {
	if si.IsFrozen() {
		return NewCMSError(op, ErrFrozen)
	}
	return nil
}

// SetDigestAlgorithm sets the digest algorithm OID.
func (si *SignerInfo) SetDigestAlgorithm(oid asn1.ObjectIdentifier) error {
	if err := si.checkBuilding("set digest algorithm"); err != nil {
		return err
	}
	if _, err := pkicrypto.HashForOID(oid); err != nil {
		return NewCMSError("set digest algorithm", err)
	}
	si.digestAlgorithm = pkix.AlgorithmIdentifier{Algorithm: append(asn1.ObjectIdentifier(nil), oid...)}
	return nil
}

// SetSignatureAlgorithm sets the signature algorithm. It stays legal after
// freezing because the algorithm is not covered by the signed attributes.
func (si *SignerInfo) SetSignatureAlgorithm(alg pkix.AlgorithmIdentifier) error {
	if _, err := pkicrypto.SignatureAlgorithm(alg.Algorithm); err != nil {
		return NewCMSError("set signature algorithm", err)
	}
	si.signatureAlgorithm = alg
	return nil
}

// SetSignerIdentifierKind chooses how the signing certificate is referenced.
// The default is IssuerAndSerialNumber.
func (si *SignerInfo) SetSignerIdentifierKind(kind SignerIdentifierKind) error {
	if err := si.checkBuilding("set signer identifier"); err != nil {
		return err
	}
	if si.signingCert != nil {
		sid, err := NewSignerIdentifier(si.signingCert, kind)
		if err != nil {
			return NewCMSError("set signer identifier", err)
		}
		si.sid = &sid
	}
	si.sidKind = kind
	return nil
}

// SetSigningCertificate references cert as the signer.
func (si *SignerInfo) SetSigningCertificate(cert *x509.Certificate) error {
	if err := si.checkBuilding("set signing certificate"); err != nil {
		return err
	}
	if cert == nil {
		return NewCMSError("set signing certificate", fmt.Errorf("certificate is nil"))
	}
	sid, err := NewSignerIdentifier(cert, si.sidKind)
	if err != nil {
		return NewCMSError("set signing certificate", err)
	}
	si.signingCert = cert
	si.sid = &sid
	return nil
}

// AddSigningCertificateAttribute adds the ESS signing-certificate attribute
// for the current signing certificate and digest algorithm. An existing
// binding attribute, v1 or v2, is replaced.
func (si *SignerInfo) AddSigningCertificateAttribute() error {
	const op = "add signing certificate attribute"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	if si.signingCert == nil || len(si.digestAlgorithm.Algorithm) == 0 {
		return NewCMSError(op, fmt.Errorf("%w: signing certificate and digest algorithm are required", ErrIncomplete))
	}
	return si.addBinding(op, si.signingCert, si.digestAlgorithm.Algorithm)
}

// AddSignerCertificateToSignedAttributes adds the ESS signing-certificate
// attribute binding cert under digestOID. Unlike
// SetSigningCertificateAndAddToSignedAttributes it leaves the signer
// identifier and digest algorithm untouched.
func (si *SignerInfo) AddSignerCertificateToSignedAttributes(cert *x509.Certificate, digestOID asn1.ObjectIdentifier) error {
	const op = "add signing certificate attribute"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	if cert == nil {
		return NewCMSError(op, fmt.Errorf("certificate is nil"))
	}
	return si.addBinding(op, cert, digestOID)
}

func (si *SignerInfo) addBinding(op string, cert *x509.Certificate, digestOID asn1.ObjectIdentifier) error {
	attr, err := BindCertificate(cert, digestOID)
	if err != nil {
		return NewCMSError(op, err)
	}
	if err := si.putBinding(attr); err != nil {
		return NewCMSError(op, err)
	}
	return nil
}

// putBinding stores a binding attribute built by BindCertificate, dropping
// the other version.
func (si *SignerInfo) putBinding(attr Attribute) error {
	norm, err := attr.normalize()
	if err != nil {
		return err
	}
	other := OIDSigningCertificate
	if norm.Type.Equal(OIDSigningCertificate) {
		other = OIDSigningCertificateV2
	}
	si.signedAttrs.remove(other)
	return si.signedAttrs.put(norm)
}

// SetSigningCertificateAndAddToSignedAttributes sets the signing certificate
// and its ESS binding attribute for the given digest algorithm in one step.
// On failure the SignerInfo is left unchanged.
func (si *SignerInfo) SetSigningCertificateAndAddToSignedAttributes(cert *x509.Certificate, digestOID asn1.ObjectIdentifier) error {
	const op = "set signing certificate"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	if cert == nil {
		return NewCMSError(op, fmt.Errorf("certificate is nil"))
	}
	sid, err := NewSignerIdentifier(cert, si.sidKind)
	if err != nil {
		return NewCMSError(op, err)
	}
	attr, err := BindCertificate(cert, digestOID)
	if err != nil {
		return NewCMSError(op, err)
	}

	si.signingCert = cert
	si.sid = &sid
	si.digestAlgorithm = pkix.AlgorithmIdentifier{Algorithm: append(asn1.ObjectIdentifier(nil), digestOID...)}
	if err := si.putBinding(attr); err != nil {
		return NewCMSError(op, err)
	}
	return nil
}

// SetMessageDigest sets the messageDigest signed attribute.
func (si *SignerInfo) SetMessageDigest(digest []byte) error {
	const op = "set message digest"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	if len(digest) == 0 {
		return NewCMSError(op, fmt.Errorf("digest is empty"))
	}
	attr, err := NewAttribute(OIDMessageDigest, append([]byte(nil), digest...))
	if err != nil {
		return NewCMSError(op, err)
	}
	if err := si.signedAttrs.put(attr); err != nil {
		return NewCMSError(op, err)
	}
	return nil
}

// SetOcspResponses replaces the archived OCSP responses. Each entry is a DER
// OCSPResponse or BasicOCSPResponse.
func (si *SignerInfo) SetOcspResponses(responses [][]byte) error {
	const op = "set OCSP responses"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	ocsps := copyAll(responses)
	if err := si.updateRevocationAttribute(si.crlResponses, ocsps); err != nil {
		return NewCMSError(op, err)
	}
	si.ocspResponses = ocsps
	return nil
}

// SetCrlResponses replaces the archived CRLs.
func (si *SignerInfo) SetCrlResponses(crls [][]byte) error {
	const op = "set CRL responses"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	list := copyAll(crls)
	if err := si.updateRevocationAttribute(list, si.ocspResponses); err != nil {
		return NewCMSError(op, err)
	}
	si.crlResponses = list
	return nil
}

// updateRevocationAttribute keeps exactly one revocation archival attribute
// reflecting crls and ocsps, or none when both are empty.
func (si *SignerInfo) updateRevocationAttribute(crls, ocsps [][]byte) error {
	if len(crls) == 0 && len(ocsps) == 0 {
		si.signedAttrs.remove(OIDRevocationInfoArchival)
		return nil
	}
	attr, err := revocationArchivalAttribute(crls, ocsps)
	if err != nil {
		return err
	}
	return si.signedAttrs.put(attr)
}

// AddSignedAttribute adds a signed attribute; duplicates are rejected.
func (si *SignerInfo) AddSignedAttribute(attr Attribute) error {
	const op = "add signed attribute"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	if err := si.signedAttrs.Add(attr); err != nil {
		return NewCMSError(op, err)
	}
	return nil
}

// AddUnsignedAttribute adds an unsigned attribute. It stays legal after
// freezing; duplicates are rejected.
func (si *SignerInfo) AddUnsignedAttribute(attr Attribute) error {
	if err := si.unsignedAttrs.Add(attr); err != nil {
		return NewCMSError("add unsigned attribute", err)
	}
	return nil
}

// SetSignature sets the signature value.
func (si *SignerInfo) SetSignature(sig []byte) {
	si.signature = append([]byte(nil), sig...)
}

// SetSerializedSignedAttributes installs externally produced signed
// attributes (a DER SET OF Attribute, or its [0] IMPLICIT form) and freezes
// the SignerInfo with exactly these bytes.
func (si *SignerInfo) SetSerializedSignedAttributes(der []byte) error {
	const op = "set serialized signed attributes"
	if err := si.checkBuilding(op); err != nil {
		return err
	}
	set, err := DecodeAttributeSet(der)
	if err != nil {
		return NewCMSError(op, err)
	}
	canonical, err := retagSet(der)
	if err != nil {
		return NewCMSError(op, err)
	}
	si.signedAttrs = set
	si.ocspResponses, si.crlResponses = nil, nil
	si.serializedSignedAttrs = canonical
	return nil
}

// SerializeSignedAttributes encodes the signed attributes as a DER SET OF,
// the exact bytes covered by the signature, and freezes the SignerInfo.
// Later calls return the same bytes.
func (si *SignerInfo) SerializeSignedAttributes() ([]byte, error) {
	if !si.IsFrozen() {
		der, err := si.signedAttrs.Encode()
		if err != nil {
			return nil, NewCMSError("serialize signed attributes", err)
		}
		si.serializedSignedAttrs = der
	}
	return append([]byte(nil), si.serializedSignedAttrs...), nil
}

// SigningCertificate returns the referenced signing certificate.
func (si *SignerInfo) SigningCertificate() *x509.Certificate {
	return si.signingCert
}

// SignerIdentifier returns the signer identifier, or false before a signing
// certificate was set.
func (si *SignerInfo) SignerIdentifier() (SignerIdentifier, bool) {
	if si.sid == nil {
		return SignerIdentifier{}, false
	}
	return *si.sid, true
}

// DigestAlgorithm returns the digest algorithm identifier.
func (si *SignerInfo) DigestAlgorithm() pkix.AlgorithmIdentifier {
	return si.digestAlgorithm
}

// SignatureAlgorithm returns the signature algorithm identifier.
func (si *SignerInfo) SignatureAlgorithm() pkix.AlgorithmIdentifier {
	return si.signatureAlgorithm
}

// SignedAttributes returns a copy of the signed attributes.
func (si *SignerInfo) SignedAttributes() *AttributeSet {
	return si.signedAttrs.clone()
}

// UnsignedAttributes returns a copy of the unsigned attributes.
func (si *SignerInfo) UnsignedAttributes() *AttributeSet {
	return si.unsignedAttrs.clone()
}

// Signature returns the signature value, or nil when none is set.
func (si *SignerInfo) Signature() []byte {
	if si.signature == nil {
		return nil
	}
	return append([]byte(nil), si.signature...)
}

// MessageDigest returns the value of the messageDigest signed attribute.
func (si *SignerInfo) MessageDigest() ([]byte, error) {
	attr, ok := si.signedAttrs.Get(OIDMessageDigest)
	if !ok {
		return nil, fmt.Errorf("%w: messageDigest", ErrMissingAttribute)
	}
	var digest []byte
	if rest, err := asn1.Unmarshal(attr.Values[0].FullBytes, &digest); err != nil || len(rest) > 0 {
		return nil, fmt.Errorf("%w: messageDigest value", ErrInvalidContainerStructure)
	}
	return digest, nil
}

// RevocationEvidence returns the OCSP responses and CRLs archived in the
// signed attributes, CRLs first.
func (si *SignerInfo) RevocationEvidence() ([]RevocationEvidence, error) {
	attr, ok := si.signedAttrs.Get(OIDRevocationInfoArchival)
	if !ok {
		return nil, nil
	}
	return parseRevocationArchival(attr)
}

func copyAll(in [][]byte) [][]byte {
	if len(in) == 0 {
		return nil
	}
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = append([]byte(nil), b...)
	}
	return out
}
