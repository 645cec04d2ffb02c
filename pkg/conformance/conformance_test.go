package conformance

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/remiblancher/sigevidence/pkg/cms"
	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
)

func newTestSignerInfo(t *testing.T) *cms.SignerInfo {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Conformance Signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}

	si := cms.NewSignerInfo()
	if err := si.SetSigningCertificateAndAddToSignedAttributes(cert, pkicrypto.OIDSHA256); err != nil {
		t.Fatalf("SetSigningCertificateAndAddToSignedAttributes() error = %v", err)
	}
	if err := si.SetSignatureAlgorithm(pkix.AlgorithmIdentifier{Algorithm: pkicrypto.OIDECDSAWithSHA256}); err != nil {
		t.Fatalf("SetSignatureAlgorithm() error = %v", err)
	}
	if err := si.SetMessageDigest(bytes.Repeat([]byte{0x11}, 32)); err != nil {
		t.Fatalf("SetMessageDigest() error = %v", err)
	}
	return si
}

func TestU_RulesFor(t *testing.T) {
	tests := []struct {
		level Level
		want  Rules
	}{
		{None, Rules{}},
		{PDFA1, Rules{MaxContentsHexLength: 65535}},
		{PDFA2, Rules{MaxContentsHexLength: 32767, ForbidSigningTime: true}},
		{PDFA3, Rules{MaxContentsHexLength: 32767, ForbidSigningTime: true}},
		{PDFA4, Rules{MaxContentsHexLength: 32767, ForbidSigningTime: true}},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if got := RulesFor(tt.level); got != tt.want {
				t.Errorf("RulesFor(%v) = %+v, want %+v", tt.level, got, tt.want)
			}
		})
	}
}

func TestU_ParseLevel(t *testing.T) {
	for _, level := range []Level{None, PDFA1, PDFA2, PDFA3, PDFA4} {
		got, err := ParseLevel(level.String())
		if err != nil {
			t.Fatalf("ParseLevel(%q) error = %v", level.String(), err)
		}
		if got != level {
			t.Errorf("ParseLevel(%q) = %v", level.String(), got)
		}
	}
	if got, err := ParseLevel(""); err != nil || got != None {
		t.Errorf("ParseLevel(\"\") = %v, %v", got, err)
	}
	if _, err := ParseLevel("pdfa-9"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("ParseLevel(pdfa-9) error = %v, want ErrUnknownLevel", err)
	}
}

func TestU_Check_SigningTime(t *testing.T) {
	si := newTestSignerInfo(t)
	attr, err := cms.NewAttribute(cms.OIDSigningTime, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewAttribute() error = %v", err)
	}
	if err := si.AddSignedAttribute(attr); err != nil {
		t.Fatalf("AddSignedAttribute() error = %v", err)
	}

	if err := Check(PDFA1, si); err != nil {
		t.Errorf("Check(PDFA1) error = %v, want nil", err)
	}
	for _, level := range []Level{PDFA2, PDFA3, PDFA4} {
		if err := Check(level, si); !errors.Is(err, ErrSigningTimeForbidden) {
			t.Errorf("Check(%v) error = %v, want ErrSigningTimeForbidden", level, err)
		}
	}
	if si.IsFrozen() {
		t.Error("Check should not freeze the SignerInfo")
	}
}

func TestU_Check_ContentsLength(t *testing.T) {
	si := newTestSignerInfo(t)
	large, err := cms.NewAttribute(asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1}, bytes.Repeat([]byte{0xAB}, 20000))
	if err != nil {
		t.Fatalf("NewAttribute() error = %v", err)
	}
	if err := si.AddUnsignedAttribute(large); err != nil {
		t.Fatalf("AddUnsignedAttribute() error = %v", err)
	}

	if err := Check(None, si); err != nil {
		t.Errorf("Check(None) error = %v", err)
	}
	if err := Check(PDFA1, si); err != nil {
		t.Errorf("Check(PDFA1) error = %v", err)
	}
	if err := Check(PDFA2, si); !errors.Is(err, ErrContentsTooLarge) {
		t.Errorf("Check(PDFA2) error = %v, want ErrContentsTooLarge", err)
	}
}

func TestU_CheckContentsLength_Boundary(t *testing.T) {
	if err := CheckContentsLength(PDFA2, 16383); err != nil {
		t.Errorf("16383 bytes under PDFA2: %v", err)
	}
	if err := CheckContentsLength(PDFA2, 16384); !errors.Is(err, ErrContentsTooLarge) {
		t.Errorf("16384 bytes under PDFA2: %v, want ErrContentsTooLarge", err)
	}
	if err := CheckContentsLength(None, 1<<24); err != nil {
		t.Errorf("None should be unbounded: %v", err)
	}
}

func TestU_Check_UnknownLevel(t *testing.T) {
	if err := Check(Level(42), newTestSignerInfo(t)); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("Check(42) error = %v, want ErrUnknownLevel", err)
	}
}
