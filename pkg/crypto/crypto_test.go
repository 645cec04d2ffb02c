package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"testing"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

// =============================================================================
// [Unit] Registry Tests
// =============================================================================

func TestU_HashForOID(t *testing.T) {
	tests := []struct {
		oid  asn1.ObjectIdentifier
		want crypto.Hash
	}{
		{OIDSHA1, crypto.SHA1},
		{OIDSHA256, crypto.SHA256},
		{OIDSHA384, crypto.SHA384},
		{OIDSHA512, crypto.SHA512},
		{OIDSHA3_256, crypto.SHA3_256},
		{OIDSHA3_512, crypto.SHA3_512},
	}
	for _, tt := range tests {
		got, err := HashForOID(tt.oid)
		if err != nil {
			t.Fatalf("HashForOID(%s) error = %v", tt.oid, err)
		}
		if got != tt.want {
			t.Errorf("HashForOID(%s) = %v, want %v", tt.oid, got, tt.want)
		}
	}

	if _, err := HashForOID(asn1.ObjectIdentifier{1, 2, 3}); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("HashForOID(unknown) error = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestU_OIDForHash_RoundTrip(t *testing.T) {
	for _, h := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA512, crypto.SHA3_384} {
		oid, err := OIDForHash(h)
		if err != nil {
			t.Fatalf("OIDForHash(%v) error = %v", h, err)
		}
		back, err := HashForOID(oid)
		if err != nil || back != h {
			t.Errorf("HashForOID(OIDForHash(%v)) = %v, %v", h, back, err)
		}
	}
}

func TestU_ParseOID(t *testing.T) {
	oid, err := ParseOID("2.16.840.1.101.3.4.2.3")
	if err != nil {
		t.Fatalf("ParseOID() error = %v", err)
	}
	if !oid.Equal(OIDSHA512) {
		t.Errorf("ParseOID() = %s, want %s", oid, OIDSHA512)
	}

	for _, bad := range []string{"", "1", "1.x.3", "1.-2"} {
		if _, err := ParseOID(bad); err == nil {
			t.Errorf("ParseOID(%q) should fail", bad)
		}
	}
}

func TestU_HashByName(t *testing.T) {
	h, err := HashByName("SHA3-256")
	if err != nil || h != crypto.SHA3_256 {
		t.Errorf("HashByName(SHA3-256) = %v, %v", h, err)
	}
	if _, err := HashByName("md5"); err == nil {
		t.Error("HashByName(md5) should fail")
	}
}

func TestU_Digest_SHA3(t *testing.T) {
	d, err := Digest(crypto.SHA3_256, []byte("abc"))
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if len(d) != 32 {
		t.Errorf("len(Digest(SHA3-256)) = %d, want 32", len(d))
	}
	// FIPS 202 test vector for "abc"
	if d[0] != 0x3a || d[1] != 0x98 {
		t.Errorf("Digest(SHA3-256, abc) prefix = %x", d[:2])
	}
}

// =============================================================================
// [Unit] Sign / Verify Tests
// =============================================================================

func TestU_SignMessage_VerifySignature(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	ecKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	_, edKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate Ed25519 key: %v", err)
	}
	_, mlKey, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ML-DSA-65 key: %v", err)
	}

	pss, err := PSSAlgorithmIdentifier(crypto.SHA256)
	if err != nil {
		t.Fatalf("PSSAlgorithmIdentifier() error = %v", err)
	}

	tests := []struct {
		name   string
		signer Signer
		alg    pkix.AlgorithmIdentifier
		digest crypto.Hash
	}{
		{"RSA PKCS1", rsaKey, pkix.AlgorithmIdentifier{Algorithm: OIDSHA256WithRSA}, crypto.SHA256},
		{"rsaEncryption with digest", rsaKey, pkix.AlgorithmIdentifier{Algorithm: OIDRSAEncryption}, crypto.SHA512},
		{"RSA-PSS", rsaKey, pss, crypto.SHA256},
		{"ECDSA", ecKey, pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA384}, crypto.SHA384},
		{"Ed25519", edKey, pkix.AlgorithmIdentifier{Algorithm: OIDEd25519}, crypto.SHA512},
		{"ML-DSA-65", mlKey, pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65}, crypto.SHA512},
	}

	message := []byte("signed attributes")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := SignMessage(tt.signer, tt.alg, tt.digest, message)
			if err != nil {
				t.Fatalf("SignMessage() error = %v", err)
			}
			if err := VerifySignature(tt.signer.Public(), tt.alg, tt.digest, message, sig); err != nil {
				t.Errorf("VerifySignature() error = %v", err)
			}
			err = VerifySignature(tt.signer.Public(), tt.alg, tt.digest, []byte("tampered"), sig)
			if !errors.Is(err, ErrVerification) {
				t.Errorf("VerifySignature(tampered) error = %v, want ErrVerification", err)
			}
		})
	}
}

func TestU_VerifySignature_Ed448(t *testing.T) {
	pub, priv, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate Ed448 key: %v", err)
	}
	message := []byte("test message for Ed448")
	sig := ed448.Sign(priv, message, "")

	alg := pkix.AlgorithmIdentifier{Algorithm: OIDEd448}
	if err := VerifySignature(pub, alg, 0, message, sig); err != nil {
		t.Errorf("VerifySignature(Ed448) error = %v", err)
	}
}

func TestU_VerifySignature_KeyMismatch(t *testing.T) {
	_, edKey, _ := ed25519.GenerateKey(rand.Reader)
	alg := pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA256}
	err := VerifySignature(edKey.Public(), alg, 0, []byte("m"), []byte("s"))
	if !errors.Is(err, ErrVerification) {
		t.Errorf("VerifySignature(wrong key type) error = %v, want ErrVerification", err)
	}
}

func TestU_SignatureAlgorithmFor(t *testing.T) {
	ecKey, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	alg, err := SignatureAlgorithmFor(&ecKey.PublicKey, crypto.SHA256)
	if err != nil {
		t.Fatalf("SignatureAlgorithmFor() error = %v", err)
	}
	if !alg.Algorithm.Equal(OIDECDSAWithSHA256) {
		t.Errorf("SignatureAlgorithmFor(P-256, SHA256) = %s", alg.Algorithm)
	}

	if _, err := SignatureAlgorithmFor(&ecKey.PublicKey, crypto.SHA3_256); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("SignatureAlgorithmFor(ECDSA, SHA3) error = %v, want ErrUnsupportedAlgorithm", err)
	}
}

// =============================================================================
// [Unit] Public Key / Size Tests
// =============================================================================

func TestU_ParsePublicKey_MLDSA(t *testing.T) {
	pub, _, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ML-DSA-65 key: %v", err)
	}
	raw, err := pub.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}
	spki, err := asn1.Marshal(struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: OIDMLDSA65},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	})
	if err != nil {
		t.Fatalf("Failed to marshal SPKI: %v", err)
	}

	parsed, err := ParsePublicKey(spki)
	if err != nil {
		t.Fatalf("ParsePublicKey() error = %v", err)
	}
	mlPub, ok := parsed.(*mldsa65.PublicKey)
	if !ok {
		t.Fatalf("ParsePublicKey() type = %T, want *mldsa65.PublicKey", parsed)
	}
	if !mlPub.Equal(pub) {
		t.Error("ParsePublicKey() returned a different key")
	}
}

func TestU_MaxSignatureSize(t *testing.T) {
	rsaKey, _ := rsa.GenerateKey(rand.Reader, 2048)
	p256, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	p521, _ := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	edPub, _, _ := ed25519.GenerateKey(rand.Reader)

	tests := []struct {
		name string
		oid  asn1.ObjectIdentifier
		pub  crypto.PublicKey
		want int
	}{
		{"RSA key", OIDSHA256WithRSA, &rsaKey.PublicKey, 256},
		{"RSA no key", OIDRSAEncryption, nil, 1024},
		{"PSS no key", OIDRSASSAPSS, nil, 1024},
		{"P-256 key", OIDECDSAWithSHA256, &p256.PublicKey, 72},
		{"P-521 key", OIDECDSAWithSHA512, &p521.PublicKey, 141},
		{"ECDSA no key", OIDECDSAWithSHA256, nil, 141},
		{"Ed25519", OIDEd25519, edPub, 64},
		{"Ed448 no key", OIDEd448, nil, 114},
		{"ML-DSA-65 no key", OIDMLDSA65, nil, mldsa65.SignatureSize},
	}
	for _, tt := range tests {
		got, err := MaxSignatureSize(tt.oid, tt.pub)
		if err != nil {
			t.Fatalf("%s: MaxSignatureSize() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: MaxSignatureSize() = %d, want %d", tt.name, got, tt.want)
		}
	}

	if _, err := MaxSignatureSize(asn1.ObjectIdentifier{1, 2, 3}, nil); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("MaxSignatureSize(unknown) error = %v", err)
	}
}

func TestU_MaxSignatureSize_BoundsRealSignatures(t *testing.T) {
	key, _ := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	bound, _ := MaxSignatureSize(OIDECDSAWithSHA256, &key.PublicKey)
	alg := pkix.AlgorithmIdentifier{Algorithm: OIDECDSAWithSHA256}
	for i := 0; i < 32; i++ {
		sig, err := SignMessage(key, alg, crypto.SHA256, []byte{byte(i)})
		if err != nil {
			t.Fatalf("SignMessage() error = %v", err)
		}
		if len(sig) > bound {
			t.Fatalf("signature length %d exceeds bound %d", len(sig), bound)
		}
	}
}

func TestU_SplitSigned_Malformed(t *testing.T) {
	if _, _, _, err := SplitSigned([]byte{0x30, 0x00}); err == nil {
		t.Error("SplitSigned(empty sequence) should fail")
	}
}
