package ocsp

import (
	"crypto"
	"crypto/elliptic"
	"errors"
	"math/big"
	"testing"
	"time"

	xocsp "golang.org/x/crypto/ocsp"
)

var (
	testThisUpdate = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testNextUpdate = testThisUpdate.Add(7 * 24 * time.Hour)
	testCheckTime  = testThisUpdate.Add(24 * time.Hour)
)

// =============================================================================
// Status Tests
// =============================================================================

func TestU_Verify_Good(t *testing.T) {
	p := newTestPKI(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		SetProducedAt(testThisUpdate).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	ok, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify() = false, want true for a fresh good response")
	}
}

func TestU_Verify_Revoked(t *testing.T) {
	p := newTestPKI(t)
	revokedAt := testThisUpdate.Add(-48 * time.Hour)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddRevoked(p.certID(t), testThisUpdate, testNextUpdate, revokedAt, ReasonKeyCompromise))

	result, err := NewVerifier().VerifyDetailed(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("VerifyDetailed failed: %v", err)
	}
	if result.Verified {
		t.Error("Verified = true for a revoked certificate")
	}
	if result.Verdict != VerdictRevoked {
		t.Errorf("Verdict = %v, want %v", result.Verdict, VerdictRevoked)
	}
	if result.CertStatus != CertStatusRevoked {
		t.Errorf("CertStatus = %v, want revoked", result.CertStatus)
	}
	if result.RevocationReason != ReasonKeyCompromise {
		t.Errorf("RevocationReason = %d, want %d", result.RevocationReason, ReasonKeyCompromise)
	}
	if !result.RevocationTime.Equal(revokedAt) {
		t.Errorf("RevocationTime = %v, want %v", result.RevocationTime, revokedAt)
	}
}

func TestU_Verify_Unknown(t *testing.T) {
	p := newTestPKI(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddUnknown(p.certID(t), testThisUpdate, testNextUpdate))

	result, err := NewVerifier().VerifyDetailed(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("VerifyDetailed failed: %v", err)
	}
	if result.Verified || result.Verdict != VerdictUnknown {
		t.Errorf("got Verified=%v Verdict=%v, want false/%v", result.Verified, result.Verdict, VerdictUnknown)
	}
}

// =============================================================================
// Freshness Tests
// =============================================================================

func TestU_Verify_Freshness(t *testing.T) {
	p := newTestPKI(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	tests := []struct {
		name     string
		verifier *Verifier
		at       time.Time
		want     bool
	}{
		{"at thisUpdate", NewVerifier(), testThisUpdate, true},
		{"at nextUpdate", NewVerifier(), testNextUpdate, true},
		{"before thisUpdate", NewVerifier(), testThisUpdate.Add(-time.Second), false},
		{"after nextUpdate", NewVerifier(), testNextUpdate.Add(time.Second), false},
		{"years later", NewVerifier(), testNextUpdate.AddDate(3, 0, 0), false},
		{"before thisUpdate within skew", &Verifier{ClockSkew: time.Minute}, testThisUpdate.Add(-30 * time.Second), true},
		{"after nextUpdate within skew", &Verifier{ClockSkew: time.Minute}, testNextUpdate.Add(30 * time.Second), true},
		{"after nextUpdate beyond skew", &Verifier{ClockSkew: time.Minute}, testNextUpdate.Add(2 * time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.verifier.VerifyDetailed(data, p.cert, p.caCert, tt.at)
			if err != nil {
				t.Fatalf("VerifyDetailed failed: %v", err)
			}
			if result.Verified != tt.want {
				t.Errorf("Verified = %v, want %v (verdict %v)", result.Verified, tt.want, result.Verdict)
			}
			if !tt.want && result.Verdict != VerdictNotFresh {
				t.Errorf("Verdict = %v, want %v", result.Verdict, VerdictNotFresh)
			}
		})
	}
}

func TestU_Verify_MissingNextUpdate(t *testing.T) {
	p := newTestPKI(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddGood(p.certID(t), testThisUpdate, time.Time{}))

	tests := []struct {
		name     string
		verifier *Verifier
		at       time.Time
		want     bool
	}{
		{"accept far future", NewVerifier(), testThisUpdate.AddDate(10, 0, 0), true},
		{"accept before thisUpdate", NewVerifier(), testThisUpdate.Add(-time.Hour), false},
		{"reject", &Verifier{MissingNextUpdate: RejectMissingNextUpdate}, testThisUpdate.Add(time.Minute), false},
		{"grace within", &Verifier{MissingNextUpdate: GraceMissingNextUpdate, Grace: time.Hour}, testThisUpdate.Add(30 * time.Minute), true},
		{"grace exceeded", &Verifier{MissingNextUpdate: GraceMissingNextUpdate, Grace: time.Hour}, testThisUpdate.Add(2 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.verifier.VerifyDetailed(data, p.cert, p.caCert, tt.at)
			if err != nil {
				t.Fatalf("VerifyDetailed failed: %v", err)
			}
			if result.Verified != tt.want {
				t.Errorf("Verified = %v, want %v", result.Verified, tt.want)
			}
			if !result.NextUpdate.IsZero() {
				t.Errorf("NextUpdate = %v, want zero", result.NextUpdate)
			}
		})
	}
}

// =============================================================================
// Matching Tests
// =============================================================================

func TestU_Verify_NoMatchingSerial(t *testing.T) {
	p := newTestPKI(t)
	otherID, err := NewCertIDFromSerial(crypto.SHA256, p.caCert, big.NewInt(424242))
	if err != nil {
		t.Fatalf("NewCertIDFromSerial failed: %v", err)
	}
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddGood(otherID, testThisUpdate, testNextUpdate))

	result, err := NewVerifier().VerifyDetailed(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("VerifyDetailed failed: %v", err)
	}
	if result.Verified || result.Verdict != VerdictNoMatch {
		t.Errorf("got Verified=%v Verdict=%v, want false/%v", result.Verified, result.Verdict, VerdictNoMatch)
	}
}

func TestU_Verify_FirstMatchingResponseWins(t *testing.T) {
	p := newTestPKI(t)
	otherID, _ := NewCertIDFromSerial(crypto.SHA256, p.caCert, big.NewInt(7))
	sha1ID, err := NewCertID(crypto.SHA1, p.caCert, p.cert)
	if err != nil {
		t.Fatalf("NewCertID failed: %v", err)
	}

	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddRevoked(otherID, testThisUpdate, testNextUpdate, testThisUpdate, ReasonSuperseded).
		AddGood(sha1ID, testThisUpdate, testNextUpdate).
		AddRevoked(p.certID(t), testThisUpdate, testNextUpdate, testThisUpdate, ReasonKeyCompromise))

	ok, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify() = false, want the first matching (good) entry to decide")
	}
}

func TestU_CertID_MatchesIssuer(t *testing.T) {
	p := newTestPKI(t)
	otherCA, _ := generateTestCAWithKey(t, generateECDSAKeyPair(t, elliptic.P256()), "Other CA")

	for _, h := range []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA384, crypto.SHA512} {
		id, err := NewCertID(h, p.caCert, p.cert)
		if err != nil {
			t.Fatalf("NewCertID(%v) failed: %v", h, err)
		}
		if !id.MatchesCertID(p.caCert, p.cert.SerialNumber) {
			t.Errorf("%v: CertID does not match its own issuer and serial", h)
		}
		if id.MatchesIssuer(otherCA) {
			t.Errorf("%v: CertID matches an unrelated issuer", h)
		}
	}
}

// =============================================================================
// Responder Tests
// =============================================================================

func TestU_Verify_DelegatedResponderValidityWindow(t *testing.T) {
	p := newTestPKI(t)
	responderKey := generateECDSAKeyPair(t, elliptic.P256())
	notBefore := time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)
	responder := generateOCSPResponderCert(t, p.caCert, p.caKey, responderKey, notBefore, notAfter, true)

	thisUpdate := time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC)
	data := mustBuild(t, NewResponseBuilder(responder, responderKey.PrivateKey).
		SetProducedAt(thisUpdate).
		AddGood(p.certID(t), thisUpdate, thisUpdate.Add(7*24*time.Hour)))

	t.Run("inside window", func(t *testing.T) {
		result, err := NewVerifier().VerifyDetailed(data, p.cert, p.caCert, thisUpdate.Add(time.Hour))
		if err != nil {
			t.Fatalf("VerifyDetailed failed: %v", err)
		}
		if !result.Verified {
			t.Errorf("Verified = false, verdict %v", result.Verdict)
		}
		if !result.Delegated {
			t.Error("Delegated = false for a delegated responder")
		}
	})

	t.Run("now", func(t *testing.T) {
		_, err := NewVerifier().Verify(data, p.cert, p.caCert, time.Now())
		if !errors.Is(err, ErrCertificateExpired) {
			t.Fatalf("Verify() error = %v, want ErrCertificateExpired", err)
		}
	})

	t.Run("before window", func(t *testing.T) {
		_, err := NewVerifier().Verify(data, p.cert, p.caCert, time.Date(2004, 6, 1, 0, 0, 0, 0, time.UTC))
		if !errors.Is(err, ErrCertificateNotYetValid) {
			t.Fatalf("Verify() error = %v, want ErrCertificateNotYetValid", err)
		}
	})
}

func TestU_Verify_ResponderWithoutOCSPSigning(t *testing.T) {
	p := newTestPKI(t)
	responderKey := generateECDSAKeyPair(t, elliptic.P256())
	responder := generateOCSPResponderCert(t, p.caCert, p.caKey, responderKey,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), false)

	data := mustBuild(t, NewResponseBuilder(responder, responderKey.PrivateKey).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	_, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrResponderUnauthorized) {
		t.Fatalf("Verify() error = %v, want ErrResponderUnauthorized", err)
	}
	var verr *VerifyError
	if !errors.As(err, &verr) || verr.Op != "responder" {
		t.Errorf("error = %#v, want *VerifyError with Op responder", err)
	}
}

func TestU_Verify_ResponderFromOtherCA(t *testing.T) {
	p := newTestPKI(t)
	otherCA, otherKey := generateTestCAWithKey(t, generateECDSAKeyPair(t, elliptic.P256()), "Other CA")
	responderKey := generateECDSAKeyPair(t, elliptic.P256())
	responder := generateOCSPResponderCert(t, otherCA, otherKey, responderKey,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), true)

	data := mustBuild(t, NewResponseBuilder(responder, responderKey.PrivateKey).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	_, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrResponderUnauthorized) {
		t.Fatalf("Verify() error = %v, want ErrResponderUnauthorized", err)
	}
}

func TestU_Verify_ResponderNotEmbedded(t *testing.T) {
	p := newTestPKI(t)
	responderKey := generateECDSAKeyPair(t, elliptic.P256())
	responder := generateOCSPResponderCert(t, p.caCert, p.caKey, responderKey,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), true)

	data := mustBuild(t, NewResponseBuilder(responder, responderKey.PrivateKey).
		IncludeCerts(false).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	_, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrResponderUnauthorized) {
		t.Fatalf("Verify() error = %v, want ErrResponderUnauthorized", err)
	}
}

func TestU_Verify_ResponderByName(t *testing.T) {
	p := newTestPKI(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		ResponderByName(true).
		IncludeCerts(false).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	ok, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify() = false, want true")
	}
}

func TestU_Verify_IssuerKeyTypes(t *testing.T) {
	tests := []struct {
		name string
		kp   func(t *testing.T) *testKeyPair
	}{
		{"ECDSA-P256", func(t *testing.T) *testKeyPair { return generateECDSAKeyPair(t, elliptic.P256()) }},
		{"ECDSA-P384", func(t *testing.T) *testKeyPair { return generateECDSAKeyPair(t, elliptic.P384()) }},
		{"RSA-2048", func(t *testing.T) *testKeyPair { return generateRSAKeyPair(t, 2048) }},
		{"Ed25519", generateEd25519KeyPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caCert, caKey := generateTestCAWithKey(t, tt.kp(t), "Test CA "+tt.name)
			cert := issueTestCertificate(t, caCert, caKey, generateECDSAKeyPair(t, elliptic.P256()))
			id, err := NewCertID(crypto.SHA256, caCert, cert)
			if err != nil {
				t.Fatalf("NewCertID failed: %v", err)
			}
			data := mustBuild(t, NewResponseBuilder(caCert, caKey).AddGood(id, testThisUpdate, testNextUpdate))

			ok, err := NewVerifier().Verify(data, cert, caCert, testCheckTime)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !ok {
				t.Error("Verify() = false, want true")
			}
		})
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestU_Verify_InvalidSignature(t *testing.T) {
	p := newTestPKI(t)
	data, err := NewResponseBuilder(p.caCert, p.caKey).
		IncludeCerts(false).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate).
		BuildBasic()
	if err != nil {
		t.Fatalf("BuildBasic failed: %v", err)
	}

	// The signature BIT STRING is the last element without certs.
	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = NewVerifier().Verify(tampered, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

func TestU_Verify_WrongIssuerKey(t *testing.T) {
	p := newTestPKI(t)
	_, otherKey := generateTestCA(t)
	data := mustBuild(t, NewResponseBuilder(p.caCert, otherKey).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	_, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("Verify() error = %v, want ErrInvalidSignature", err)
	}
}

func TestU_Verify_UnsuccessfulResponse(t *testing.T) {
	p := newTestPKI(t)
	data, err := NewErrorResponse(StatusTryLater)
	if err != nil {
		t.Fatalf("NewErrorResponse failed: %v", err)
	}

	_, err = NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if !errors.Is(err, ErrUnsuccessfulResponse) {
		t.Fatalf("Verify() error = %v, want ErrUnsuccessfulResponse", err)
	}
}

func TestU_Verify_Malformed(t *testing.T) {
	p := newTestPKI(t)
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"empty sequence", []byte{0x30, 0x00}},
		{"integer", []byte{0x02, 0x01, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVerifier().Verify(tt.data, p.cert, p.caCert, testCheckTime)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Verify() error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestU_NewErrorResponse_RejectsSuccessful(t *testing.T) {
	if _, err := NewErrorResponse(StatusSuccessful); err == nil {
		t.Error("NewErrorResponse(StatusSuccessful) should fail")
	}
}

// =============================================================================
// Encoding Tests
// =============================================================================

func TestU_Verify_BareBasicResponse(t *testing.T) {
	p := newTestPKI(t)
	data, err := NewResponseBuilder(p.caCert, p.caKey).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate).
		BuildBasic()
	if err != nil {
		t.Fatalf("BuildBasic failed: %v", err)
	}

	ok, err := NewVerifier().Verify(data, p.cert, p.caCert, testCheckTime)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify() = false for a bare BasicOCSPResponse")
	}
}

func TestU_ParseBasicResponse_Nonce(t *testing.T) {
	p := newTestPKI(t)
	nonce := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddNonce(nonce).
		AddGood(p.certID(t), testThisUpdate, testNextUpdate))

	basic, err := ParseBasicResponse(data)
	if err != nil {
		t.Fatalf("ParseBasicResponse failed: %v", err)
	}
	if string(basic.Nonce()) != string(nonce) {
		t.Errorf("Nonce() = %x, want %x", basic.Nonce(), nonce)
	}
	certs, err := basic.Certificates()
	if err != nil {
		t.Fatalf("Certificates failed: %v", err)
	}
	if len(certs) != 1 || !certs[0].Equal(p.caCert) {
		t.Errorf("Certificates() = %d certs, want the responder certificate", len(certs))
	}
}

// =============================================================================
// Interoperability Tests (golang.org/x/crypto/ocsp encoder)
// =============================================================================

func TestU_Verify_XCryptoResponses(t *testing.T) {
	p := newTestPKI(t)
	responderKey := generateECDSAKeyPair(t, elliptic.P256())
	delegate := generateOCSPResponderCert(t, p.caCert, p.caKey, responderKey,
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), true)

	tests := []struct {
		name       string
		template   xocsp.Response
		responder  *testKeyPair
		wantOK     bool
		wantStatus CertStatus
	}{
		{
			name:       "good by issuer",
			template:   xocsp.Response{Status: xocsp.Good},
			wantOK:     true,
			wantStatus: CertStatusGood,
		},
		{
			name: "revoked by issuer",
			template: xocsp.Response{
				Status:           xocsp.Revoked,
				RevokedAt:        testThisUpdate.Add(-time.Hour),
				RevocationReason: xocsp.KeyCompromise,
			},
			wantStatus: CertStatusRevoked,
		},
		{
			name:       "unknown by issuer",
			template:   xocsp.Response{Status: xocsp.Unknown},
			wantStatus: CertStatusUnknown,
		},
		{
			name:       "good by delegate",
			template:   xocsp.Response{Status: xocsp.Good, Certificate: delegate},
			responder:  responderKey,
			wantOK:     true,
			wantStatus: CertStatusGood,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := tt.template
			tmpl.SerialNumber = p.cert.SerialNumber
			tmpl.ThisUpdate = testThisUpdate
			tmpl.NextUpdate = testNextUpdate

			responderCert, signer := p.caCert, p.caKey
			if tt.responder != nil {
				responderCert, signer = delegate, tt.responder.PrivateKey
			}

			data, err := xocsp.CreateResponse(p.caCert, responderCert, tmpl, signer)
			if err != nil {
				t.Fatalf("CreateResponse failed: %v", err)
			}

			result, err := NewVerifier().VerifyDetailed(data, p.cert, p.caCert, testCheckTime)
			if err != nil {
				t.Fatalf("VerifyDetailed failed: %v", err)
			}
			if result.Verified != tt.wantOK {
				t.Errorf("Verified = %v, want %v", result.Verified, tt.wantOK)
			}
			if result.CertStatus != tt.wantStatus {
				t.Errorf("CertStatus = %v, want %v", result.CertStatus, tt.wantStatus)
			}
			if tt.wantStatus == CertStatusRevoked && result.RevocationReason != ReasonKeyCompromise {
				t.Errorf("RevocationReason = %d, want %d", result.RevocationReason, ReasonKeyCompromise)
			}
		})
	}
}

func TestU_ResponseBuilder_ParsedByXCrypto(t *testing.T) {
	p := newTestPKI(t)
	revokedAt := testThisUpdate.Add(-time.Hour)
	data := mustBuild(t, NewResponseBuilder(p.caCert, p.caKey).
		AddRevoked(p.certID(t), testThisUpdate, testNextUpdate, revokedAt, ReasonCessationOfOperation))

	resp, err := xocsp.ParseResponseForCert(data, p.cert, p.caCert)
	if err != nil {
		t.Fatalf("ParseResponseForCert failed: %v", err)
	}
	if resp.Status != xocsp.Revoked {
		t.Errorf("Status = %d, want revoked", resp.Status)
	}
	if resp.RevocationReason != int(ReasonCessationOfOperation) {
		t.Errorf("RevocationReason = %d, want %d", resp.RevocationReason, ReasonCessationOfOperation)
	}
	if !resp.RevokedAt.Equal(revokedAt) {
		t.Errorf("RevokedAt = %v, want %v", resp.RevokedAt, revokedAt)
	}
}
