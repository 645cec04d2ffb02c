package main

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/audit"
	"github.com/remiblancher/sigevidence/pkg/ocsp"
)

// executeCommand executes a Cobra command with the given args and returns output.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)

	err = root.Execute()
	// PersistentPostRunE does not run after a failed command.
	_ = audit.Close()
	return buf.String(), err
}

// resetFlags resets every package-level flag to its default value.
func resetFlags() {
	auditLogPath = ""
	policyPath = ""

	siCert, siKey, siContent, siDigest = "", "", "", ""
	siSID = "issuer-serial"
	siOCSP, siCRL = nil, nil
	siSigningTime = false
	siOutput, siConformance = "", ""
	siCandidates = nil
	siIssuer, siAt, siVerifyInput = "", "", ""

	ocspVerifyCert, ocspVerifyIssuer, ocspVerifyAt = "", "", ""
	crlVerifyCert, crlVerifyIssuer, crlVerifyAt = "", "", ""

	auditTailNum = 10
	auditShowJSON = false
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// testContext holds test resources.
type testContext struct {
	t       *testing.T
	tempDir string
}

// newTestContext creates a new test context with a temp directory and
// clean flags.
func newTestContext(t *testing.T) *testContext {
	t.Helper()
	resetFlags()
	return &testContext{t: t, tempDir: t.TempDir()}
}

// path returns a path within the temp directory.
func (tc *testContext) path(name string) string {
	return filepath.Join(tc.tempDir, name)
}

// writeFile writes content to a file in the temp directory.
func (tc *testContext) writeFile(name string, content []byte) string {
	tc.t.Helper()
	path := tc.path(name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		tc.t.Fatalf("Failed to write file %s: %v", name, err)
	}
	return path
}

// testPKI is a CA and a signer written to PEM files.
type testPKI struct {
	caCert   *x509.Certificate
	caKey    crypto.Signer
	cert     *x509.Certificate
	caPath   string
	certPath string
	keyPath  string
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate ECDSA key: %v", err)
	}
	return priv
}

func createCertificate(t *testing.T, template, parent *x509.Certificate, pub crypto.PublicKey, signer crypto.Signer) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, signer)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert
}

func (tc *testContext) newTestPKI() *testPKI {
	t := tc.t
	t.Helper()

	caKey := generateKey(t)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA", Organization: []string{"Test Org"}},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	caCert := createCertificate(t, caTemplate, caTemplate, caKey.Public(), caKey)

	key := generateKey(t)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(0x1234),
		Subject:      pkix.Name{CommonName: "Test Signer", Organization: []string{"Test Org"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(30 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		SubjectKeyId: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
	}
	cert := createCertificate(t, template, caCert, key.Public(), caKey)

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal key: %v", err)
	}
	return &testPKI{
		caCert:   caCert,
		caKey:    caKey,
		cert:     cert,
		caPath:   tc.writeFile("ca.crt", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caCert.Raw})),
		certPath: tc.writeFile("signer.crt", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})),
		keyPath:  tc.writeFile("signer.key", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})),
	}
}

// writeOCSP writes a CA-signed OCSP response about the signer valid for
// one hour around now.
func (tc *testContext) writeOCSP(p *testPKI, name string, revoked bool) string {
	t := tc.t
	t.Helper()
	id, err := ocsp.NewCertID(crypto.SHA1, p.caCert, p.cert)
	if err != nil {
		t.Fatalf("NewCertID() error = %v", err)
	}
	now := time.Now()
	b := ocsp.NewResponseBuilder(p.caCert, p.caKey).SetProducedAt(now.Add(-time.Hour))
	if revoked {
		b.AddRevoked(id, now.Add(-time.Hour), now.Add(time.Hour), now.Add(-2*time.Hour), ocsp.ReasonKeyCompromise)
	} else {
		b.AddGood(id, now.Add(-time.Hour), now.Add(time.Hour))
	}
	data, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tc.writeFile(name, data)
}

// writeCRL writes a CA-signed CRL, listing the signer when revoked is set.
func (tc *testContext) writeCRL(p *testPKI, name string, revoked bool) string {
	t := tc.t
	t.Helper()
	now := time.Now()
	template := &x509.RevocationList{
		Number:     big.NewInt(3),
		ThisUpdate: now.Add(-time.Hour),
		NextUpdate: now.Add(24 * time.Hour),
	}
	if revoked {
		template.RevokedCertificateEntries = []x509.RevocationListEntry{{
			SerialNumber:   p.cert.SerialNumber,
			RevocationTime: now.Add(-2 * time.Hour),
		}}
	}
	der, err := x509.CreateRevocationList(rand.Reader, template, p.caCert, p.caKey)
	if err != nil {
		t.Fatalf("CreateRevocationList() error = %v", err)
	}
	return tc.writeFile(name, pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der}))
}
