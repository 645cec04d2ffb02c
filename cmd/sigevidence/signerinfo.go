package main

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/audit"
	"github.com/remiblancher/sigevidence/pkg/cms"
	"github.com/remiblancher/sigevidence/pkg/conformance"
	pkicrypto "github.com/remiblancher/sigevidence/pkg/crypto"
	"github.com/remiblancher/sigevidence/pkg/validation"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

var signerInfoCmd = &cobra.Command{
	Use:   "signerinfo",
	Short: "CMS SignerInfo operations (RFC 5652)",
	Long: `Build, inspect and validate the CMS SignerInfo of an embedded signature.

This command provides:
  - sign:     Build and sign a SignerInfo over a content file
  - estimate: Report the encoded size before signing
  - inspect:  Display the fields of a SignerInfo
  - verify:   Verify the signature and the archived revocation evidence`,
}

var signerInfoSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Build and sign a SignerInfo",
	Long: `Build a SignerInfo over a content file and sign it.

The signed attributes carry the content type, the message digest, the ESS
signing-certificate binding and, when --ocsp or --crl is given, the
adbe-revocationInfoArchival attribute.

Examples:
  sigevidence signerinfo sign --content range.bin --cert signer.crt --key signer.key --out si.der
  sigevidence signerinfo sign --content range.bin --cert signer.crt --key signer.key \
      --digest sha512 --ocsp signer.ocsp --crl ca.crl --out si.der`,
	RunE: runSignerInfoSign,
}

var signerInfoEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the encoded size of a SignerInfo",
	Long: `Build the SignerInfo that "sign" would produce and report its size with a
placeholder signature. With --key the placeholder matches the key, otherwise
it is the worst case of the signature algorithm.

Examples:
  sigevidence signerinfo estimate --cert signer.crt --ocsp signer.ocsp --conformance pdfa-2`,
	RunE: runSignerInfoEstimate,
}

var signerInfoInspectCmd = &cobra.Command{
	Use:   "inspect <signerinfo-file>",
	Short: "Display a SignerInfo",
	Args:  cobra.ExactArgs(1),
	RunE:  runSignerInfoInspect,
}

var signerInfoVerifyCmd = &cobra.Command{
	Use:   "verify <signerinfo-file>",
	Short: "Validate a SignerInfo and its revocation evidence",
	Long: `Verify the signature over the signed attributes, then the archived OCSP
responses and CRLs at the given time, OCSP first.

Examples:
  sigevidence signerinfo verify si.der --cert signer.crt --issuer ca.crt
  sigevidence signerinfo verify si.der --cert chain.pem --at 2024-01-15T10:00:00Z --content range.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runSignerInfoVerify,
}

var (
	// signerinfo sign / estimate flags
	siCert        string
	siKey         string
	siContent     string
	siDigest      string
	siSID         string
	siOCSP        []string
	siCRL         []string
	siSigningTime bool
	siOutput      string
	siConformance string

	// signerinfo inspect / verify flags
	siCandidates  []string
	siIssuer      string
	siAt          string
	siVerifyInput string
)

func init() {
	for _, c := range []*cobra.Command{signerInfoSignCmd, signerInfoEstimateCmd} {
		c.Flags().StringVar(&siCert, "cert", "", "Signer certificate (PEM or DER, required)")
		c.Flags().StringVar(&siDigest, "digest", "", "Digest algorithm (default: policy digest_algorithm)")
		c.Flags().StringVar(&siSID, "sid", "issuer-serial", "Signer identifier (issuer-serial, ski)")
		c.Flags().StringSliceVar(&siOCSP, "ocsp", nil, "OCSP response to archive (repeatable)")
		c.Flags().StringSliceVar(&siCRL, "crl", nil, "CRL to archive (repeatable)")
		c.Flags().BoolVar(&siSigningTime, "signing-time", false, "Add the signing-time attribute")
		c.Flags().StringVar(&siConformance, "conformance", "", "PDF/A level to check (pdfa-1..pdfa-4, default: policy)")
		_ = c.MarkFlagRequired("cert")
	}
	signerInfoSignCmd.Flags().StringVar(&siKey, "key", "", "Signer private key (PEM, required)")
	signerInfoSignCmd.Flags().StringVar(&siContent, "content", "", "Content to sign (required)")
	signerInfoSignCmd.Flags().StringVarP(&siOutput, "out", "o", "", "Output file (DER, required)")
	_ = signerInfoSignCmd.MarkFlagRequired("key")
	_ = signerInfoSignCmd.MarkFlagRequired("content")
	_ = signerInfoSignCmd.MarkFlagRequired("out")
	signerInfoEstimateCmd.Flags().StringVar(&siKey, "key", "", "Signer private key (PEM, optional)")

	signerInfoInspectCmd.Flags().StringSliceVar(&siCandidates, "cert", nil, "Candidate signer certificates (repeatable, required)")
	_ = signerInfoInspectCmd.MarkFlagRequired("cert")

	signerInfoVerifyCmd.Flags().StringSliceVar(&siCandidates, "cert", nil, "Candidate signer and issuer certificates (repeatable, required)")
	signerInfoVerifyCmd.Flags().StringVar(&siIssuer, "issuer", "", "Issuer of the signer certificate (default: found among --cert)")
	signerInfoVerifyCmd.Flags().StringVar(&siAt, "at", "", "Time the evidence must cover (RFC 3339, default: now)")
	signerInfoVerifyCmd.Flags().StringVar(&siVerifyInput, "content", "", "Signed content, checked against the messageDigest attribute")
	_ = signerInfoVerifyCmd.MarkFlagRequired("cert")

	signerInfoCmd.AddCommand(signerInfoSignCmd)
	signerInfoCmd.AddCommand(signerInfoEstimateCmd)
	signerInfoCmd.AddCommand(signerInfoInspectCmd)
	signerInfoCmd.AddCommand(signerInfoVerifyCmd)
}

// signerInfoParams are the resolved inputs of sign and estimate.
type signerInfoParams struct {
	cert        *x509.Certificate
	signer      pkicrypto.Signer
	digest      crypto.Hash
	content     []byte
	level       conformance.Level
	ocsps, crls [][]byte
}

func loadSignerInfoParams(needContent bool) (*signerInfoParams, error) {
	if siSID != "issuer-serial" && siSID != "ski" {
		return nil, fmt.Errorf("invalid --sid %q (issuer-serial or ski)", siSID)
	}
	pol, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	p := &signerInfoParams{digest: pol.DigestAlgorithm, level: pol.Conformance}
	if siDigest != "" {
		if p.digest, err = pkicrypto.HashByName(siDigest); err != nil {
			return nil, err
		}
	}
	if siConformance != "" {
		if p.level, err = conformance.ParseLevel(siConformance); err != nil {
			return nil, err
		}
	}
	if p.cert, err = x509util.LoadCertificate(siCert); err != nil {
		return nil, err
	}
	if siKey != "" {
		if p.signer, err = pkicrypto.LoadPrivateKey(siKey); err != nil {
			return nil, err
		}
	}
	if needContent {
		if p.content, err = os.ReadFile(siContent); err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
	}
	if p.ocsps, err = readDERFiles(siOCSP); err != nil {
		return nil, err
	}
	if p.crls, err = readDERFiles(siCRL); err != nil {
		return nil, err
	}
	return p, nil
}

// buildSignerInfo assembles the unsigned SignerInfo described by p.
func buildSignerInfo(p *signerInfoParams) (*cms.SignerInfo, error) {
	si := cms.NewSignerInfo()
	if siSID == "ski" {
		if err := si.SetSignerIdentifierKind(cms.SubjectKeyIdentifier); err != nil {
			return nil, err
		}
	}

	digestOID, err := pkicrypto.OIDForHash(p.digest)
	if err != nil {
		return nil, err
	}
	if err := si.SetSigningCertificateAndAddToSignedAttributes(p.cert, digestOID); err != nil {
		return nil, err
	}

	pub, err := pkicrypto.PublicKey(p.cert)
	if err != nil {
		return nil, err
	}
	if p.signer != nil {
		pub = p.signer.Public()
	}
	sigAlg, err := pkicrypto.SignatureAlgorithmFor(pub, p.digest)
	if err != nil {
		return nil, err
	}
	if err := si.SetSignatureAlgorithm(sigAlg); err != nil {
		return nil, err
	}

	contentType, err := cms.NewAttribute(cms.OIDContentType, cms.OIDData)
	if err != nil {
		return nil, err
	}
	if err := si.AddSignedAttribute(contentType); err != nil {
		return nil, err
	}
	if siSigningTime {
		attr, err := cms.NewAttribute(cms.OIDSigningTime, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if err := si.AddSignedAttribute(attr); err != nil {
			return nil, err
		}
	}

	// Estimates run before the content is known: the digest length is fixed.
	digest := make([]byte, p.digest.Size())
	if p.content != nil {
		if digest, err = pkicrypto.Digest(p.digest, p.content); err != nil {
			return nil, err
		}
	}
	if err := si.SetMessageDigest(digest); err != nil {
		return nil, err
	}

	if len(p.ocsps) > 0 {
		if err := si.SetOcspResponses(p.ocsps); err != nil {
			return nil, err
		}
	}
	if len(p.crls) > 0 {
		if err := si.SetCrlResponses(p.crls); err != nil {
			return nil, err
		}
	}
	return si, nil
}

func signerInfoDetails(p *signerInfoParams, si *cms.SignerInfo, size int) audit.SignerInfoDetails {
	return audit.SignerInfoDetails{
		Path:      siOutput,
		Subject:   p.cert.Subject.String(),
		Serial:    formatSerial(p.cert.SerialNumber),
		Algorithm: si.SignatureAlgorithm().Algorithm.String(),
		Digest:    si.DigestAlgorithm().Algorithm.String(),
		Size:      size,
		Evidence:  len(p.ocsps) + len(p.crls),
	}
}

func runSignerInfoSign(cmd *cobra.Command, args []string) error {
	p, err := loadSignerInfoParams(true)
	if err != nil {
		return err
	}
	si, err := buildSignerInfo(p)
	if err != nil {
		return err
	}

	estimate, err := si.EstimatedSize()
	if err != nil {
		return err
	}
	if err := conformance.Check(p.level, si); err != nil {
		return err
	}

	_, err = si.SerializeSignedAttributes()
	if logErr := audit.LogSignerInfoFrozen(signerInfoDetails(p, si, estimate), err); logErr != nil {
		return logErr
	}
	if err != nil {
		return err
	}

	err = si.Sign(p.signer)
	var der []byte
	if err == nil {
		der, err = si.Bytes(true)
	}
	details := signerInfoDetails(p, si, len(der))
	details.DER = der
	if logErr := audit.LogSignerInfoSigned(details, err); logErr != nil {
		return logErr
	}
	if err != nil {
		return err
	}

	if err := conformance.CheckContentsLength(p.level, len(der)); err != nil {
		return err
	}
	if err := os.WriteFile(siOutput, der, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "SignerInfo written to %s\n", siOutput)
	fmt.Fprintf(out, "  Signer:    %s\n", p.cert.Subject)
	fmt.Fprintf(out, "  Algorithm: %s\n", si.SignatureAlgorithm().Algorithm)
	fmt.Fprintf(out, "  Size:      %d bytes (estimate %d)\n", len(der), estimate)
	fmt.Fprintf(out, "  Evidence:  %d OCSP, %d CRL\n", len(p.ocsps), len(p.crls))
	return nil
}

func runSignerInfoEstimate(cmd *cobra.Command, args []string) error {
	p, err := loadSignerInfoParams(false)
	if err != nil {
		return err
	}
	si, err := buildSignerInfo(p)
	if err != nil {
		return err
	}
	estimate, err := si.EstimatedSize()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Estimated size: %d bytes (%d hex characters)\n", estimate, 2*estimate)
	if p.level == conformance.None {
		return nil
	}
	rules := conformance.RulesFor(p.level)
	fmt.Fprintf(out, "Conformance %s: max %d hex characters\n", p.level, rules.MaxContentsHexLength)
	if err := conformance.Check(p.level, si); err != nil {
		fmt.Fprintf(out, "  FAILED: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "  OK")
	return nil
}

func runSignerInfoInspect(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	candidates, err := loadCertificates(siCandidates)
	if err != nil {
		return err
	}

	si, err := cms.ParseSignerInfo(der, candidates)
	details := audit.SignerInfoDetails{Path: args[0], DER: der, Size: len(der)}
	if si != nil {
		cert := si.SigningCertificate()
		details.Subject = cert.Subject.String()
		details.Serial = formatSerial(cert.SerialNumber)
		details.Algorithm = si.SignatureAlgorithm().Algorithm.String()
		details.Digest = si.DigestAlgorithm().Algorithm.String()
	}
	if logErr := audit.LogSignerInfoParsed(details, err); logErr != nil {
		return logErr
	}
	if err != nil {
		return err
	}
	return printSignerInfo(cmd.OutOrStdout(), si, len(der))
}

func printSignerInfo(out io.Writer, si *cms.SignerInfo, size int) error {
	cert := si.SigningCertificate()
	sid, _ := si.SignerIdentifier()
	evidence, err := si.RevocationEvidence()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "SignerInfo (%d bytes)\n", size)
	fmt.Fprintf(out, "  Signer:             %s\n", cert.Subject)
	fmt.Fprintf(out, "  Serial:             %s\n", formatSerial(cert.SerialNumber))
	fmt.Fprintf(out, "  Identifier:         %s\n", sid.Kind)
	fmt.Fprintf(out, "  Digest algorithm:   %s\n", si.DigestAlgorithm().Algorithm)
	fmt.Fprintf(out, "  Signature algorithm: %s\n", si.SignatureAlgorithm().Algorithm)
	fmt.Fprintf(out, "  Signature:          %d bytes\n", len(si.Signature()))
	fmt.Fprintln(out, "  Signed attributes:")
	for _, attr := range si.SignedAttributes().All() {
		fmt.Fprintf(out, "    %s\n", attr.Type)
	}
	if si.UnsignedAttributes().Len() > 0 {
		fmt.Fprintln(out, "  Unsigned attributes:")
		for _, attr := range si.UnsignedAttributes().All() {
			fmt.Fprintf(out, "    %s\n", attr.Type)
		}
	}
	fmt.Fprintf(out, "  Revocation evidence: %d\n", len(evidence))
	for i, ev := range evidence {
		fmt.Fprintf(out, "    [%d] %s (%d bytes)\n", i, ev.Kind, len(ev.DER))
	}
	return nil
}

func runSignerInfoVerify(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	candidates, err := loadCertificates(siCandidates)
	if err != nil {
		return err
	}
	issuer, err := loadOptionalCertificate(siIssuer)
	if err != nil {
		return err
	}
	at, err := parseCheckTime(siAt)
	if err != nil {
		return err
	}
	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	config := &validation.Config{
		Candidates: candidates,
		Issuer:     issuer,
		At:         at,
		Policy:     pol,
	}
	if siVerifyInput != "" {
		if config.Content, err = os.ReadFile(siVerifyInput); err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
	}
	if audit.Enabled() {
		config.Audit = audit.Global()
	}

	report, err := validation.Run(cmd.Context(), der, config)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Signer:     %s\n", report.Signer.Subject)
	fmt.Fprintf(out, "Check time: %s\n", formatTime(report.At))
	fmt.Fprintln(out, "Signature:  VALID")
	if config.Content != nil {
		fmt.Fprintln(out, "Content:    digest matches")
	}
	for _, ev := range report.Evidence {
		fmt.Fprintf(out, "Evidence [%d] %s: %s\n", ev.Index, ev.Kind, ev.Verdict)
	}
	if report.Conformance != nil {
		fmt.Fprintf(out, "Conformance: %v\n", report.Conformance)
	}

	if !report.Valid() {
		fmt.Fprintln(out, "\nVALIDATION FAILED")
		if report.Conformance != nil {
			return report.Conformance
		}
		return fmt.Errorf("signer not proven unrevoked at %s", formatTime(report.At))
	}
	fmt.Fprintln(out, "\nVALIDATION PASSED")
	return nil
}
