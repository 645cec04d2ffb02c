package main

import (
	"crypto/x509"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/audit"
	"github.com/remiblancher/sigevidence/pkg/crl"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

var crlCmd = &cobra.Command{
	Use:   "crl",
	Short: "CRL operations (RFC 5280)",
	Long: `Inspect and verify archived certificate revocation lists.

This command provides:
  - inspect: Display the content of a CRL
  - verify:  Check a certificate against a CRL at a point in time`,
}

var crlInspectCmd = &cobra.Command{
	Use:   "inspect <crl-file>",
	Short: "Display a CRL",
	Args:  cobra.ExactArgs(1),
	RunE:  runCRLInspect,
}

var crlVerifyCmd = &cobra.Command{
	Use:   "verify <crl-file>",
	Short: "Verify a certificate against a CRL",
	Long: `Verify the CRL signature by the issuer, its freshness at the given time and
whether the certificate is listed with a revocation date not after that time.

Examples:
  sigevidence crl verify ca.crl --cert signer.crt --issuer ca.crt
  sigevidence crl verify ca.crl --cert signer.crt --issuer ca.crt --at 2024-01-15T10:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runCRLVerify,
}

var (
	crlVerifyCert   string
	crlVerifyIssuer string
	crlVerifyAt     string
)

func init() {
	crlVerifyCmd.Flags().StringVar(&crlVerifyCert, "cert", "", "Certificate to check (required)")
	crlVerifyCmd.Flags().StringVar(&crlVerifyIssuer, "issuer", "", "CRL issuer (required)")
	crlVerifyCmd.Flags().StringVar(&crlVerifyAt, "at", "", "Time the CRL must cover (RFC 3339, default: now)")
	_ = crlVerifyCmd.MarkFlagRequired("cert")
	_ = crlVerifyCmd.MarkFlagRequired("issuer")

	crlCmd.AddCommand(crlInspectCmd)
	crlCmd.AddCommand(crlVerifyCmd)
}

func runCRLInspect(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return fmt.Errorf("%w: %v", crl.ErrMalformedCRL, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "CRL (%d bytes)\n", len(der))
	fmt.Fprintf(out, "  Issuer:      %s\n", list.Issuer)
	fmt.Fprintf(out, "  Number:      %s\n", formatSerial(list.Number))
	fmt.Fprintf(out, "  This update: %s\n", formatTime(list.ThisUpdate))
	fmt.Fprintf(out, "  Next update: %s\n", formatTime(list.NextUpdate))
	fmt.Fprintf(out, "  Revoked:     %d\n", len(list.RevokedCertificateEntries))
	for _, entry := range list.RevokedCertificateEntries {
		fmt.Fprintf(out, "    %s at %s\n", formatSerial(entry.SerialNumber), formatTime(entry.RevocationTime))
	}
	return nil
}

func runCRLVerify(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	cert, err := x509util.LoadCertificate(crlVerifyCert)
	if err != nil {
		return err
	}
	issuer, err := x509util.LoadCertificate(crlVerifyIssuer)
	if err != nil {
		return err
	}
	at, err := parseCheckTime(crlVerifyAt)
	if err != nil {
		return err
	}
	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	result, err := pol.CRLVerifier().VerifyDetailed(der, cert, issuer, at)
	details := audit.EvidenceDetails{
		Path:      args[0],
		Subject:   cert.Subject.String(),
		Serial:    formatSerial(cert.SerialNumber),
		CheckTime: formatTime(at),
		DER:       der,
	}
	if result != nil {
		details.Verdict = result.Verdict.String()
	}
	if logErr := audit.LogCRLVerify(details, err); logErr != nil {
		return logErr
	}
	if err != nil {
		return fmt.Errorf("CRL verification failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate: %s (%s)\n", cert.Subject, formatSerial(cert.SerialNumber))
	fmt.Fprintf(out, "Check time:  %s\n", formatTime(at))
	fmt.Fprintf(out, "This update: %s\n", formatTime(result.ThisUpdate))
	fmt.Fprintf(out, "Next update: %s\n", formatTime(result.NextUpdate))
	if result.Verdict == crl.VerdictRevoked {
		fmt.Fprintf(out, "Revoked at:  %s\n", formatTime(result.RevocationTime))
	}
	fmt.Fprintf(out, "Verdict:     %s\n", result.Verdict)

	if !result.Verified {
		return fmt.Errorf("certificate not proven unrevoked: %s", result.Verdict)
	}
	return nil
}
