package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/audit"
	"github.com/remiblancher/sigevidence/pkg/ocsp"
	"github.com/remiblancher/sigevidence/pkg/x509util"
)

var ocspCmd = &cobra.Command{
	Use:   "ocsp",
	Short: "OCSP response operations (RFC 6960)",
	Long: `Inspect and verify archived OCSP responses.

This command provides:
  - inspect: Display the content of a response
  - verify:  Check a response against a certificate at a point in time

Both full OCSPResponse and bare BasicOCSPResponse encodings are accepted.`,
}

var ocspInspectCmd = &cobra.Command{
	Use:   "inspect <response-file>",
	Short: "Display an OCSP response",
	Args:  cobra.ExactArgs(1),
	RunE:  runOCSPInspect,
}

var ocspVerifyCmd = &cobra.Command{
	Use:   "verify <response-file>",
	Short: "Verify an OCSP response",
	Long: `Verify the responder, the signature, the freshness and the status of an
OCSP response for a certificate.

Examples:
  sigevidence ocsp verify signer.ocsp --cert signer.crt --issuer ca.crt
  sigevidence ocsp verify signer.ocsp --cert signer.crt --issuer ca.crt --at 2024-01-15T10:00:00Z`,
	Args: cobra.ExactArgs(1),
	RunE: runOCSPVerify,
}

var (
	ocspVerifyCert   string
	ocspVerifyIssuer string
	ocspVerifyAt     string
)

func init() {
	ocspVerifyCmd.Flags().StringVar(&ocspVerifyCert, "cert", "", "Certificate to check (required)")
	ocspVerifyCmd.Flags().StringVar(&ocspVerifyIssuer, "issuer", "", "Issuer of the certificate (required)")
	ocspVerifyCmd.Flags().StringVar(&ocspVerifyAt, "at", "", "Time the response must cover (RFC 3339, default: now)")
	_ = ocspVerifyCmd.MarkFlagRequired("cert")
	_ = ocspVerifyCmd.MarkFlagRequired("issuer")

	ocspCmd.AddCommand(ocspInspectCmd)
	ocspCmd.AddCommand(ocspVerifyCmd)
}

func runOCSPInspect(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "OCSP Response (%d bytes)\n", len(der))

	basic, err := ocsp.ParseBasicResponse(der)
	if errors.Is(err, ocsp.ErrUnsuccessfulResponse) {
		resp, err := ocsp.ParseResponse(der)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Status: %s\n", ocsp.ResponseStatus(resp.Status))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  Status: %s\n", ocsp.StatusSuccessful)
	return printBasicResponse(out, basic)
}

func printBasicResponse(out io.Writer, basic *ocsp.BasicOCSPResponse) error {
	tbs := basic.TBSResponseData
	fmt.Fprintf(out, "  Produced at:         %s\n", formatTime(tbs.ProducedAt))
	fmt.Fprintf(out, "  Signature algorithm: %s\n", basic.SignatureAlgorithm.Algorithm)
	if nonce := basic.Nonce(); nonce != nil {
		fmt.Fprintf(out, "  Nonce:               %X\n", nonce)
	}

	certs, err := basic.Certificates()
	if err != nil {
		return err
	}
	for _, c := range certs {
		fmt.Fprintf(out, "  Certificate:         %s (OCSP signing: %v)\n", c.Subject, x509util.HasOCSPSigning(c))
	}

	for i := range tbs.Responses {
		single := &tbs.Responses[i]
		status, revoked, err := single.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Response [%d]\n", i)
		fmt.Fprintf(out, "    Serial:      %s\n", formatSerial(single.CertID.SerialNumber))
		fmt.Fprintf(out, "    Status:      %s\n", status)
		if revoked != nil {
			fmt.Fprintf(out, "    Revoked at:  %s (%s)\n", formatTime(revoked.RevocationTime),
				ocsp.RevocationReason(revoked.RevocationReason))
		}
		fmt.Fprintf(out, "    This update: %s\n", formatTime(single.ThisUpdate))
		fmt.Fprintf(out, "    Next update: %s\n", formatTime(single.NextUpdate))
	}
	return nil
}

func runOCSPVerify(cmd *cobra.Command, args []string) error {
	der, err := readDER(args[0])
	if err != nil {
		return err
	}
	cert, err := x509util.LoadCertificate(ocspVerifyCert)
	if err != nil {
		return err
	}
	issuer, err := x509util.LoadCertificate(ocspVerifyIssuer)
	if err != nil {
		return err
	}
	at, err := parseCheckTime(ocspVerifyAt)
	if err != nil {
		return err
	}
	pol, err := loadPolicy()
	if err != nil {
		return err
	}

	result, err := pol.OCSPVerifier().VerifyDetailed(der, cert, issuer, at)
	details := audit.EvidenceDetails{
		Path:      args[0],
		Subject:   cert.Subject.String(),
		Serial:    formatSerial(cert.SerialNumber),
		CheckTime: formatTime(at),
		DER:       der,
	}
	if result != nil {
		details.Verdict = result.Verdict.String()
		details.Responder = result.Responder.Subject.String()
		details.Delegated = result.Delegated
	}
	if logErr := audit.LogOCSPVerify(details, err); logErr != nil {
		return logErr
	}
	if err != nil {
		return fmt.Errorf("OCSP verification failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate: %s (%s)\n", cert.Subject, formatSerial(cert.SerialNumber))
	fmt.Fprintf(out, "Responder:   %s", result.Responder.Subject)
	if result.Delegated {
		fmt.Fprint(out, " (delegated)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Check time:  %s\n", formatTime(at))
	fmt.Fprintf(out, "This update: %s\n", formatTime(result.ThisUpdate))
	fmt.Fprintf(out, "Next update: %s\n", formatTime(result.NextUpdate))
	if result.Verdict == ocsp.VerdictRevoked {
		fmt.Fprintf(out, "Revoked at:  %s (%s)\n", formatTime(result.RevocationTime), result.RevocationReason)
	}
	fmt.Fprintf(out, "Verdict:     %s\n", result.Verdict)

	if !result.Verified {
		return fmt.Errorf("certificate not proven good: %s", result.Verdict)
	}
	return nil
}
