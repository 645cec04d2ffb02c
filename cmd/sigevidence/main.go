// Command sigevidence builds, inspects and validates CMS SignerInfos for
// embedded document signatures and the OCSP/CRL evidence they archive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/audit"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags
var (
	auditLogPath string
	policyPath   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		_ = audit.Close()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sigevidence",
	Short: "CMS SignerInfo and revocation evidence toolkit",
	Long: `sigevidence builds and validates the CMS SignerInfo of embedded document
signatures (PDF /Contents) together with the OCSP responses and CRLs archived
in its adbe-revocationInfoArchival attribute.

Supported algorithms:
  Classical: RSA, RSASSA-PSS, ECDSA (P-256, P-384, P-521), Ed25519, Ed448
  PQC:       ML-DSA-44, ML-DSA-65, ML-DSA-87 (FIPS 204)

Examples:
  # Sign a byte range, archiving an OCSP response
  sigevidence signerinfo sign --content range.bin --cert signer.crt --key signer.key \
      --ocsp signer.ocsp --out signerinfo.der

  # Validate a SignerInfo and its evidence at signing time
  sigevidence signerinfo verify signerinfo.der --cert signer.crt --issuer ca.crt \
      --at 2024-01-15T10:00:00Z

  # Check an OCSP response on its own
  sigevidence ocsp verify signer.ocsp --cert signer.crt --issuer ca.crt`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Check for audit log path from environment if not set via flag
		if auditLogPath == "" {
			auditLogPath = os.Getenv("SIGEVIDENCE_AUDIT_LOG")
		}

		if auditLogPath != "" {
			if err := audit.InitFile(auditLogPath); err != nil {
				return fmt.Errorf("failed to initialize audit log: %w", err)
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return audit.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&auditLogPath, "audit-log", "",
		"Path to audit log file (or set SIGEVIDENCE_AUDIT_LOG env var)")
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "",
		"Verification policy file (YAML, default: built-in policy)")

	rootCmd.AddCommand(signerInfoCmd) // sigevidence signerinfo ...
	rootCmd.AddCommand(ocspCmd)       // sigevidence ocsp ...
	rootCmd.AddCommand(crlCmd)        // sigevidence crl ...
	rootCmd.AddCommand(policyCmd)     // sigevidence policy ...
	rootCmd.AddCommand(auditCmd)      // sigevidence audit ...
}
