package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/remiblancher/sigevidence/pkg/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Verification policy operations",
	Long: `Show and check verification policies.

A policy file configures the OCSP and CRL verifiers, the PDF/A conformance
level and the digest algorithm used when signing:

  ocsp:
    missing_next_update: grace   # accept, reject or grace
    grace: 1d
    clock_skew: 5m
  crl:
    clock_skew: 5m
  conformance: pdfa-2
  digest_algorithm: sha256`,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy",
	Long: `Print the policy loaded from --policy, or the built-in policy, as YAML.

Examples:
  sigevidence policy show
  sigevidence policy show --policy strict.yaml`,
	Args: cobra.NoArgs,
	RunE: runPolicyShow,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <policy-file>",
	Short: "Validate a policy file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPolicyCheck,
}

func init() {
	policyCmd.AddCommand(policyShowCmd)
	policyCmd.AddCommand(policyCheckCmd)
}

func runPolicyShow(cmd *cobra.Command, args []string) error {
	pol, err := loadPolicy()
	if err != nil {
		return err
	}
	data, err := pol.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	if _, err := policy.Load(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Policy %s is valid\n", args[0])
	return nil
}
