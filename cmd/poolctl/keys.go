package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"assetpool/crypto"
)

func newKeygenCommand() *cobra.Command {
	var (
		out     string
		passEnv string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an account key into an encrypted keystore",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			if err := crypto.SaveToKeystore(out, key, os.Getenv(passEnv), force); err != nil {
				return fmt.Errorf("write keystore: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.PubKey().Address().String())
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "keystore output path")
	cmd.Flags().StringVar(&passEnv, "pass-env", "POOLCTL_KEYSTORE_PASS", "environment variable holding the keystore passphrase")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")
	return cmd
}
