package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"assetpool/crypto"
	"assetpool/services/poold/server"
)

func newTokenCommand() *cobra.Command {
	var (
		subject   string
		scopes    []string
		secretEnv string
		issuer    string
		audience  string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the poold API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, err := crypto.DecodeAddress(strings.TrimSpace(subject))
			if err != nil {
				return fmt.Errorf("subject: %w", err)
			}
			token, err := server.IssueToken(os.Getenv(secretEnv), server.TokenRequest{
				Subject:  addr,
				Scopes:   scopes,
				Issuer:   issuer,
				Audience: audience,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "account address the token acts for")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{server.ScopeTrade}, "granted scopes")
	cmd.Flags().StringVar(&secretEnv, "secret-env", "POOLD_HMAC_SECRET", "environment variable holding the signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "poold", "token issuer")
	cmd.Flags().StringVar(&audience, "audience", "", "token audience")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
