package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://127.0.0.1:7080"

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var endpoint string
	root := &cobra.Command{
		Use:           "poolctl",
		Short:         "Operator tooling for the poold asset pool daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&endpoint, "endpoint", envOr("POOLCTL_ENDPOINT", defaultEndpoint), "poold base URL")

	client := func() *apiClient { return newAPIClient(endpoint, os.Getenv("POOLCTL_TOKEN")) }
	root.AddCommand(
		newKeygenCommand(),
		newTokenCommand(),
		newPoolCommand(client),
		newQuoteCommand(client),
		newBalancesCommand(client),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
