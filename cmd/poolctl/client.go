package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// get fetches path and returns the response body re-indented for display.
func (c *apiClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return nil, fmt.Errorf("%s", resp.Status)
	}
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return json.MarshalIndent(decoded, "", "  ")
}

func printJSON(cmd *cobra.Command, body []byte) {
	fmt.Fprintln(cmd.OutOrStdout(), string(body))
}

func newPoolCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Show pool reserves, fee and share supply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := client().get(cmd.Context(), "/v1/pool/", nil)
			if err != nil {
				return err
			}
			printJSON(cmd, body)
			return nil
		},
	}
}

func newQuoteCommand(client func() *apiClient) *cobra.Command {
	var (
		direction string
		slippage  uint64
	)
	cmd := &cobra.Command{
		Use:   "quote <amount>",
		Short: "Preview a swap against the current reserves and oracle price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			query.Set("amount", strings.TrimSpace(args[0]))
			query.Set("direction", direction)
			if cmd.Flags().Changed("max-slippage-bps") {
				query.Set("max_slippage_bps", fmt.Sprint(slippage))
			}
			body, err := client().get(cmd.Context(), "/v1/pool/quote", query)
			if err != nil {
				return err
			}
			printJSON(cmd, body)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "a_to_b", "swap direction (a_to_b or b_to_a)")
	cmd.Flags().Uint64Var(&slippage, "max-slippage-bps", 0, "slippage tolerance in basis points")
	return cmd
}

func newBalancesCommand(client func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "balances <account>",
		Short: "List ledger balances of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := client().get(cmd.Context(), "/v1/accounts/"+url.PathEscape(strings.TrimSpace(args[0]))+"/balances", nil)
			if err != nil {
				return err
			}
			printJSON(cmd, body)
			return nil
		},
	}
}
