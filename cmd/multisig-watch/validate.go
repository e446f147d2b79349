package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/devblac/multisig-watch/internal/config"
	"github.com/devblac/multisig-watch/internal/logging"
	"github.com/devblac/multisig-watch/internal/source/evm"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

const defaultHTTPTimeout = 8 * time.Second

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and lists, then probe RPC endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, notifier %s)\n", cfg.Version, cfg.Notifier.Type)
		timings, err := cfg.Global.Timings()
		if err != nil {
			return err
		}

		wl, err := cfg.LoadWatchlist()
		if err != nil {
			return fmt.Errorf("watchlist: %w", err)
		}
		for _, reason := range wl.Skipped {
			fmt.Fprintf(out, "- skipped %s\n", reason)
		}

		valid := 0
		for _, c := range wl.Contracts {
			wc, err := evm.ParseContract(c.Address, c.Alias)
			if err != nil {
				fmt.Fprintf(out, "- contract %q: ERROR %v\n", c.Address, err)
				continue
			}
			valid++
			fmt.Fprintf(out, "- contract %s (%s) OK\n", wc.Address.Hex(), wc.Label())
		}
		if valid == 0 {
			return fmt.Errorf("validate: no valid contracts")
		}

		client := resty.New().
			SetTimeout(defaultHTTPTimeout).
			SetHeader("Content-Type", "application/json")
		for _, ep := range wl.Endpoints {
			if !isHTTP(ep) {
				continue
			}
			chainID, err := pingEVM(cmd.Context(), client, ep)
			if err != nil {
				fmt.Fprintf(out, "- endpoint %s: eth_chainId ERROR %v\n", logging.RedactURL(ep), err)
				continue
			}
			fmt.Fprintf(out, "- endpoint %s: chainId %s\n", logging.RedactURL(ep), chainID)
		}

		pool := evm.NewPool(evm.DialRPC)
		defer pool.Close()
		resolver := newResolver(pool, cfg, timings, nil, logging.Discard())
		set, probes, err := resolver.Resolve(cmd.Context(), wl.Endpoints)
		for _, p := range probes {
			if !p.OK() {
				fmt.Fprintf(out, "- endpoint %s: height ERROR %v\n", logging.RedactURL(p.URL), p.Err)
				continue
			}
			fmt.Fprintf(out, "- endpoint %s: height %d\n", logging.RedactURL(p.URL), p.Height)
		}
		if err != nil {
			return fmt.Errorf("validate: %w", err)
		}

		fmt.Fprintf(out, "validate: success (trusted height %d, %d/%d endpoints agree)\n", set.Height, len(set.Members), len(probes))
		return nil
	},
}

func pingEVM(ctx context.Context, client *resty.Client, endpoint string) (string, error) {
	var rpcResp struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	resp, err := client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"method":  "eth_chainId",
			"params":  []any{},
		}).
		SetResult(&rpcResp).
		SetError(&rpcResp).
		Post(endpoint)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("call eth_chainId: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("rpc status %d", resp.StatusCode())
	}
	if rpcResp.Error != nil {
		return "", fmt.Errorf("rpc error: %s", rpcResp.Error.Message)
	}
	if rpcResp.Result == "" {
		return "", fmt.Errorf("empty chainId result")
	}
	return rpcResp.Result, nil
}

func isHTTP(endpoint string) bool {
	u, err := url.Parse(endpoint)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
