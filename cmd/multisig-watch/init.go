package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagInitDir   string
	flagInitForce bool
)

func init() {
	initCmd.Flags().StringVar(&flagInitDir, "dir", ".", "Directory to write the sample files into")
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite existing files")
}

const sampleConfig = `version: 1

global:
  poll_interval: 60s
  probe_timeout: 10s
  scan_timeout: 30s
  scan_delay: 1s
  send_delay: 1s
  height_tolerance: 5
  max_drift: 9999
  explorer_url: https://escan.live
  checkpoint:
    backend: file        # file | sqlite | leveldb
    path: latestBlock.txt

# Both files are re-read every cycle.
endpoints_file: rpcs.txt
contracts_file: contracts.txt

notifier:
  type: telegram
  bot_token: ${TG_BOT_API_KEY}
  chat_id: ${TG_CHANNEL}
`

const sampleEndpoints = `# One JSON-RPC endpoint per line (http, https, ws, wss).
https://rpc.example.org
`

const sampleContracts = `# address;alias
0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed;TreasurySafe
`

const sampleEnv = `TG_BOT_API_KEY=
TG_CHANNEL=
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a sample config, endpoint list and contract list",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if err := os.MkdirAll(flagInitDir, 0o755); err != nil {
			return err
		}
		files := []struct {
			name string
			body string
		}{
			{"config.yaml", sampleConfig},
			{"rpcs.txt", sampleEndpoints},
			{"contracts.txt", sampleContracts},
			{".env.example", sampleEnv},
		}
		for _, f := range files {
			path := filepath.Join(flagInitDir, f.name)
			written, err := writeSample(path, f.body, flagInitForce)
			if err != nil {
				return fmt.Errorf("init %s: %w", f.name, err)
			}
			if !written {
				fmt.Fprintf(out, "skip   %s (exists, use --force)\n", path)
				continue
			}
			fmt.Fprintf(out, "create %s\n", path)
		}
		return nil
	},
}

func writeSample(path, body string, force bool) (bool, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return false, err
	}
	return true, f.Close()
}
