package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
version: 1
global:
  poll_interval: 30s
  checkpoint:
    backend: sqlite
    path: /tmp/cp.db
endpoints:
  - ${RPC_URL}
contracts:
  - address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
    alias: TreasurySafe
notifier:
  type: telegram
  bot_token: ${TG_BOT_API_KEY}
  chat_id: ${TG_CHANNEL}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadInterpolatesEnvAndValidates(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)

	t.Setenv("RPC_URL", "http://example-rpc")
	t.Setenv("TG_BOT_API_KEY", "123:abc")
	t.Setenv("TG_CHANNEL", "@alerts")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("expected load to succeed: %v", err)
	}

	if got := cfg.Endpoints[0]; got != "http://example-rpc" {
		t.Fatalf("endpoint not interpolated, got %q", got)
	}
	if cfg.Notifier.BotToken != "123:abc" {
		t.Fatalf("bot token not interpolated")
	}
	if cfg.Notifier.ChatID != "@alerts" {
		t.Fatalf("chat id not interpolated, got %q", cfg.Notifier.ChatID)
	}
	if cfg.Global.MaxDrift != DefaultMaxDrift || cfg.Global.HeightTolerance != DefaultHeightTolerance {
		t.Fatalf("defaults not applied: %+v", cfg.Global)
	}
	if cfg.Global.ExplorerURL != DefaultExplorerURL {
		t.Fatalf("explorer default missing: %q", cfg.Global.ExplorerURL)
	}

	tm, err := cfg.Global.Timings()
	if err != nil {
		t.Fatalf("timings: %v", err)
	}
	if tm.PollInterval != 30*time.Second || tm.ProbeTimeout != DefaultProbeTimeout || tm.SendDelay != DefaultSendDelay {
		t.Fatalf("unexpected timings: %+v", tm)
	}
}

func TestLoadKeepsEnvValuesVerbatim(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML+`
  template: "${TG_TEMPLATE}"
`)
	t.Setenv("RPC_URL", "https://rpc.example/v3/k?x=1#frag")
	t.Setenv("TG_BOT_API_KEY", "a #b")
	t.Setenv("TG_CHANNEL", "@channel")
	t.Setenv("TG_TEMPLATE", `say "hi": {{.TxHash}}`)

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notifier.ChatID != "@channel" {
		t.Fatalf("chat_id = %q", cfg.Notifier.ChatID)
	}
	if cfg.Notifier.BotToken != "a #b" {
		t.Fatalf("bot_token = %q", cfg.Notifier.BotToken)
	}
	if cfg.Endpoints[0] != "https://rpc.example/v3/k?x=1#frag" {
		t.Fatalf("endpoint = %q", cfg.Endpoints[0])
	}
	if cfg.Notifier.Template != `say "hi": {{.TxHash}}` {
		t.Fatalf("template = %q", cfg.Notifier.Template)
	}
}

func TestLoadEnvIntoNumericField(t *testing.T) {
	t.Setenv("DRIFT", "500")
	cfg, err := Load(writeConfig(t, `
version: 1
global:
  max_drift: ${DRIFT}
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Global.MaxDrift != 500 {
		t.Fatalf("max_drift = %d", cfg.Global.MaxDrift)
	}
}

func TestLoadIgnoresEnvInComments(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
# set ${NOT_SET_ANYWHERE} before running
version: 1
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Version != 1 {
		t.Fatalf("version = %d", cfg.Version)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	env := "RPC_URL=http://dotenv-rpc\nTG_BOT_API_KEY=1:x\nTG_CHANNEL=42\n"
	if err := os.WriteFile(filepath.Join(filepath.Dir(cfgPath), ".env"), []byte(env), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("RPC_URL")
		os.Unsetenv("TG_BOT_API_KEY")
		os.Unsetenv("TG_CHANNEL")
	})

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Endpoints[0] != "http://dotenv-rpc" {
		t.Fatalf(".env not applied: %q", cfg.Endpoints[0])
	}
}

func TestLoadFailsOnMissingEnv(t *testing.T) {
	cfgPath := writeConfig(t, baseYAML)
	_, err := Load(cfgPath)
	if err == nil {
		t.Fatalf("expected missing env to fail")
	}
	if !strings.Contains(err.Error(), "RPC_URL") || !strings.Contains(err.Error(), "TG_CHANNEL") {
		t.Fatalf("missing names not reported: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"no version": `
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`,
		"no endpoints": `
version: 1
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`,
		"no contracts": `
version: 1
endpoints: ["http://a"]
notifier: {type: webhook, url: "http://hook"}
`,
		"bad duration": `
version: 1
global: {poll_interval: soon}
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`,
		"bad backend": `
version: 1
global: {checkpoint: {backend: redis}}
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`,
		"telegram without chat": `
version: 1
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {bot_token: "t"}
`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestWebhookMethodDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
version: 1
endpoints: ["http://a"]
contracts: [{address: "0x1"}]
notifier: {type: webhook, url: "http://hook"}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notifier.Method != "POST" {
		t.Fatalf("method default missing: %q", cfg.Notifier.Method)
	}
}

func TestLoadWatchlistMergesFiles(t *testing.T) {
	dir := t.TempDir()
	rpcs := filepath.Join(dir, "rpcs.txt")
	contracts := filepath.Join(dir, "contracts.txt")
	if err := os.WriteFile(rpcs, []byte("https://rpc-1.example\n\n# comment\nftp://bad\nhttps://rpc-1.example\n  wss://rpc-2.example/ws  \n"), 0o644); err != nil {
		t.Fatalf("write rpcs: %v", err)
	}
	if err := os.WriteFile(contracts, []byte("0xABC;TreasurySafe\r\n0xdef\n\n"), 0o644); err != nil {
		t.Fatalf("write contracts: %v", err)
	}

	cfg := &Config{
		Endpoints:     []string{"http://inline"},
		EndpointsFile: rpcs,
		Contracts:     []Contract{{Address: "0x111", Alias: "Inline"}},
		ContractsFile: contracts,
	}
	wl, err := cfg.LoadWatchlist()
	if err != nil {
		t.Fatalf("load watchlist: %v", err)
	}

	wantEndpoints := []string{"http://inline", "https://rpc-1.example", "wss://rpc-2.example/ws"}
	if strings.Join(wl.Endpoints, ",") != strings.Join(wantEndpoints, ",") {
		t.Fatalf("endpoints = %v, want %v", wl.Endpoints, wantEndpoints)
	}
	if len(wl.Skipped) != 1 || !strings.Contains(wl.Skipped[0], "ftp://bad") {
		t.Fatalf("expected ftp endpoint to be skipped: %v", wl.Skipped)
	}

	if len(wl.Contracts) != 3 {
		t.Fatalf("expected 3 contracts, got %d", len(wl.Contracts))
	}
	if wl.Contracts[1] != (Contract{Address: "0xABC", Alias: "TreasurySafe"}) {
		t.Fatalf("unexpected contract: %+v", wl.Contracts[1])
	}
	if wl.Contracts[2] != (Contract{Address: "0xdef"}) {
		t.Fatalf("unexpected contract: %+v", wl.Contracts[2])
	}
}

func TestLoadWatchlistMissingFile(t *testing.T) {
	cfg := &Config{EndpointsFile: filepath.Join(t.TempDir(), "missing.txt")}
	if _, err := cfg.LoadWatchlist(); err == nil {
		t.Fatalf("expected missing endpoints file to fail")
	}
}

func TestLoadWatchlistResolvesAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rpcs.txt"), []byte("https://rpc-1.example\n"), 0o644); err != nil {
		t.Fatalf("write rpcs: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "contracts.txt"), []byte("0xABC;TreasurySafe\n"), 0o644); err != nil {
		t.Fatalf("write contracts: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	body := `
version: 1
endpoints_file: rpcs.txt
contracts_file: contracts.txt
notifier: {type: webhook, url: "http://hook"}
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wl, err := cfg.LoadWatchlist()
	if err != nil {
		t.Fatalf("load watchlist from another working directory: %v", err)
	}
	if len(wl.Endpoints) != 1 || wl.Endpoints[0] != "https://rpc-1.example" {
		t.Fatalf("endpoints = %v", wl.Endpoints)
	}
	if len(wl.Contracts) != 1 || wl.Contracts[0].Alias != "TreasurySafe" {
		t.Fatalf("contracts = %v", wl.Contracts)
	}
}

func TestLoadWatchlistRedactsSkippedEndpoints(t *testing.T) {
	cfg := &Config{Endpoints: []string{"ftp://rpc.example/v3/SECRETKEY"}}
	wl, err := cfg.LoadWatchlist()
	if err != nil {
		t.Fatalf("load watchlist: %v", err)
	}
	if len(wl.Skipped) != 1 || strings.Contains(wl.Skipped[0], "SECRETKEY") {
		t.Fatalf("skipped reason leaks the endpoint path: %v", wl.Skipped)
	}
}
