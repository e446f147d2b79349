package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/devblac/multisig-watch/internal/logging"
)

// Watchlist is the per-cycle view of endpoints and contracts.
type Watchlist struct {
	Endpoints []string
	Contracts []Contract
	// Skipped holds human-readable reasons for rejected entries.
	Skipped []string
}

// LoadWatchlist merges inline entries with the list files. The files are re-read on
// every call so edits take effect on the next cycle. Malformed entries are skipped and
// reported in Skipped; only an unreadable file is an error.
func (c *Config) LoadWatchlist() (Watchlist, error) {
	var wl Watchlist

	rawEndpoints := append([]string{}, c.Endpoints...)
	if c.EndpointsFile != "" {
		lines, err := readLines(c.resolve(c.EndpointsFile))
		if err != nil {
			return Watchlist{}, fmt.Errorf("endpoints_file: %w", err)
		}
		rawEndpoints = append(rawEndpoints, lines...)
	}
	seen := map[string]struct{}{}
	for _, e := range rawEndpoints {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if err := validEndpoint(e); err != nil {
			wl.Skipped = append(wl.Skipped, fmt.Sprintf("endpoint %s: %v", logging.RedactURL(e), err))
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		wl.Endpoints = append(wl.Endpoints, e)
	}

	wl.Contracts = append(wl.Contracts, c.Contracts...)
	if c.ContractsFile != "" {
		f, err := os.Open(c.resolve(c.ContractsFile))
		if err != nil {
			return Watchlist{}, fmt.Errorf("contracts_file: %w", err)
		}
		defer f.Close()
		contracts, err := ParseContracts(f)
		if err != nil {
			return Watchlist{}, fmt.Errorf("contracts_file: %w", err)
		}
		wl.Contracts = append(wl.Contracts, contracts...)
	}
	return wl, nil
}

// ParseContracts reads "address;alias" lines. Blank lines and # comments are ignored;
// the alias is optional. Address syntax is checked by the caller.
func ParseContracts(r io.Reader) ([]Contract, error) {
	var out []Contract
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addr, alias, _ := strings.Cut(line, ";")
		out = append(out, Contract{
			Address: strings.TrimSpace(addr),
			Alias:   strings.TrimSpace(alias),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Config) resolve(path string) string {
	if c.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.dir, path)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func validEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("malformed URL")
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
