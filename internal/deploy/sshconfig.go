package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SSHHostSettings holds the ssh_config(5) keywords the deploy tool
// honours for a matched Host block.
type SSHHostSettings struct {
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ResolveTarget folds ~/.ssh/config settings for target into a ready
// HostConfig. Explicit user and keyFile values win over the config file,
// and target may carry a user@ prefix, which wins over both.
func ResolveTarget(target, user, keyFile string) (HostConfig, error) {
	addr := target
	if at := strings.Index(target, "@"); at >= 0 {
		user = target[:at]
		addr = target[at+1:]
	}

	cfg := HostConfig{Addr: addr, User: user, KeyFile: keyFile}

	settings, found, err := LookupSSHHost(addr)
	if err != nil {
		return HostConfig{}, fmt.Errorf("ssh config: %w", err)
	}
	if !found {
		return cfg, nil
	}

	if settings.HostName != "" {
		cfg.Addr = settings.HostName
	}
	if cfg.User == "" {
		cfg.User = settings.User
	}
	if cfg.KeyFile == "" {
		cfg.KeyFile = settings.IdentityFile
	}
	cfg.Agent = settings.IdentityAgent
	return cfg, nil
}

// LookupSSHHost finds the first Host block matching alias in the user's
// ssh config. A missing config file or no matching block reports
// found=false with no error.
func LookupSSHHost(alias string) (*SSHHostSettings, bool, error) {
	return LookupSSHHostIn(alias, "")
}

// LookupSSHHostIn is LookupSSHHost against an explicit config path.
func LookupSSHHostIn(alias, configPath string) (*SSHHostSettings, bool, error) {
	// HOME is consulted before os.UserHomeDir so tests can point at a
	// temporary directory.
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	if configPath == "" {
		if home == "" {
			return nil, false, fmt.Errorf("cannot determine home directory")
		}
		configPath = filepath.Join(home, ".ssh", "config")
	}

	f, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open %s: %w", configPath, err)
	}
	defer f.Close()

	return readSSHConfig(alias, f, home)
}

// readSSHConfig scans r for the first Host block whose pattern list
// matches alias and collects the keywords the tool uses. Scanning stops
// at the next Host line once a block has matched.
func readSSHConfig(alias string, r io.Reader, home string) (*SSHHostSettings, bool, error) {
	settings := &SSHHostSettings{}
	inBlock := false
	matched := false

	apply := map[string]func(value string){
		"hostname":      func(v string) { settings.HostName = v },
		"user":          func(v string) { settings.User = v },
		"port":          func(v string) { settings.Port = v },
		"identityfile":  func(v string) { settings.IdentityFile = expandTilde(v, home) },
		"identityagent": func(v string) { settings.IdentityAgent = expandTilde(strings.Trim(v, `"`), home) },
	}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(strings.TrimSpace(sc.Text()))
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		keyword := strings.ToLower(fields[0])
		if keyword == "host" {
			if inBlock {
				break
			}
			inBlock = blockMatches(alias, fields[1:])
			matched = matched || inBlock
			continue
		}

		if !inBlock {
			continue
		}
		if set, ok := apply[keyword]; ok {
			set(strings.Join(fields[1:], " "))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("read ssh config: %w", err)
	}

	if !matched {
		return nil, false, nil
	}
	return settings, true, nil
}

// blockMatches reports whether any pattern on a Host line covers alias.
func blockMatches(alias string, patterns []string) bool {
	for _, p := range patterns {
		if MatchHostPattern(alias, p) {
			return true
		}
	}
	return false
}

// MatchHostPattern matches alias against one ssh_config Host pattern,
// supporting the * and ? wildcards from ssh_config(5).
func MatchHostPattern(alias, pattern string) bool {
	if alias == pattern {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return false
	}
	ok, err := path.Match(pattern, alias)
	return err == nil && ok
}

// expandTilde replaces a leading ~/ with the home directory.
func expandTilde(value, home string) string {
	if home != "" && strings.HasPrefix(value, "~/") {
		return filepath.Join(home, value[2:])
	}
	return value
}
