// Package deploy runs installation and maintenance commands on timscan
// hosts, either this machine or a remote one over SSH.
package deploy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// HostConfig identifies a deployment target and how to reach it.
type HostConfig struct {
	// Addr is the machine to operate on. Empty, "localhost" and
	// "127.0.0.1" all mean this machine, with no ssh involved.
	Addr string

	// User is the ssh login. Ignored when Addr already carries user@.
	User string

	// KeyFile is an ssh identity file passed with -i.
	KeyFile string

	// Agent is an IdentityAgent socket path from ssh config.
	Agent string

	// DryRun echoes commands instead of running them.
	DryRun bool
}

// Host executes commands and moves files on one deployment target. Remote
// targets are reached with the system ssh and scp binaries so that agent
// forwarding and per-host settings keep working.
type Host struct {
	cfg HostConfig

	// Trace, when set, receives every command line before it runs.
	Trace func(format string, args ...interface{})

	shell Shell
}

// NewHost returns a Host backed by the real shell.
func NewHost(cfg HostConfig) *Host {
	return &Host{cfg: cfg, shell: ExecShell{}}
}

// SetShell swaps the command backend. Tests install a FakeShell here.
func (h *Host) SetShell(s Shell) {
	if s != nil {
		h.shell = s
	}
}

// Addr returns the configured target address.
func (h *Host) Addr() string { return h.cfg.Addr }

// DryRun reports whether commands are echoed instead of run.
func (h *Host) DryRun() bool { return h.cfg.DryRun }

// Local reports whether commands run on this machine directly.
func (h *Host) Local() bool {
	switch h.cfg.Addr {
	case "", "localhost", "127.0.0.1":
		return true
	}
	return false
}

func (h *Host) tracef(format string, args ...interface{}) {
	if h.Trace != nil {
		h.Trace(format, args...)
	}
}

// Run executes line on the target and returns its combined output.
func (h *Host) Run(line string) (string, error) {
	if h.cfg.DryRun {
		return "(dry-run) " + line, nil
	}
	h.tracef("run [%s]: %s", h.where(), line)

	out, err := h.exec(line)
	if err != nil {
		h.tracef("run failed: %v: %s", err, out)
	}
	return out, err
}

// Sudo executes line under sudo on the target.
func (h *Host) Sudo(line string) (string, error) {
	if h.cfg.DryRun {
		return "(dry-run) sudo " + line, nil
	}
	h.tracef("sudo [%s]: %s", h.where(), line)

	out, err := h.exec("sudo " + line)
	if err != nil {
		h.tracef("sudo failed: %v: %s", err, out)
	}
	return out, err
}

func (h *Host) exec(line string) (string, error) {
	var out []byte
	var err error
	if h.Local() {
		out, err = h.shell.Script(line).Run()
	} else {
		out, err = h.shell.Command("ssh", h.sshArgv(line)...).Run()
	}
	return string(out), err
}

// Push copies a local file onto the target. Remote pushes stage through
// /tmp and finish with a move, under sudo when the destination is a
// system path.
func (h *Host) Push(src, dst string) error {
	if h.cfg.DryRun {
		return nil
	}
	h.tracef("push [%s]: %s -> %s", h.where(), src, dst)

	if h.Local() {
		return h.pushLocal(src, dst)
	}

	staged := fmt.Sprintf("/tmp/timscan-push-%d", time.Now().Unix())
	argv := append(h.transportArgv(), src, h.login()+":"+staged)
	if out, err := h.shell.Command("scp", argv...).Run(); err != nil {
		return fmt.Errorf("scp to %s: %w: %s", h.cfg.Addr, err, out)
	}

	mv := fmt.Sprintf("mv %s %s", staged, dst)
	if systemPath(dst) {
		_, err := h.Sudo(mv)
		return err
	}
	_, err := h.Run(mv)
	return err
}

func (h *Host) pushLocal(src, dst string) error {
	if systemPath(dst) {
		_, err := h.shell.Command("sudo", "cp", src, dst).Run()
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Pull copies a file off the target. It runs without sudo; callers stage
// protected files into /tmp world-readable first.
func (h *Host) Pull(src, dst string) error {
	if h.cfg.DryRun {
		return nil
	}
	h.tracef("pull [%s]: %s <- %s", h.where(), dst, src)

	if h.Local() {
		return h.pushLocal(src, dst)
	}

	argv := append(h.transportArgv(), h.login()+":"+src, dst)
	if out, err := h.shell.Command("scp", argv...).Run(); err != nil {
		return fmt.Errorf("scp from %s: %w: %s", h.cfg.Addr, err, out)
	}
	return nil
}

// Put writes contents to a file on the target.
func (h *Host) Put(path, contents string) error {
	if h.cfg.DryRun {
		return nil
	}

	if h.Local() {
		return os.WriteFile(path, []byte(contents), 0644)
	}

	cmd := h.shell.Command("ssh", h.sshArgv("cat > "+path)...)
	cmd.SetStdin([]byte(contents))
	if out, err := cmd.Run(); err != nil {
		return fmt.Errorf("write %s on %s: %w: %s", path, h.cfg.Addr, err, out)
	}
	return nil
}

func (h *Host) where() string {
	if h.Local() {
		return "local"
	}
	return h.cfg.Addr
}

func (h *Host) sshArgv(line string) []string {
	return append(h.transportArgv(), h.login(), line)
}

// transportArgv holds the flags shared by ssh and scp.
//
// WARNING: host key checking is disabled, which leaves connections open
// to man-in-the-middle attacks. Acceptable only for automation on a
// trusted network; otherwise remove these options and keep known_hosts.
func (h *Host) transportArgv() []string {
	var argv []string
	if h.cfg.KeyFile != "" {
		argv = append(argv, "-i", h.cfg.KeyFile)
	}
	if h.cfg.Agent != "" {
		argv = append(argv, "-o", "IdentityAgent="+h.cfg.Agent)
	}
	return append(argv,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
	)
}

// login renders the ssh destination, folding in the configured user
// unless the address already carries one.
func (h *Host) login() string {
	if h.cfg.User != "" && !strings.Contains(h.cfg.Addr, "@") {
		return h.cfg.User + "@" + h.cfg.Addr
	}
	return h.cfg.Addr
}

// systemPath reports whether dst lives where writes need sudo. The
// /var/folders prefix is the macOS per-user temp area, not system state.
func systemPath(dst string) bool {
	if strings.HasPrefix(dst, "/var/folders") {
		return false
	}
	return strings.HasPrefix(dst, "/usr") ||
		strings.HasPrefix(dst, "/etc") ||
		strings.HasPrefix(dst, "/var")
}
