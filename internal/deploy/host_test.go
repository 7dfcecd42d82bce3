package deploy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fakeHost(cfg HostConfig) (*Host, *FakeShell) {
	sh := NewFakeShell()
	h := NewHost(cfg)
	h.SetShell(sh)
	return h, sh
}

func TestHostLocal(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"", true},
		{"10.0.0.5", false},
		{"sensor-gw", false},
		{"pi@192.168.1.20", false},
	}

	for _, tt := range tests {
		h := NewHost(HostConfig{Addr: tt.addr})
		if got := h.Local(); got != tt.want {
			t.Errorf("Local() for addr %q = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestHostRunLocalUsesScript(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "localhost"})
	sh.Enqueue(&FakeCommand{Output: []byte("ok\n")})

	out, err := h.Run("systemctl is-active timscan")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != "ok\n" {
		t.Errorf("Expected 'ok', got %q", out)
	}

	last := sh.Last()
	if last == nil || !last.IsScript {
		t.Fatalf("Expected a script call, got %+v", last)
	}
	if last.Args[1] != "systemctl is-active timscan" {
		t.Errorf("Unexpected script line: %v", last.Args)
	}
}

func TestHostSudoPrefixes(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "localhost"})

	if _, err := h.Sudo("systemctl restart timscan"); err != nil {
		t.Fatalf("Sudo failed: %v", err)
	}
	if sh.Last().Args[1] != "sudo systemctl restart timscan" {
		t.Errorf("Expected sudo prefix, got %q", sh.Last().Args[1])
	}
}

func TestHostRunRemoteBuildsSSH(t *testing.T) {
	h, sh := fakeHost(HostConfig{
		Addr:    "sensor-gw",
		User:    "pi",
		KeyFile: "/keys/id_ed25519",
		Agent:   "/run/agent.sock",
	})

	if _, err := h.Run("uptime"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	last := sh.Last()
	if last.Name != "ssh" {
		t.Fatalf("Expected ssh call, got %q", last.Name)
	}

	joined := last.Line()
	for _, want := range []string{
		"-i /keys/id_ed25519",
		"IdentityAgent=/run/agent.sock",
		"StrictHostKeyChecking=no",
		"pi@sensor-gw",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("SSH args missing %q: %s", want, joined)
		}
	}
	if last.Args[len(last.Args)-1] != "uptime" {
		t.Errorf("Expected remote command last, got %v", last.Args)
	}
}

func TestHostUserInAddrWins(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "pi@sensor-gw", User: "other"})
	h.Run("true")

	joined := sh.Last().Line()
	if strings.Contains(joined, "other@") {
		t.Errorf("Configured user must not override user in addr: %s", joined)
	}
	if !strings.Contains(joined, "pi@sensor-gw") {
		t.Errorf("Expected pi@sensor-gw in args: %s", joined)
	}
}

func TestHostRunErrorPassesOutput(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "localhost"})
	sh.Enqueue(&FakeCommand{
		Output: []byte("permission denied"),
		Err:    errors.New("exit status 1"),
	})

	out, err := h.Run("rm /etc/timscan")
	if err == nil {
		t.Fatal("Expected error")
	}
	if out != "permission denied" {
		t.Errorf("Expected failure output to pass through, got %q", out)
	}
}

func TestHostDryRunEchoes(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi", DryRun: true})

	out, err := h.Run("systemctl stop timscan")
	if err != nil {
		t.Fatalf("Dry-run Run failed: %v", err)
	}
	if !strings.HasPrefix(out, "(dry-run) ") {
		t.Errorf("Expected dry-run echo, got %q", out)
	}

	out, err = h.Sudo("systemctl stop timscan")
	if err != nil {
		t.Fatalf("Dry-run Sudo failed: %v", err)
	}
	if !strings.HasPrefix(out, "(dry-run) sudo ") {
		t.Errorf("Expected dry-run sudo echo, got %q", out)
	}

	if err := h.Push("/tmp/a", "/usr/local/bin/timscan"); err != nil {
		t.Fatalf("Dry-run Push failed: %v", err)
	}
	if err := h.Pull("/var/lib/timscan/timscan.db", "backup.db"); err != nil {
		t.Fatalf("Dry-run Pull failed: %v", err)
	}
	if err := h.Put("/tmp/x", "body"); err != nil {
		t.Fatalf("Dry-run Put failed: %v", err)
	}

	if len(sh.CallLog) != 0 {
		t.Errorf("Dry-run must not build commands, got %d", len(sh.CallLog))
	}
}

func TestHostPushRemoteStagesThroughTmp(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi"})

	if err := h.Push("./timscan", "/usr/local/bin/timscan"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	if len(sh.CallLog) != 2 {
		t.Fatalf("Expected scp then mv, got %d calls", len(sh.CallLog))
	}

	scp := sh.CallLog[0]
	if scp.Name != "scp" {
		t.Errorf("Expected scp first, got %q", scp.Name)
	}
	dest := scp.Args[len(scp.Args)-1]
	if !strings.HasPrefix(dest, "pi@sensor-gw:/tmp/timscan-push-") {
		t.Errorf("Expected staging path on target, got %q", dest)
	}

	move := sh.CallLog[1].Line()
	if !strings.Contains(move, "sudo mv /tmp/timscan-push-") ||
		!strings.Contains(move, "/usr/local/bin/timscan") {
		t.Errorf("Expected sudo mv into place, got %q", move)
	}
}

func TestHostPushRemotePlainMove(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi"})

	if err := h.Push("./timscan", "/home/pi/timscan"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	move := sh.CallLog[1].Line()
	if strings.Contains(move, "sudo") {
		t.Errorf("Home-directory push must not use sudo: %q", move)
	}
	if !strings.Contains(move, "mv /tmp/timscan-push-") {
		t.Errorf("Expected plain mv, got %q", move)
	}
}

func TestHostPushScpFailure(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi"})
	sh.Respond = func(call ShellCall) *FakeCommand {
		if call.Name == "scp" {
			return &FakeCommand{Output: []byte("lost connection"), Err: errors.New("exit status 1")}
		}
		return nil
	}

	err := h.Push("./timscan", "/usr/local/bin/timscan")
	if err == nil {
		t.Fatal("Expected scp failure to surface")
	}
	if !strings.Contains(err.Error(), "lost connection") {
		t.Errorf("Expected scp output in error, got %v", err)
	}
	if len(sh.Calls("mv ")) != 0 {
		t.Error("Expected no move after failed scp")
	}
}

func TestHostPushLocalCopiesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "timscan")
	dst := filepath.Join(dir, "staged")
	if err := os.WriteFile(src, []byte("binary bits"), 0755); err != nil {
		t.Fatal(err)
	}

	h, sh := fakeHost(HostConfig{Addr: "localhost"})
	if err := h.Push(src, dst); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("Read copy failed: %v", err)
	}
	if string(got) != "binary bits" {
		t.Errorf("Expected copied contents, got %q", got)
	}
	if len(sh.CallLog) != 0 {
		t.Errorf("Local non-system push must not shell out, got %d calls", len(sh.CallLog))
	}
}

func TestHostPushLocalSystemPathUsesSudo(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "localhost"})

	if err := h.Push("./timscan", "/usr/local/bin/timscan"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	line := sh.Last().Line()
	if !strings.HasPrefix(line, "sudo cp ") {
		t.Errorf("Expected sudo cp for system path, got %q", line)
	}
}

func TestHostPullRemote(t *testing.T) {
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi"})

	if err := h.Pull("/tmp/timscan-backup-bin", "backup/timscan"); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	scp := sh.Last()
	if scp == nil || scp.Name != "scp" {
		t.Fatalf("Expected scp call, got %+v", scp)
	}
	src := scp.Args[len(scp.Args)-2]
	if src != "pi@sensor-gw:/tmp/timscan-backup-bin" {
		t.Errorf("Expected remote source, got %q", src)
	}
	if dst := scp.Args[len(scp.Args)-1]; dst != "backup/timscan" {
		t.Errorf("Expected local destination, got %q", dst)
	}
}

func TestHostPutRemoteSetsStdin(t *testing.T) {
	var written *FakeCommand
	h, sh := fakeHost(HostConfig{Addr: "sensor-gw", User: "pi"})
	sh.Respond = func(call ShellCall) *FakeCommand {
		written = &FakeCommand{}
		return written
	}

	if err := h.Put("/tmp/timscan.service", "[Unit]\n"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if written == nil || string(written.Stdin) != "[Unit]\n" {
		t.Fatalf("Expected contents on stdin, got %+v", written)
	}
	last := sh.Last()
	if last.Args[len(last.Args)-1] != "cat > /tmp/timscan.service" {
		t.Errorf("Unexpected remote write call: %v", last.Args)
	}
}

func TestHostPutLocalWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timscan.service")
	h, _ := fakeHost(HostConfig{Addr: ""})

	if err := h.Put(path, "[Unit]\n"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[Unit]\n" {
		t.Errorf("Expected written contents, got %q", got)
	}
}

func TestSystemPath(t *testing.T) {
	tests := []struct {
		dst  string
		want bool
	}{
		{"/usr/local/bin/timscan", true},
		{"/etc/systemd/system/timscan.service", true},
		{"/var/lib/timscan/timscan.db", true},
		{"/var/folders/x1/tmpfile", false},
		{"/home/pi/backup", false},
		{"backup/timscan", false},
	}

	for _, tt := range tests {
		if got := systemPath(tt.dst); got != tt.want {
			t.Errorf("systemPath(%q) = %v, want %v", tt.dst, got, tt.want)
		}
	}
}
