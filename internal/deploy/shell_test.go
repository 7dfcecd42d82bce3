package deploy

import (
	"errors"
	"strings"
	"testing"
)

func TestExecShellScript(t *testing.T) {
	sh := ExecShell{}

	out, err := sh.Script("echo active").Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "active" {
		t.Errorf("Expected 'active', got: %s", out)
	}

	if _, err := sh.Script("exit 1").Run(); err == nil {
		t.Error("Expected error from failing script")
	}
}

func TestExecShellCommandArgs(t *testing.T) {
	out, err := ExecShell{}.Command("echo", "servo", "ready").Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "servo ready" {
		t.Errorf("Expected 'servo ready', got: %s", out)
	}
}

func TestExecShellStdinRoundTrips(t *testing.T) {
	unit := "[Unit]\nDescription=timscan\n"

	cmd := ExecShell{}.Script("cat")
	cmd.SetStdin([]byte(unit))
	out, err := cmd.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(out) != unit {
		t.Errorf("Expected stdin to round-trip, got: %s", out)
	}
}

func TestFakeCommandScriptsResult(t *testing.T) {
	wantErr := errors.New("connection refused")
	cmd := &FakeCommand{Output: []byte("ssh: connect to host sensor-gw"), Err: wantErr}

	out, err := cmd.Run()
	if err != wantErr {
		t.Errorf("Expected scripted error, got: %v", err)
	}
	if len(out) == 0 {
		t.Error("Expected output alongside the error")
	}
	if !cmd.Ran {
		t.Error("Expected Ran to be set")
	}

	cmd.SetStdin([]byte("unit file body"))
	if string(cmd.Stdin) != "unit file body" {
		t.Errorf("Expected stdin to be recorded, got: %s", cmd.Stdin)
	}
}

func TestFakeShellLogsCalls(t *testing.T) {
	sh := NewFakeShell()

	sh.Command("ssh", "-i", "/home/pi/.ssh/id_ed25519", "pi@sensor-gw", "systemctl is-active timscan").Run()
	sh.Script("sudo systemctl daemon-reload").Run()

	if len(sh.CallLog) != 2 {
		t.Fatalf("Expected 2 logged calls, got %d", len(sh.CallLog))
	}

	ssh := sh.CallLog[0]
	if ssh.Name != "ssh" || ssh.IsScript {
		t.Errorf("Expected a non-script ssh call, got %+v", ssh)
	}
	if len(ssh.Args) != 4 || ssh.Args[len(ssh.Args)-1] != "systemctl is-active timscan" {
		t.Errorf("Unexpected ssh args: %v", ssh.Args)
	}

	last := sh.Last()
	if last == nil {
		t.Fatal("Expected a last call")
	}
	if last.Name != "sh" || !last.IsScript {
		t.Errorf("Expected a script call, got %+v", last)
	}
	if len(last.Args) != 2 || last.Args[0] != "-c" {
		t.Errorf("Expected sh -c args, got %v", last.Args)
	}
	if !strings.Contains(last.Line(), "daemon-reload") {
		t.Errorf("Expected rendered line to carry the command, got %q", last.Line())
	}
}

func TestFakeShellQueueIsFIFO(t *testing.T) {
	sh := NewFakeShell()
	sh.Enqueue(&FakeCommand{Output: []byte("inactive\n")})
	sh.Enqueue(&FakeCommand{Err: errors.New("exit status 3")})

	out, err := sh.Script("systemctl is-active timscan").Run()
	if err != nil || string(out) != "inactive\n" {
		t.Errorf("Expected first queued reply, got %q, %v", out, err)
	}

	if _, err := sh.Script("systemctl is-active timscan").Run(); err == nil {
		t.Error("Expected second queued reply's error")
	}

	// Queue exhausted: the default reply succeeds with empty output.
	out, err = sh.Script("systemctl is-active timscan").Run()
	if err != nil || out != nil {
		t.Errorf("Expected empty default reply, got %q, %v", out, err)
	}
}

func TestFakeShellRespondWins(t *testing.T) {
	sh := NewFakeShell()
	sh.Enqueue(&FakeCommand{Output: []byte("queued\n")})
	sh.Respond = func(call ShellCall) *FakeCommand {
		if call.Name == "scp" {
			return &FakeCommand{Err: errors.New("no route to host")}
		}
		return nil
	}

	if _, err := sh.Command("scp", "timscan", "pi@sensor-gw:/tmp/timscan").Run(); err == nil {
		t.Error("Expected the responder's scp error")
	}

	// A nil response falls through to the queue.
	out, err := sh.Command("ssh", "pi@sensor-gw", "true").Run()
	if err != nil || string(out) != "queued\n" {
		t.Errorf("Expected queued fallback, got %q, %v", out, err)
	}
}

func TestFakeShellCallsFilter(t *testing.T) {
	sh := NewFakeShell()
	sh.Script("systemctl stop timscan").Run()
	sh.Script("cp /usr/local/bin/timscan /var/lib/timscan/backups/x/timscan").Run()
	sh.Script("systemctl start timscan").Run()

	got := sh.Calls("systemctl")
	if len(got) != 2 {
		t.Fatalf("Expected 2 systemctl calls, got %d", len(got))
	}
	if !strings.Contains(got[1].Line(), "start") {
		t.Errorf("Expected the start call second, got %q", got[1].Line())
	}
	if calls := sh.Calls("reboot"); len(calls) != 0 {
		t.Errorf("Expected no reboot calls, got %d", len(calls))
	}
}

func TestFakeShellReset(t *testing.T) {
	sh := NewFakeShell()
	if sh.Last() != nil {
		t.Error("Expected no last call on a fresh shell")
	}

	sh.Enqueue(&FakeCommand{Output: []byte("x")})
	sh.Script("systemctl stop timscan").Run()
	sh.Reset()

	if len(sh.CallLog) != 0 {
		t.Errorf("Expected no calls after reset, got %d", len(sh.CallLog))
	}
	out, _ := sh.Script("true").Run()
	if out != nil {
		t.Errorf("Expected queue cleared by reset, got %q", out)
	}
}
