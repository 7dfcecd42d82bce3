package deploy

import (
	"bytes"
	"os/exec"
	"strings"
)

// Command is one external process ready to run.
type Command interface {
	// Run executes the process and returns combined stdout and stderr.
	Run() ([]byte, error)

	// SetStdin supplies bytes piped to the process's stdin.
	SetStdin(stdin []byte)
}

// Shell builds Commands. ExecShell runs them for real; FakeShell scripts
// their output so the ssh, scp and sudo plumbing can be tested without a
// host on the other end.
type Shell interface {
	Command(name string, args ...string) Command

	// Script runs line through "sh -c" so pipes and redirects work.
	Script(line string) Command
}

type execCommand struct {
	cmd *exec.Cmd
}

func (c *execCommand) Run() ([]byte, error)  { return c.cmd.CombinedOutput() }
func (c *execCommand) SetStdin(stdin []byte) { c.cmd.Stdin = bytes.NewReader(stdin) }

// ExecShell is the production Shell, backed by os/exec.
type ExecShell struct{}

func (ExecShell) Command(name string, args ...string) Command {
	return &execCommand{cmd: exec.Command(name, args...)}
}

func (ExecShell) Script(line string) Command {
	return &execCommand{cmd: exec.Command("sh", "-c", line)}
}

// ShellCall records one command a FakeShell was asked to build.
type ShellCall struct {
	Name     string
	Args     []string
	IsScript bool
}

// Line renders the call roughly as it would appear in a terminal, for
// substring matching in tests.
func (c ShellCall) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// FakeCommand scripts the result of one Command.
type FakeCommand struct {
	Output []byte
	Err    error

	// Stdin captures whatever SetStdin supplied.
	Stdin []byte
	// Ran flips once Run has been invoked.
	Ran bool
}

func (f *FakeCommand) Run() ([]byte, error) {
	f.Ran = true
	return f.Output, f.Err
}

func (f *FakeCommand) SetStdin(stdin []byte) { f.Stdin = stdin }

// FakeShell records every call and answers with scripted commands: the
// Respond hook when it returns non-nil, else queued replies in order, else
// a command that succeeds with empty output.
type FakeShell struct {
	CallLog []ShellCall
	Respond func(call ShellCall) *FakeCommand

	queue []*FakeCommand
}

func NewFakeShell() *FakeShell { return &FakeShell{} }

// Enqueue scripts the reply for an upcoming call. Queued replies are
// consumed first-in first-out.
func (s *FakeShell) Enqueue(cmd *FakeCommand) {
	s.queue = append(s.queue, cmd)
}

func (s *FakeShell) Command(name string, args ...string) Command {
	return s.build(ShellCall{Name: name, Args: args})
}

func (s *FakeShell) Script(line string) Command {
	return s.build(ShellCall{Name: "sh", Args: []string{"-c", line}, IsScript: true})
}

func (s *FakeShell) build(call ShellCall) Command {
	s.CallLog = append(s.CallLog, call)
	if s.Respond != nil {
		if cmd := s.Respond(call); cmd != nil {
			return cmd
		}
	}
	if len(s.queue) > 0 {
		cmd := s.queue[0]
		s.queue = s.queue[1:]
		return cmd
	}
	return &FakeCommand{}
}

// Calls returns the logged calls whose rendered line contains substr.
func (s *FakeShell) Calls(substr string) []ShellCall {
	var out []ShellCall
	for _, c := range s.CallLog {
		if strings.Contains(c.Line(), substr) {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent call, or nil before any.
func (s *FakeShell) Last() *ShellCall {
	if len(s.CallLog) == 0 {
		return nil
	}
	return &s.CallLog[len(s.CallLog)-1]
}

// Reset clears the call log and any queued replies.
func (s *FakeShell) Reset() {
	s.CallLog = nil
	s.queue = nil
}
