package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubExec struct {
	token   bool
	active  int
	calls   []string
	lastArg []string
}

func (s *stubExec) hasToken() bool    { return s.token }
func (s *stubExec) activeCount() int  { return s.active }
func (s *stubExec) record(name string, args []string) error {
	s.calls = append(s.calls, name)
	s.lastArg = args
	return nil
}

func (s *stubExec) Token(ctx context.Context) error { return s.record("token", nil) }
func (s *stubExec) Upload(ctx context.Context, args []string) error {
	return s.record("up", args)
}
func (s *stubExec) UploadDir(ctx context.Context, args []string) error {
	return s.record("updir", args)
}
func (s *stubExec) List(ctx context.Context) error { return s.record("list", nil) }
func (s *stubExec) Pause(ctx context.Context, args []string) error {
	return s.record("pause", args)
}
func (s *stubExec) Resume(ctx context.Context, args []string) error {
	return s.record("resume", args)
}
func (s *stubExec) ResumeAll(ctx context.Context) error { return s.record("resumeall", nil) }
func (s *stubExec) Cancel(ctx context.Context, args []string) error {
	return s.record("cancel", args)
}
func (s *stubExec) Retry(ctx context.Context, args []string) error {
	return s.record("retry", args)
}
func (s *stubExec) Clear(ctx context.Context, args []string) error {
	return s.record("clear", args)
}

func runScript(t *testing.T, a execIface, script string) []string {
	t.Helper()

	orig := printlnFn
	var out []string
	printlnFn = func(args ...any) (int, error) {
		out = append(out, fmt.Sprintln(args...))
		return 0, nil
	}
	defer func() { printlnFn = orig }()

	runREPL(context.Background(), a, bufio.NewScanner(strings.NewReader(script)))
	return out
}

func TestREPLDispatch(t *testing.T) {
	s := &stubExec{token: true}
	runScript(t, s, "up a.txt docs/\nlist\npause 123\nresume all\nclear all\nexit\n")

	assert.Equal(t, []string{"up", "list", "pause", "resumeall", "clear"}, s.calls)
	assert.Equal(t, []string{"all"}, s.lastArg)
}

func TestREPLRequiresTokenForUploads(t *testing.T) {
	s := &stubExec{token: false}
	out := runScript(t, s, "up a.txt\nupdir d\nexit\n")

	assert.Empty(t, s.calls)
	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "Set an access token first")
}

func TestREPLUnknownCommand(t *testing.T) {
	s := &stubExec{}
	out := runScript(t, s, "frobnicate\nexit\n")

	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "Unknown command")
}

func TestREPLExitConfirmsWithActiveTransfers(t *testing.T) {
	s := &stubExec{active: 2}

	// first exit is questioned; an unrelated answer cancels it
	out := runScript(t, s, "exit\nlist\nexit\nexit\n")

	joined := strings.Join(out, "\n")
	assert.Contains(t, joined, "still active")
	assert.Contains(t, joined, "Bye!")
	// the "list" answer canceled the first exit but was not dispatched
	assert.Empty(t, s.calls)
}

func TestREPLEOFExits(t *testing.T) {
	s := &stubExec{}
	runScript(t, s, "")
	assert.Empty(t, s.calls)
}
