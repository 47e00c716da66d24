package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests use a stub.
type execIface interface {
	hasToken() bool
	activeCount() int
	Token(ctx context.Context) error
	Upload(ctx context.Context, args []string) error
	UploadDir(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Pause(ctx context.Context, args []string) error
	Resume(ctx context.Context, args []string) error
	ResumeAll(ctx context.Context) error
	Cancel(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Clear(ctx context.Context, args []string) error
}

// runREPL reads commands line by line and dispatches them. Handler errors
// are printed and the loop continues; the loop exits on EOF or exit/quit,
// asking for confirmation when transfers are still active.
//
// Commands:
//
//	token                 — enter the access token (not echoed)
//	up <path> [prefix]    — upload one file, optionally under a remote prefix
//	updir <dir> [prefix]  — upload a directory tree
//	l, list               — show all tasks
//	pause <id|all>        — pause a task
//	resume <id|all>       — resume a paused task
//	cancel <id>           — cancel and discard a task
//	retry <id>            — retry a failed task
//	clear [all]           — drop completed tasks ("all" cancels and drops everything)
//	exit, quit            — leave
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner) {
	for {
		printlnFn("uplink> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn("Available commands: token, up, updir, (l)ist, pause, resume, cancel, retry, clear, exit")

		case "token":
			err = a.Token(ctx)

		case "up":
			if !a.hasToken() {
				printlnFn("Set an access token first (token)")
				continue
			}
			err = a.Upload(ctx, args)

		case "updir":
			if !a.hasToken() {
				printlnFn("Set an access token first (token)")
				continue
			}
			err = a.UploadDir(ctx, args)

		case "l", "list":
			err = a.List(ctx)

		case "pause":
			err = a.Pause(ctx, args)

		case "resume":
			if len(args) == 1 && args[0] == "all" {
				err = a.ResumeAll(ctx)
			} else {
				err = a.Resume(ctx, args)
			}

		case "cancel":
			err = a.Cancel(ctx, args)

		case "retry":
			err = a.Retry(ctx, args)

		case "clear":
			err = a.Clear(ctx, args)

		case "exit", "quit":
			if n := a.activeCount(); n > 0 {
				printlnFn(fmt.Sprintf("%d transfer(s) still active; they will resume next start. Type exit again to confirm.", n))
				if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != cmd {
					continue
				}
			}
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err.Error())
		}
	}
}
