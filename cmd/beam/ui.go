package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/term"

	"github.com/1ureka/beam/internal/session"
	"github.com/1ureka/beam/internal/util"
)

// watcher is the observable half of a session.
type watcher interface {
	Status() session.Status
	Await(ctx context.Context, pred func(session.Status) bool) (session.Status, error)
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// askPassword prompts for a password with masked input.
func askPassword(prompt string) (string, error) {
	if !interactive() {
		return "", errors.New("password required: pass --password when stdin is not a terminal")
	}
	for {
		pw, err := pterm.DefaultInteractiveTextInput.
			WithMask("*").
			WithDefaultText(prompt).
			Show()
		if err != nil {
			return "", err
		}
		if pw != "" {
			pterm.Println()
			return pw, nil
		}
		pterm.Println()
		pterm.Warning.Println("password cannot be empty")
	}
}

// confirm asks a yes/no question, answering def when not interactive.
func confirm(prompt string, def bool) bool {
	if !interactive() {
		return def
	}
	ok, err := pterm.DefaultInteractiveConfirm.
		WithDefaultValue(def).
		WithDefaultText(prompt).
		Show()
	if err != nil {
		return def
	}
	return ok
}

func readFile(path string) (session.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return session.File{Name: filepath.Base(path), Data: data}, nil
}

func size[N int | int64](n N) string {
	return strings.Join(strings.Fields(util.FormatBytes(float64(n))), " ")
}

// describe summarizes file contents for log lines, so both ends can compare
// what was sent with what arrived.
func describe(data []byte) string {
	return size(len(data)) + ", sha256 " + util.ShortDigest(data)
}

func moving(s session.State) bool {
	switch s {
	case session.StateTransferring, session.StateSending, session.StateReceiving:
		return true
	}
	return false
}

// follow renders a progress bar for every file moving through the session
// until stop holds.
func follow(ctx context.Context, w watcher, stop func(session.Status) bool) (session.Status, error) {
	var bar *pterm.ProgressbarPrinter
	last := w.Status()

	finish := func(complete bool) {
		if bar == nil {
			return
		}
		if complete && bar.Current < bar.Total {
			bar.Add(bar.Total - bar.Current)
		}
		bar.Stop()
		bar = nil
	}

	for {
		st, err := w.Await(ctx, func(s session.Status) bool {
			return stop(s) || s.State != last.State || s.Progress != last.Progress || s.File != last.File
		})
		if err != nil {
			finish(false)
			return st, err
		}

		if moving(st.State) {
			if bar == nil || st.File != last.File || !moving(last.State) {
				finish(false)
				bar, _ = pterm.DefaultProgressbar.WithTotal(100).WithTitle(st.File).Start()
			}
			if bar != nil && st.Progress > bar.Current {
				bar.Add(st.Progress - bar.Current)
			}
		} else {
			finish(st.State == session.StateReady)
		}

		last = st
		if stop(st) {
			finish(st.State == session.StateReady)
			return st, nil
		}
	}
}

// track shows progress for a single SendFile call running in the
// background until it reports on errc.
func track(ctx context.Context, w watcher, name string, errc <-chan error) error {
	bar, err := pterm.DefaultProgressbar.WithTotal(100).WithTitle(name).Start()
	if err != nil {
		return <-errc
	}
	defer bar.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-errc:
			if err == nil {
				bar.Add(bar.Total - bar.Current)
			}
			return err
		case <-ticker.C:
			if st := w.Status(); st.File == name && st.Progress > bar.Current {
				bar.Add(st.Progress - bar.Current)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// sessionError turns a failed status into a user-facing error.
func sessionError(st session.Status) error {
	if st.Err == nil {
		return fmt.Errorf("session ended in state %s", st.State)
	}
	return fmt.Errorf("%s error: %w", session.KindOf(st.Err), st.Err)
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
