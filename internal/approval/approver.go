package approval

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
)

// DefaultPromptInterval is how often the approver re-reads the pending list.
const DefaultPromptInterval = 3 * time.Second

var errInputClosed = errors.New("approver input closed")

// Approver prompts a human for y/n/skip on every pending action. Skipped
// actions come back on the next round.
type Approver struct {
	backend  Decider
	in       io.Reader
	out      io.Writer
	interval time.Duration
}

// NewApprover creates an approver reading answers from in.
func NewApprover(backend Decider, in io.Reader, out io.Writer, interval time.Duration) *Approver {
	if interval <= 0 {
		interval = DefaultPromptInterval
	}
	return &Approver{backend: backend, in: in, out: out, interval: interval}
}

// Run prompts until ctx is cancelled or the input reaches EOF.
func (a *Approver) Run(ctx context.Context) error {
	lines := make(chan string)
	eof := make(chan struct{})
	go func() {
		defer close(eof)
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	color.New(color.FgCyan).Fprintln(a.out, "Waiting for actions to confirm...")
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		if err := a.round(ctx, lines); err != nil {
			if errors.Is(err, errInputClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-eof:
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Approver) round(ctx context.Context, lines <-chan string) error {
	pending, err := a.backend.Pending(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Failed to list pending confirmations", "error", err)
		color.New(color.FgRed).Fprintf(a.out, "Could not reach the confirmation service: %v\n", err)
		return nil
	}
	for _, action := range pending {
		if err := a.prompt(ctx, action, lines); err != nil {
			return err
		}
	}
	return nil
}

func (a *Approver) prompt(ctx context.Context, action Action, lines <-chan string) error {
	fmt.Fprintln(a.out, strings.Repeat("-", 40))
	color.New(color.FgYellow, color.Bold).Fprintln(a.out, "ACTION REQUIRES CONFIRMATION")
	fmt.Fprintf(a.out, "  ID:          %s\n", action.ID)
	fmt.Fprintf(a.out, "  Description: %s\n", action.Description)
	if snippet := detailsSnippet(action.Details); snippet != "" {
		fmt.Fprintf(a.out, "  Details:     %s\n", snippet)
	}

	for {
		fmt.Fprint(a.out, "Confirm this action? (y/n/skip): ")
		var answer string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(a.out)
				return errInputClosed
			}
			answer = strings.ToLower(strings.TrimSpace(line))
		}

		var confirmed bool
		switch answer {
		case "y", "yes":
			confirmed = true
		case "n", "no":
			confirmed = false
		case "s", "skip":
			fmt.Fprintf(a.out, "Skipped %s.\n", action.ID)
			return nil
		default:
			fmt.Fprintln(a.out, "Invalid input. Please enter 'y', 'n', or 'skip'.")
			continue
		}

		result, err := a.backend.Decide(ctx, action.ID, confirmed)
		switch {
		case errors.Is(err, ErrNotFound):
			color.New(color.FgRed).Fprintf(a.out, "Action %s was removed before it could be processed.\n", action.ID)
			return nil
		case err != nil:
			slog.Warn("Failed to submit decision", "action_id", action.ID, "error", err)
			color.New(color.FgRed).Fprintf(a.out, "Could not submit decision for %s: %v\n", action.ID, err)
			return nil
		}

		want := StatusDenied
		if confirmed {
			want = StatusConfirmed
		}
		if result.Status != want {
			color.New(color.FgYellow).Fprintf(a.out, "Action %s was already %s.\n", action.ID, result.Status)
			return nil
		}
		if confirmed {
			color.New(color.FgGreen).Fprintf(a.out, "Action %s confirmed.\n", action.ID)
		} else {
			color.New(color.FgRed).Fprintf(a.out, "Action %s denied.\n", action.ID)
		}
		return nil
	}
}

func detailsSnippet(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	data, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	s := string(data)
	if len(s) > 100 {
		s = s[:100] + "..."
	}
	return s
}
