package cmd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

// newTestRootCmd returns a bare root command so tests need not touch the
// global rootCmd and its persistent hooks.
func newTestRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mboxvault",
		Short: "Offline mbox email archive",
	}
}

func TestExecuteContext_CancellationPropagates(t *testing.T) {
	var sawCancel atomic.Bool
	started := make(chan struct{})

	testRoot := newTestRootCmd()
	testRoot.AddCommand(&cobra.Command{
		Use: "wait",
		RunE: func(cmd *cobra.Command, args []string) error {
			close(started)
			select {
			case <-cmd.Context().Done():
				sawCancel.Store(true)
				return cmd.Context().Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		testRoot.SetArgs([]string{"wait"})
		done <- testRoot.ExecuteContext(ctx)
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("command handler did not start in time")
	}

	// Same effect as SIGINT through signal.NotifyContext in main.
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ExecuteContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ExecuteContext did not return after cancellation")
	}
	if !sawCancel.Load() {
		t.Error("command did not observe the cancellation")
	}
}

// Tests below swap the package-level rootCmd and must not run in parallel.

func TestExecuteContext_PropagatesContext(t *testing.T) {
	saved := rootCmd
	defer func() { rootCmd = saved }()

	type ctxKey string
	var got context.Context
	testRoot := newTestRootCmd()
	testRoot.AddCommand(&cobra.Command{
		Use: "ctx",
		RunE: func(cmd *cobra.Command, args []string) error {
			got = cmd.Context()
			return nil
		},
	})
	rootCmd = testRoot

	ctx := context.WithValue(context.Background(), ctxKey("k"), "v")
	testRoot.SetArgs([]string{"ctx"})
	if err := ExecuteContext(ctx); err != nil {
		t.Fatalf("ExecuteContext() error = %v", err)
	}
	if got == nil {
		t.Fatal("command did not receive a context")
	}
	if v := got.Value(ctxKey("k")); v != "v" {
		t.Errorf("context value = %v, want v", v)
	}
}

func TestExecute_UsesBackgroundContext(t *testing.T) {
	saved := rootCmd
	defer func() { rootCmd = saved }()

	var got context.Context
	testRoot := newTestRootCmd()
	testRoot.AddCommand(&cobra.Command{
		Use: "bg",
		RunE: func(cmd *cobra.Command, args []string) error {
			got = cmd.Context()
			return nil
		},
	})
	rootCmd = testRoot

	testRoot.SetArgs([]string{"bg"})
	if err := Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got == nil {
		t.Fatal("command did not receive a context")
	}
	if got.Err() != nil {
		t.Errorf("background context already done: %v", got.Err())
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"init-db", "import-mbox", "search", "show-message", "tag", "star", "read",
		"bulk", "folders", "unread", "history", "export", "stats", "rebuild-index", "serve",
	}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}
