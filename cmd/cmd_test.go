package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(out.String(), "photo-similarity dev\n") {
		t.Errorf("unexpected version output: %q", out.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "embed", "groups", "pairs", "similar", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestEmbedFlagDefaults(t *testing.T) {
	tests := []struct {
		flag string
		want string
	}{
		{"project-id", "0"},
		{"limit", "0"},
		{"model", ""},
		{"delay", "0s"},
		{"concurrency", "1"},
	}
	for _, tt := range tests {
		f := embedCmd.Flags().Lookup(tt.flag)
		if f == nil {
			t.Errorf("flag --%s missing", tt.flag)
			continue
		}
		if f.DefValue != tt.want {
			t.Errorf("--%s default = %q, want %q", tt.flag, f.DefValue, tt.want)
		}
	}
}

func TestMustGetHelpers(t *testing.T) {
	c := &cobra.Command{Use: "test"}
	c.Flags().Int("n", 3, "")
	c.Flags().Int64("id", 0, "")
	c.Flags().String("s", "x", "")
	c.Flags().Float64("f", 0.5, "")
	c.Flags().Duration("d", time.Second, "")

	if err := c.Flags().Parse([]string{"--id", "42", "--d", "250ms"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if got := mustGetInt(c, "n"); got != 3 {
		t.Errorf("mustGetInt = %d", got)
	}
	if got := mustGetInt64(c, "id"); got != 42 {
		t.Errorf("mustGetInt64 = %d", got)
	}
	if got := mustGetString(c, "s"); got != "x" {
		t.Errorf("mustGetString = %q", got)
	}
	if got := mustGetFloat64(c, "f"); got != 0.5 {
		t.Errorf("mustGetFloat64 = %v", got)
	}
	if got := mustGetDuration(c, "d"); got != 250*time.Millisecond {
		t.Errorf("mustGetDuration = %v", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown flag")
		}
	}()
	mustGetInt(c, "missing")
}
