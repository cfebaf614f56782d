package cli

import (
	"testing"
)

func TestRootCommand_Subcommands(t *testing.T) {
	want := []string{"serve", "init", "config", "project", "run", "workflow", "pipeline", "status", "version"}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("root command is missing subcommand %q", name)
		}
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"config", "server", "verbose", "quiet", "json", "no-color"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not registered", name)
		}
	}
}

func TestProjectCommand_Subcommands(t *testing.T) {
	cmd := newProjectCmd()
	want := map[string]bool{"add": false, "list": false, "show": false, "remove": false}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("project command is missing subcommand %q", name)
		}
	}
}

func TestWorkflowCommand_Subcommands(t *testing.T) {
	cmd := newWorkflowCmd()
	want := map[string]bool{
		"start": false, "exec": false, "status": false,
		"cancel": false, "list": false, "types": false, "show": false,
	}
	for _, c := range cmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("workflow command is missing subcommand %q", name)
		}
	}
}

func TestRunCommand_Flags(t *testing.T) {
	cmd := newRunCmd()
	for _, name := range []string{"project", "from-jira", "max-iterations", "context", "detach", "jira-url", "jira-email", "jira-token"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("run flag %q not registered", name)
		}
	}
}

func TestInitCommand_Flags(t *testing.T) {
	cmd := newInitCmd()
	for _, name := range []string{"force", "plain", "defaults"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("init flag %q not registered", name)
		}
	}
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := newServeCmd()
	if cmd.Use != "serve" {
		t.Errorf("command Use = %q, want %q", cmd.Use, "serve")
	}
	for _, name := range []string{"host", "port"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("serve flag %q not registered", name)
		}
	}
}
