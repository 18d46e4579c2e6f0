package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/dmsync/internal/devserver"
	"github.com/tOgg1/dmsync/internal/testutil"
)

// isolateConfig keeps a developer's own config and state out of the test.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	if a == nil {
		a = &app{isTerminal: func() bool { return false }}
	}
	cmd := newRootCmdFor("test", a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd("dev")

	for alias, name := range map[string]string{
		"threads": "inbox",
		"ls":      "inbox",
		"view":    "view",
		"tail":    "tail",
		"send":    "send",
		"serve":   "serve",
	} {
		found, _, err := root.Find([]string{alias})
		require.NoError(t, err)
		require.Equal(t, name, found.Name())
	}
}

func TestInboxListsThreads(t *testing.T) {
	isolateConfig(t)
	url := testutil.StartService(t, 6, 5).URL

	out, err := run(t, nil, "inbox", "--base-url", url)
	require.NoError(t, err)
	require.Contains(t, out, "THREAD")
	require.Contains(t, out, "LAST ACTIVITY")
	require.Contains(t, out, devserver.DemoThreadID)
	require.Contains(t, out, "Sam Rivera")
}

func TestSendThenTailWithHistory(t *testing.T) {
	isolateConfig(t)
	url := testutil.StartService(t, 12, 5).URL

	out, err := run(t, nil, "send", "--base-url", url, devserver.DemoThreadID, "see", "you", "there")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "sent "), out)

	out, err = run(t, nil, "tail", "--base-url", url, "--older", "10", "--follow=false", devserver.DemoThreadID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 13)
	require.Contains(t, lines[len(lines)-1], "You: see you there")
}

func TestTailWithoutOlderPrintsSnapshotOnly(t *testing.T) {
	isolateConfig(t)
	url := testutil.StartService(t, 12, 5).URL

	out, err := run(t, nil, "tail", "--base-url", url, "--follow=false", devserver.DemoThreadID)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)
}

func TestTailUnknownThread(t *testing.T) {
	isolateConfig(t)
	url := testutil.StartService(t, 3, 5).URL

	_, err := run(t, nil, "tail", "--base-url", url, "--follow=false", "nope")
	require.Error(t, err)
}

func TestViewNeedsTerminal(t *testing.T) {
	isolateConfig(t)

	_, err := run(t, nil, "view", "demo")
	require.ErrorIs(t, err, errNeedsTerminal)
}

func TestViewWithoutThreadOrState(t *testing.T) {
	dir := isolateConfig(t)
	a := &app{
		isTerminal: func() bool { return true },
		statePath:  filepath.Join(dir, "state.yaml"),
	}

	_, err := run(t, a, "view")
	require.ErrorIs(t, err, errNoThread)
}

func TestInvalidBaseURLFlag(t *testing.T) {
	isolateConfig(t)

	_, err := run(t, nil, "inbox", "--base-url", "ftp://nowhere")
	require.Error(t, err)
}

func TestServeChatterNeedsSeed(t *testing.T) {
	isolateConfig(t)

	_, err := run(t, nil, "serve", "--db", ":memory:", "--chatter", "1s")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--seed")
}

func TestLoadRespectsConfigFileAndFlags(t *testing.T) {
	dir := isolateConfig(t)
	path := filepath.Join(dir, "dmsync.yaml")
	writeConfig(t, path, "logging:\n  level: warn\nremote:\n  base_url: http://file.example\n")

	a := &app{isTerminal: func() bool { return false }}
	cmd := newRootCmdFor("test", a)
	cmd.SetArgs([]string{"--config", path, "--log-level", "debug"})
	cmd.SetOut(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	require.Equal(t, "debug", a.cfg.Logging.Level)
	require.Equal(t, "http://file.example", a.cfg.Remote.BaseURL)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "NAME"}, [][]string{
		{"1", "Ada"},
		{"22", "\x1b[1mGrace\x1b[0m"},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, []string{"ID  NAME", "1   Ada", "22  \x1b[1mGrace\x1b[0m"}, lines)
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
