package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "token", "outbox"} {
		assert.True(t, names[want], "缺少子命令 %s", want)
	}
}

func TestTokenCommand_RequiresHandle(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"token"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handle")
}

func TestTokenCommand_RejectsUnknownRole(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"token", "--handle", "alice", "--role", "root"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "无效的角色")
}

func TestTokenCommand_IssuesParsableToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auth:\n  jwt_secret: \"cli-test-secret-0123456789\"\n"), 0o600))

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"token", "--config", path, "--handle", "alice", "--role", "supervisor", "--org", "org-1"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, cmd.Execute())

	parts := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("."))
	assert.Len(t, parts, 3, "输出应为 JWT")
}

func TestTokenCommand_MissingConfigFile(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"token", "--config", filepath.Join(t.TempDir(), "none.yaml"), "--handle", "alice"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.Error(t, cmd.Execute(), "显式指定不存在的配置文件应报错")
}
