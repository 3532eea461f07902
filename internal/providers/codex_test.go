package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agent-conductor/conductord/internal/model"
)

func TestClassifyCodex(t *testing.T) {
	tests := []struct {
		name    string
		history string
		want    model.TerminalStatus
	}{
		{
			name:    "empty pane is busy",
			history: "\n\n",
			want:    model.StatusRunning,
		},
		{
			name:    "rollout recorder failure is an error",
			history: "codex starting\nfailed to initialize rollout recorder\n",
			want:    model.StatusError,
		},
		{
			name:    "permission denied recorder is an error",
			history: "rollout recorder: permission denied\n",
			want:    model.StatusError,
		},
		{
			name:    "agent loop death is an error",
			history: "something\nAgent Loop Died unexpectedly\n",
			want:    model.StatusError,
		},
		{
			name:    "trailing prompt line is ready",
			history: "Welcome to codex\ncodex> ",
			want:    model.StatusReady,
		},
		{
			name:    "banner text is ready",
			history: "100% context left\nType ? for shortcuts\n",
			want:    model.StatusReady,
		},
		{
			name:    "thinking banner is busy",
			history: "Type ? for shortcuts\nThinking…\nworking on it",
			want:    model.StatusRunning,
		},
		{
			name:    "plain output is busy",
			history: "compiling module graph",
			want:    model.StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyCodex(tt.history))
		})
	}
}

func TestCodexExtractLastMessage(t *testing.T) {
	d := &fakeDriver{}
	p := testCodex(d, Options{})

	history := "To get started, describe a task\n\n" +
		"I inspected the config loader and fixed the env override.\n" +
		"All four call sites now pass.\n\n" +
		"codex> "

	msg, err := p.ExtractLastMessage(history)
	require.NoError(t, err)
	assert.Equal(t, "I inspected the config loader and fixed the env override.\nAll four call sites now pass.", msg)
}

func TestCodexExtractLastMessageSkipsBanner(t *testing.T) {
	d := &fakeDriver{}
	p := testCodex(d, Options{})

	_, err := p.ExtractLastMessage("100% context left\n\ncodex> ")
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestCodexInitializeTimeoutCarriesDiagnostic(t *testing.T) {
	d := &fakeDriver{pane: "boot\nfatal error: cannot continue\n"}
	p := testCodex(d, Options{
		Bin:          "sh", // present on any PATH
		InitTimeout:  30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		StateRoot:    t.TempDir(),
	})

	err := p.Initialize(context.Background())
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, KindCodex, initErr.Kind)
	assert.False(t, initErr.Timeout)
	assert.Contains(t, initErr.Diagnostic, "fatal error")
}

func TestCodexInitializeTimeoutWithoutDiagnostic(t *testing.T) {
	d := &fakeDriver{pane: "still booting"}
	p := testCodex(d, Options{
		Bin:          "sh",
		InitTimeout:  30 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
		StateRoot:    t.TempDir(),
	})

	err := p.Initialize(context.Background())
	require.Error(t, err)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.True(t, initErr.Timeout)
}

func TestCodexBuildEnvPrefixIsolation(t *testing.T) {
	root := t.TempDir()
	p := testCodex(&fakeDriver{}, Options{StateRoot: root})

	prefix, err := p.buildEnvPrefix()
	require.NoError(t, err)
	require.NotEmpty(t, prefix)
	assert.Equal(t, "env", prefix[0])

	joined := ""
	for _, part := range prefix[1:] {
		joined += part + "\n"
	}
	assert.Contains(t, joined, "CODEX_DISABLE_RECORDER=1")
	assert.Contains(t, joined, "TMPDIR="+root)
	assert.DirExists(t, root+"/t-1/rollouts")
}

func TestCodexMissingBinary(t *testing.T) {
	p := testCodex(&fakeDriver{}, Options{
		Bin: "definitely-not-a-real-binary-xyz",
	})

	err := p.Initialize(context.Background())
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Contains(t, initErr.Diagnostic, "not found on PATH")
}
