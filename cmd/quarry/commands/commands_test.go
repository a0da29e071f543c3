package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/cmd/quarry/commands"
	"go.trai.ch/quarry/internal/app"
	"go.trai.ch/quarry/internal/build"
)

type mockApp struct {
	buildFunc func(ctx context.Context, opts app.BuildOptions) (app.Report, error)
	watchFunc func(ctx context.Context, opts app.BuildOptions) error
	calls     []string
}

func (m *mockApp) Build(ctx context.Context, opts app.BuildOptions) (app.Report, error) {
	m.calls = append(m.calls, "build")
	if m.buildFunc != nil {
		return m.buildFunc(ctx, opts)
	}
	return app.Report{}, nil
}

func (m *mockApp) Watch(ctx context.Context, opts app.BuildOptions) error {
	m.calls = append(m.calls, "watch")
	if m.watchFunc != nil {
		return m.watchFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) Stats(context.Context) error {
	m.calls = append(m.calls, "stats")
	return nil
}

func (m *mockApp) Clean(context.Context) error {
	m.calls = append(m.calls, "clean")
	return nil
}

func (m *mockApp) Init(context.Context) error {
	m.calls = append(m.calls, "init")
	return nil
}

func TestCommands_Build(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.BuildOptions
		mock := &mockApp{
			buildFunc: func(_ context.Context, opts app.BuildOptions) (app.Report, error) {
				captured = opts
				return app.Report{}, nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"build", "docs", "notes/*.q", "-j", "3", "--no-incremental", "--verify", "--json-logs"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, app.BuildOptions{
			Roots:         []string{"docs", "notes/*.q"},
			Jobs:          3,
			NoIncremental: true,
			Verify:        true,
			JSONLogs:      true,
		}, captured)
	})

	t.Run("defaults leave the configuration alone", func(t *testing.T) {
		var captured app.BuildOptions
		mock := &mockApp{
			buildFunc: func(_ context.Context, opts app.BuildOptions) (app.Report, error) {
				captured = opts
				return app.Report{}, nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"build"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, app.BuildOptions{}, captured)
	})

	t.Run("returns error on build failure", func(t *testing.T) {
		mock := &mockApp{
			buildFunc: func(context.Context, app.BuildOptions) (app.Report, error) {
				return app.Report{}, errors.New("simulated error")
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"build"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})
}

func TestCommands_Watch(t *testing.T) {
	var captured app.BuildOptions
	mock := &mockApp{
		watchFunc: func(_ context.Context, opts app.BuildOptions) error {
			captured = opts
			return nil
		},
	}

	cli := commands.New(mock)
	cli.SetArgs([]string{"watch", "src", "--jobs", "2"})

	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, []string{"src"}, captured.Roots)
	assert.Equal(t, 2, captured.Jobs)
}

func TestCommands_CacheCommands(t *testing.T) {
	for _, name := range []string{"stats", "clean", "init"} {
		t.Run(name, func(t *testing.T) {
			mock := &mockApp{}
			cli := commands.New(mock)
			cli.SetArgs([]string{name})

			require.NoError(t, cli.Execute(context.Background()))
			assert.Equal(t, []string{name}, mock.calls)
		})
	}

	t.Run("reject arguments", func(t *testing.T) {
		mock := &mockApp{}
		cli := commands.New(mock)
		cli.SetArgs([]string{"clean", "extra"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		require.Error(t, cli.Execute(context.Background()))
		assert.Empty(t, mock.calls)
	})
}

func TestCommands_Version(t *testing.T) {
	mock := &mockApp{}
	cli := commands.New(mock)

	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version"})

	err := cli.Execute(context.Background())
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "quarry version "+build.Version)
	assert.Contains(t, buf.String(), "built with go")

	buf.Reset()
	cli = commands.New(mock)
	cli.SetOutput(buf, buf)
	cli.SetArgs([]string{"version", "--short"})
	require.NoError(t, cli.Execute(context.Background()))
	assert.Equal(t, build.Version+"\n", buf.String())
}
