package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startListener(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var conns []net.Conn
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = l.Close()
		wg.Wait()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return l.Addr().String()
}

func runProbe(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), err
}

func TestProbe(t *testing.T) {
	addr := startListener(t)

	out, err := runProbe(t, "--rounds", "3", addr)
	require.NoError(t, err)
	assert.Contains(t, out, addr+"\tin_use=0")
	assert.Contains(t, out, "requests=3 acquired=3 created=1 evicted=0 idle=1")
}

func TestProbeWithConfig(t *testing.T) {
	addr := startListener(t)
	path := filepath.Join(t.TempDir(), "pool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_connections_per_address: 1\n"), 0o600))

	out, err := runProbe(t, "--config", path, "--rounds", "2", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "created=1")
}

func TestProbeErrors(t *testing.T) {
	tests := []struct {
		desc string
		args []string
	}{
		{desc: "no address", args: []string{}},
		{desc: "bad address", args: []string{"localhost"}},
		{desc: "bad rounds", args: []string{"--rounds", "0", "127.0.0.1:1"}},
		{desc: "missing config", args: []string{"--config", "/nonexistent/pool.yaml", "127.0.0.1:1"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.desc, func(t *testing.T) {
			_, err := runProbe(t, tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestProbeUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	out, err := runProbe(t, addr)
	require.Error(t, err)
	assert.Contains(t, out, "created=0")
}
