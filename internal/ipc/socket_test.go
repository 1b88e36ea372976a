package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireBindsFreshPath(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "nested", "wakeproof.sock")
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer listener.Close()

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(socketPath))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestAcquireReplacesStaleSocket(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "wakeproof.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	var stale []string
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 50 * time.Millisecond,
		Retries:      2,
		OnStale: func(_ context.Context, path string) {
			stale = append(stale, path)
		},
	})
	require.NoError(t, err)
	defer listener.Close()

	require.Equal(t, []string{socketPath}, stale)
}

func TestAcquireStaleSocketWithoutRetriesFails(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "wakeproof.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	_, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 0 retries")

	// The stale file is gone, so the next owner binds on the first try.
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, listener.Close())
}

func TestAcquireReturnsAlreadyRunningWhenSocketResponsive(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "wakeproof.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- Serve(ctx, listener, HandlerFunc(func(_ context.Context, _ Request) Response {
			return Response{OK: true, State: "idle"}
		}))
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 80 * time.Millisecond, Retries: 1})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	cancel()
	require.NoError(t, <-serverDone)
}

func TestAcquireDoesNotUnlinkWhenProbeInconclusive(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "wakeproof.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				time.Sleep(250 * time.Millisecond)
			}(conn)
		}
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, statErr := os.Stat(socketPath)
	require.NoError(t, statErr)
	require.NoError(t, listener.Close())
	<-acceptDone
}

func TestAcquireHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "wakeproof.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("stale"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Acquire(ctx, socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond, Retries: 3})
	require.Error(t, err)
}

func TestRuntimeSocketPath(t *testing.T) {
	t.Setenv("WAKEPROOF_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, "/run/user/1000/wakeproof.sock", path)

	t.Setenv("WAKEPROOF_SOCKET", "/tmp/wp/../wp.sock")
	path, err = RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/wp.sock", path)
}

func TestRuntimeSocketPathRequiresXDG(t *testing.T) {
	t.Setenv("WAKEPROOF_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.Error(t, err)
}
