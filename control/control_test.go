package control_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bnkr/nerve/control"
)

const (
	timeout = 2 * time.Second
	tick    = time.Millisecond
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func warned(hook *test.Hook, command string) func() bool {
	return func() bool {
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.WarnLevel && e.Data["command"] == command {
				return true
			}
		}
		return false
	}
}

func listen(t *testing.T, options ...control.Option) (string, *test.Hook, chan struct{}, *control.Server) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	path := filepath.Join(t.TempDir(), "nerve.sock")
	shutdown := make(chan struct{})
	s := control.New(path, func() { close(shutdown) }, append([]control.Option{control.WithLogger(logger)}, options...)...)
	require.NoError(t, s.Listen())
	return path, hook, shutdown, s
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	c, err := net.Dial("unix", path)
	require.NoError(t, err)
	return c
}

func TestServer(t *testing.T) {
	path, hook, shutdown, s := listen(t)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode()&os.ModeSocket)
	assert.Zero(t, info.Mode().Perm()&0o077)

	c := dial(t, path)
	_, err = c.Write([]byte("HELLO"))
	require.NoError(t, err)
	require.Eventually(t, warned(hook, "HELLO"), timeout, tick)

	// BYE closes only this connection
	_, err = c.Write([]byte(control.Bye))
	require.NoError(t, err)
	require.NoError(t, c.SetReadDeadline(time.Now().Add(timeout)))
	_, err = c.Read(make([]byte, 1))
	assert.Error(t, err)
	c.Close()

	c = dial(t, path)
	_, err = c.Write([]byte(control.Shutdown + "\n"))
	require.NoError(t, err)
	select {
	case <-shutdown:
	case <-time.After(timeout):
		t.Fatal("shutdown was not requested")
	}
	c.Close()

	require.NoError(t, s.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestServerConnectionLimit(t *testing.T) {
	path, hook, shutdown, s := listen(t, control.WithConnections(1))
	defer s.Close()

	first := dial(t, path)
	defer first.Close()
	_, err := first.Write([]byte("PING"))
	require.NoError(t, err)
	require.Eventually(t, warned(hook, "PING"), timeout, tick)

	second := dial(t, path)
	defer second.Close()
	_, err = second.Write([]byte(control.Shutdown))
	require.NoError(t, err)
	select {
	case <-shutdown:
		t.Fatal("second client served while the first is connected")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = first.Write([]byte(control.Bye))
	require.NoError(t, err)
	select {
	case <-shutdown:
	case <-time.After(timeout):
		t.Fatal("second client was not served")
	}
}

// Close disconnects clients that are still connected.
func TestServerCloseWithClients(t *testing.T) {
	path, hook, _, s := listen(t)
	c := dial(t, path)
	defer c.Close()
	_, err := c.Write([]byte("WAIT"))
	require.NoError(t, err)
	require.Eventually(t, warned(hook, "WAIT"), timeout, tick)
	require.NoError(t, s.Close())
}
