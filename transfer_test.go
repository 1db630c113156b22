package ftpc

import (
	"bytes"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveBytes(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("hello world"))
	}

	c := dialMock(t, ms)

	data, err := c.RetrieveBytes("/pub/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	cmds := ms.commands()
	i := indexOf(cmds, "TYPE I")
	require.GreaterOrEqual(t, i, 0, "commands: %v", cmds)
	assert.Equal(t, []string{"TYPE I", "PASV", "RETR /pub/f.txt"}, cmds[i:])
}

func TestStoreBytes(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["STOR"] = func(c *textproto.Conn, args string) {
		ms.receiveData(c)
	}

	c := dialMock(t, ms, WithInitialDir("/home/user"))

	payload := bytes.Repeat([]byte("0123456789"), 1000)
	require.NoError(t, c.StoreBytes("up.bin", payload))
	assert.Equal(t, payload, ms.upload())
	assert.Contains(t, ms.commands(), "STOR /home/user/up.bin")
}

func TestTransfer_PRET(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.features = []string{"PRET"}
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("x"))
	}

	c := dialMock(t, ms)

	_, err := c.RetrieveBytes("/f")
	require.NoError(t, err)

	cmds := ms.commands()
	i := indexOf(cmds, "PRET RETR /f")
	require.GreaterOrEqual(t, i, 0, "commands: %v", cmds)
	assert.Equal(t, "PASV", cmds[i+1])
	assert.Equal(t, "RETR /f", cmds[i+2])
}

func TestTransfer_WithoutPRET(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.features = []string{"PRET"}
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("x"))
	}

	c := dialMock(t, ms, WithoutPRET())

	_, err := c.RetrieveBytes("/f")
	require.NoError(t, err)
	assert.Equal(t, 0, ms.count("PRET"))
}

func TestRetrieve_Rejected(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("550 %s: No such file or directory.", args)
	}

	c := dialMock(t, ms)

	_, err := c.RetrieveBytes("/missing")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 550, pe.Code)
	assert.Equal(t, "RETR /missing", pe.Command)

	// No stream was left open
	_, err = c.Do(NewCommand("NOOP"))
	assert.NoError(t, err)
}

func TestRetrieve_FailedAfterPreliminary(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("150 Opening BINARY mode data connection.")
		if dconn, err := ms.acceptData(); err == nil {
			_, _ = dconn.Write([]byte("partial"))
			dconn.Close()
		}
		_ = c.PrintfLine("426 Connection closed; transfer aborted.")
	}

	c := dialMock(t, ms)

	_, err := c.RetrieveBytes("/f")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 426, pe.Code)
	assert.True(t, pe.IsTemporary())
}

func TestRetrieve_DirectCompletion(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		if dconn, err := ms.acceptData(); err == nil {
			_, _ = dconn.Write([]byte("no preliminary reply"))
			dconn.Close()
		}
		_ = c.PrintfLine("226 Transfer complete.")
	}

	c := dialMock(t, ms)

	data, err := c.RetrieveBytes("/f")
	require.NoError(t, err)
	assert.Equal(t, "no preliminary reply", string(data))

	// The next reply belongs to the next command
	resp, err := c.Do(NewCommand("NOOP"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
}

func TestOpenRead_BlocksOtherCommands(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("streamed"))
	}

	c := dialMock(t, ms)

	s, err := c.OpenRead("/f")
	require.NoError(t, err)

	_, err = c.CurrentDir()
	assert.ErrorIs(t, err, ErrTransferInProgress)
	_, err = c.List("")
	assert.ErrorIs(t, err, ErrTransferInProgress)
	_, err = c.OpenRead("/g")
	assert.ErrorIs(t, err, ErrTransferInProgress)
	assert.Equal(t, 0, ms.count("PWD"))

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "streamed", string(data))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	resp, err := c.Do(NewCommand("NOOP"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Code)
}

func TestOpenWrite_Stream(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["STOR"] = func(c *textproto.Conn, args string) {
		ms.receiveData(c)
	}

	c := dialMock(t, ms)

	s, err := c.OpenWrite("/out.txt")
	require.NoError(t, err)
	_, err = io.WriteString(s, "first ")
	require.NoError(t, err)
	_, err = io.WriteString(s, "second")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, "first second", string(ms.upload()))
}

func TestQuit_AbortsStream(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("never read"))
	}

	c := dialMock(t, ms)

	s, err := c.OpenRead("/f")
	require.NoError(t, err)
	require.NoError(t, c.Quit())

	// The stream was dropped with the session
	assert.NoError(t, s.Close())
}

func TestRetrieveTo(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("file content"))
	}

	c := dialMock(t, ms)
	local := filepath.Join(t.TempDir(), "sub", "f.txt")

	require.NoError(t, c.RetrieveTo("/f.txt", local))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(got))
	assert.NoFileExists(t, local+".part")
}

func TestRetrieveTo_FailureLeavesNothing(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		_ = c.PrintfLine("550 No such file.")
	}

	c := dialMock(t, ms)
	local := filepath.Join(t.TempDir(), "f.txt")

	err := c.RetrieveTo("/missing", local)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.NoFileExists(t, local)
	assert.NoFileExists(t, local+".part")
}

func TestStoreFrom(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["STOR"] = func(c *textproto.Conn, args string) {
		ms.receiveData(c)
	}

	c := dialMock(t, ms)
	local := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(local, []byte("local data"), 0o644))

	require.NoError(t, c.StoreFrom("/in.txt", local))
	assert.Equal(t, "local data", string(ms.upload()))

	err := c.StoreFrom("/x", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, ms.count("STOR"))
}

func TestProgress(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	payload := bytes.Repeat([]byte("a"), 100_000)
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, payload)
	}

	var (
		mu    sync.Mutex
		calls int
		last  int64
		verb  string
		path  string
	)
	c := dialMock(t, ms, WithProgress(func(v, p string, n int64) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		last, verb, path = n, v, p
	}))

	_, err := c.RetrieveBytes("/big")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, calls)
	assert.Equal(t, int64(len(payload)), last)
	assert.Equal(t, "RETR", verb)
	assert.Equal(t, "/big", path)
}

func TestRestartAt(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.handlers["REST"] = func(c *textproto.Conn, args string) {
		if args == "0" {
			_ = c.PrintfLine("200 Odd but fine.")
			return
		}
		_ = c.PrintfLine("350 Restarting at %s.", args)
	}

	c := dialMock(t, ms)

	require.NoError(t, c.RestartAt(1024))
	assert.Contains(t, ms.commands(), "REST 1024")

	var pe *ProtocolError
	require.ErrorAs(t, c.RestartAt(0), &pe)
	assert.Equal(t, 200, pe.Code)
}

func TestBandwidthLimit_Unlimited(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["RETR"] = func(c *textproto.Conn, args string) {
		ms.sendData(c, []byte("fast"))
	}

	c := dialMock(t, ms, WithBandwidthLimit(0))

	data, err := c.RetrieveBytes("/f")
	require.NoError(t, err)
	assert.Equal(t, "fast", string(data))
}

func TestBandwidthLimit_Limited(t *testing.T) {
	t.Parallel()
	ms := newMockServer(t)
	ms.enablePassive()
	ms.handlers["STOR"] = func(c *textproto.Conn, args string) {
		ms.receiveData(c)
	}

	c := dialMock(t, ms, WithBandwidthLimit(64*1024))

	payload := bytes.Repeat([]byte("z"), 32*1024)
	require.NoError(t, c.StoreBytes("/f", payload))
	assert.Equal(t, payload, ms.upload())
}
