package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommand(t *testing.T) {
	m := New()
	m.RecordCommand("USER", 331, 5*time.Millisecond)
	m.RecordCommand("USER", 331, 5*time.Millisecond)
	m.RecordCommand("CWD", 550, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues("USER", "331")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues("CWD", "550")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.CommandDuration))
}

func TestRecordTransfer(t *testing.T) {
	m := New()
	m.RecordTransfer("RETR", 1024, time.Second)
	m.RecordTransfer("RETR", 512, time.Second)
	m.RecordTransfer("MLSD", 100, 10*time.Millisecond)

	assert.Equal(t, 1536.0, testutil.ToFloat64(m.TransferBytes.WithLabelValues("RETR")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TransferBytes.WithLabelValues("MLSD")))
}

func TestRecordLogin(t *testing.T) {
	m := New()
	m.RecordLogin(true)
	m.RecordLogin(false)
	m.RecordLogin(false)

	expected := `
# HELP ftpc_session_logins_total Login attempts, by result.
# TYPE ftpc_session_logins_total counter
ftpc_session_logins_total{result="failure"} 2
ftpc_session_logins_total{result="success"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(m.Logins, strings.NewReader(expected)))
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration
	a := New()
	b := New()
	a.RecordLogin(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Logins.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Logins.WithLabelValues("success")))
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.RecordCommand("PWD", 257, time.Millisecond)

	path := filepath.Join(t.TempDir(), "ftpc.prom")
	require.NoError(t, m.WriteToTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `ftpc_control_commands_total{code="257",verb="PWD"} 1`)
}
