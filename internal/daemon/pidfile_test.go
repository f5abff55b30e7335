package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is high enough that no process should own it.
const deadPID = 999999

func newTestPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "campusreport-serve.pid"))
}

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := newTestPIDFile(t)

	require.NoError(t, pf.WritePID(12345))

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_MissingFile(t *testing.T) {
	pf := newTestPIDFile(t)

	_, err := pf.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, os.WriteFile(pf.Path, []byte("not-a-number\n"), 0o644))

	_, err := pf.Read()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file content")
}

func TestPIDFile_Acquire(t *testing.T) {
	pf := newTestPIDFile(t)

	require.NoError(t, pf.Acquire())

	pid, running := pf.IsRunning()
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Acquire_TakesOverStaleFile(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	require.NoError(t, pf.Acquire())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Acquire_LiveOwner(t *testing.T) {
	pf := newTestPIDFile(t)
	// The parent (go test) is alive and is not us.
	require.NoError(t, pf.WritePID(os.Getppid()))

	err := pf.Acquire()
	var running *AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, os.Getppid(), running.PID)
}

func TestPIDFile_Release(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, pf.Acquire())

	require.NoError(t, pf.Release())

	_, err := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestPIDFile_Release_OtherOwner(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	require.NoError(t, pf.Release())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, deadPID, pid)
}

func TestPIDFile_Release_NoFile(t *testing.T) {
	pf := newTestPIDFile(t)
	assert.NoError(t, pf.Release())
}

func TestPIDFile_IsRunning_DeadProcess(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	pid, running := pf.IsRunning()
	assert.Equal(t, deadPID, pid)
	assert.False(t, running)
}

func TestPIDFile_IsRunning_NoFile(t *testing.T) {
	pf := newTestPIDFile(t)

	pid, running := pf.IsRunning()
	assert.Equal(t, 0, pid)
	assert.False(t, running)
}

func TestPIDFile_Stop_NotRunning(t *testing.T) {
	pf := newTestPIDFile(t)
	require.NoError(t, pf.WritePID(deadPID))

	_, err := pf.Stop(time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr), "stale PID file should be cleaned up")
}
