package onion

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKey(t *testing.T) {
	path := keyPath(t.TempDir())

	created, err := loadOrCreateKey(path, nil)
	require.NoError(t, err)
	assert.Len(t, created, ed25519.PrivateKeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(ed25519.SeedSize), info.Size())

	loaded, err := loadOrCreateKey(path, nil)
	require.NoError(t, err)
	assert.Equal(t, created, loaded)
}

func TestLoadOrCreateKey_FullKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), keyFileName)
	_, key, err := ed25519.GenerateKey(bytes.NewReader(make([]byte, 64)))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, key, 0o600))

	loaded, err := loadOrCreateKey(path, nil)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestLoadOrCreateKey_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), keyFileName)
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := loadOrCreateKey(path, nil)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestRollingBackup(t *testing.T) {
	dir := t.TempDir()
	base := time.Unix(1700000000, 0)

	// 源文件不存在时不创建备份目录
	require.NoError(t, rollingBackup(dir, keyFileName, 20, base))
	_, err := os.Stat(filepath.Join(dir, backupDirName))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("secret"), 0o600))
	for i := range 25 {
		require.NoError(t, rollingBackup(dir, keyFileName, 20, base.Add(time.Duration(i)*time.Second)))
	}

	entries, err := os.ReadDir(filepath.Join(dir, backupDirName))
	require.NoError(t, err)
	require.Len(t, entries, 20)

	// 最旧的 5 份被删除
	oldest := fmt.Sprintf("%s_%d", keyFileName, base.Add(5*time.Second).UnixNano())
	assert.Equal(t, oldest, entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, backupDirName, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(data))
}

func TestRollingBackup_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	backupDir := filepath.Join(dir, backupDirName)
	require.NoError(t, os.MkdirAll(backupDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, "notes.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(backupDir, keyFileName+"_garbage"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("k"), 0o600))

	now := time.Unix(1700000000, 0)
	require.NoError(t, rollingBackup(dir, keyFileName, 1, now))
	require.NoError(t, rollingBackup(dir, keyFileName, 1, now.Add(time.Second)))

	entries, err := os.ReadDir(backupDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"notes.txt",
		keyFileName + "_garbage",
		fmt.Sprintf("%s_%d", keyFileName, now.Add(time.Second).UnixNano()),
	}, names)
}

func TestIsolationAuth(t *testing.T) {
	a, err := isolationAuth(bytes.NewReader(bytes.Repeat([]byte{1}, isolationTagBytes)))
	require.NoError(t, err)
	b, err := isolationAuth(bytes.NewReader(bytes.Repeat([]byte{2}, isolationTagBytes)))
	require.NoError(t, err)

	assert.Len(t, a.User, 64)
	assert.Equal(t, a.User, a.Password)
	assert.NotEqual(t, a.User, b.User)

	_, err = isolationAuth(bytes.NewReader(make([]byte, 10)))
	assert.Error(t, err)
}

func TestDaemonPool_RefCount(t *testing.T) {
	pool := &DaemonPool{}
	daemon := &fakeDaemon{}
	f := &factory{daemon: daemon}

	h1, err := pool.Acquire(context.Background(), f.start, Config{})
	require.NoError(t, err)
	h2, err := pool.Acquire(context.Background(), f.start, Config{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 2, pool.Refs())
	assert.Same(t, h1.Daemon(), h2.Daemon())

	require.NoError(t, h1.Release())
	require.NoError(t, h1.Release())
	assert.Equal(t, 1, pool.Refs())
	assert.False(t, daemon.closed.Load())

	require.NoError(t, h2.Release())
	assert.Equal(t, 0, pool.Refs())
	assert.True(t, daemon.closed.Load())

	_, err = pool.Acquire(context.Background(), nil, Config{})
	assert.ErrorIs(t, err, ErrNilFactory)
}
