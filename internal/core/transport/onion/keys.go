package onion

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	// keyDirName 私钥所在子目录
	keyDirName = "hiddenservice"

	// keyFileName 私钥文件名，内容为 32 字节 ed25519 种子
	keyFileName = "private_key"

	// backupDirName 滚动备份子目录
	backupDirName = "backup"
)

// keyPath 私钥文件路径
func keyPath(dir string) string {
	return filepath.Join(dir, keyDirName, keyFileName)
}

// loadOrCreateKey 读取私钥，不存在时生成并写入
func loadOrCreateKey(path string, rnd io.Reader) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		switch len(data) {
		case ed25519.SeedSize:
			return ed25519.NewKeyFromSeed(data), nil
		case ed25519.PrivateKeySize:
			return ed25519.PrivateKey(data), nil
		default:
			return nil, fmt.Errorf("%w: %s has %d bytes", ErrInvalidKey, path, len(data))
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read key: %w", err)
	}

	_, key, err := ed25519.GenerateKey(rnd)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, key.Seed(), 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	logger.Info("已生成新的隐藏服务私钥", "path", path)
	return key, nil
}

// rollingBackup 把 dir/name 复制到 dir/backup/name_<纳秒时间戳>，只保留最新的 keep 份
//
// 源文件不存在时什么都不做。
func rollingBackup(dir, name string, keep int, now time.Time) error {
	src := filepath.Join(dir, name)
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	backupDir := filepath.Join(dir, backupDirName)
	if err := os.MkdirAll(backupDir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	dst := filepath.Join(backupDir, fmt.Sprintf("%s_%d", name, now.UnixNano()))
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	return pruneBackups(backupDir, name, keep)
}

// pruneBackups 删除最旧的备份，直到剩余 keep 份
func pruneBackups(backupDir, name string, keep int) error {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	type backup struct {
		path string
		ts   int64
	}
	prefix := name + "_"
	var backups []backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), prefix), 10, 64)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: filepath.Join(backupDir, e.Name()), ts: ts})
	}
	if len(backups) <= keep {
		return nil
	}

	slices.SortFunc(backups, func(a, b backup) int {
		switch {
		case a.ts < b.ts:
			return -1
		case a.ts > b.ts:
			return 1
		default:
			return 0
		}
	})
	for _, b := range backups[:len(backups)-keep] {
		if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove backup: %w", err)
		}
	}
	return nil
}
