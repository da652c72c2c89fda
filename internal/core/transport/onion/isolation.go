package onion

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/net/proxy"
)

// isolationTagBytes 流隔离标签的随机字节数
const isolationTagBytes = 512

// isolationAuth 生成一次性的 SOCKS 身份
//
// 随机 512 字节经 base64 编码后取 SHA-256；SOCKS5 用户名最长 255 字节。
func isolationAuth(rnd io.Reader) (*proxy.Auth, error) {
	buf := make([]byte, isolationTagBytes)
	if _, err := io.ReadFull(rnd, buf); err != nil {
		return nil, fmt.Errorf("isolation tag: %w", err)
	}
	sum := sha256.Sum256([]byte(base64.StdEncoding.EncodeToString(buf)))
	tag := hex.EncodeToString(sum[:])
	return &proxy.Auth{User: tag, Password: tag}, nil
}
