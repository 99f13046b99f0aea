// internal/pkg/session/manager.go
package session

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:gateway:"
	sessionTTL       = 24 * time.Hour
)

// Manager 维护 用户 -> 推送网关节点 的会话映射。
// 多个网关节点水平扩容时，路由方用它找到用户当前连在哪个节点上。
type Manager struct {
	rdb *goredis.Client
}

// NewManager 创建一个会话管理器。
func NewManager(redisAddr string) *Manager {
	return &Manager{
		rdb: goredis.NewClient(&goredis.Options{Addr: redisAddr}),
	}
}

// SetUserGateway 记录用户当前连接的网关节点。
func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return m.rdb.Set(ctx, sessionKeyPrefix+userID, nodeID, sessionTTL).Err()
}

// GetUserGateway 查询用户当前连接的网关节点。
func (m *Manager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	nodeID, err := m.rdb.Get(ctx, sessionKeyPrefix+userID).Result()
	if err == goredis.Nil {
		return "", fmt.Errorf("no active session for user %s", userID)
	}
	return nodeID, err
}

// RemoveUserGateway 在连接断开时清除映射。
func (m *Manager) RemoveUserGateway(ctx context.Context, userID string) error {
	return m.rdb.Del(ctx, sessionKeyPrefix+userID).Err()
}
