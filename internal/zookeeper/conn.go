// internal/zookeeper/conn.go
package zookeeper

import (
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Conn 是对 zk.Conn 的简单封装
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群并等待会话建立
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("no zookeeper servers configured")
	}
	c, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				log.Info().Strs("servers", servers).Msg("zookeeper session established")
				return &Conn{Conn: c}, nil
			}
		case <-timeout:
			c.Close()
			return nil, errors.Errorf("zookeeper session not established within %s", sessionTimeout)
		}
	}
}
