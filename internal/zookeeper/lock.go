// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	lockRoot    = "/checkout_locks" // 所有商品锁的根节点
	lockPrefix  = "lock-"
	lockTimeout = 30 * time.Second
)

// lockConn 是锁用到的 zk.Conn 方法子集
type lockConn interface {
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Delete(path string, version int32) error
}

// DistributedLock 定义了一个分布式锁对象
type DistributedLock struct {
	conn     lockConn
	path     string // 锁的路径，例如 /checkout_locks/콜라
	lockNode string // 成功获取锁后，自己创建的节点路径
	timeout  time.Duration
}

// NewDistributedLock 创建一个新的分布式锁实例，必要时创建父节点
func NewDistributedLock(conn lockConn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		if err := ensureNode(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath, timeout: lockTimeout}, nil
}

func ensureNode(conn lockConn, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return errors.Wrapf(err, "check node %s", path)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return errors.Wrapf(err, "create node %s", path)
	}
	return nil
}

// Lock 尝试获取锁，获取不到则阻塞等待，直到 ctx 结束或超时
func (l *DistributedLock) Lock(ctx context.Context) error {
	// 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/"+lockPrefix, []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath

	if err := l.wait(ctx); err != nil {
		_ = l.Unlock()
		return err
	}
	return nil
}

func (l *DistributedLock) wait(ctx context.Context) error {
	timeout := time.NewTimer(l.timeout)
	defer timeout.Stop()

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "get children nodes")
		}
		// protected 节点带有 GUID 前缀，只能按序号排序
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNodeName {
				idx = i
				break
			}
		}
		switch {
		case idx < 0:
			return errors.Errorf("lock node %s disappeared", l.lockNode)
		case idx == 0:
			return nil
		}

		// 监听前一个节点
		_, _, eventChan, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			if errors.Is(err, zk.ErrNoNode) {
				continue
			}
			return errors.Wrap(err, "watch previous node")
		}

		select {
		case <-eventChan:
			// 前一个节点被删除或状态变化，重新竞争
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return errors.Errorf("timeout waiting for lock %s", l.path)
		}
	}
}

// sequence 取节点名末尾的 10 位序号
func sequence(node string) string {
	if i := strings.LastIndex(node, lockPrefix); i >= 0 {
		return node[i+len(lockPrefix):]
	}
	return node
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// ProductLocker 用 ZooKeeper 顺序临时节点实现按商品加锁，适用于多实例部署
type ProductLocker struct {
	conn lockConn
}

func NewProductLocker(conn *Conn) *ProductLocker {
	return &ProductLocker{conn: conn}
}

func (p *ProductLocker) Lock(ctx context.Context, productName string) (func(), error) {
	lock, err := NewDistributedLock(p.conn, url.PathEscape(productName))
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "acquire zookeeper lock for %s", productName)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Unlock(); err != nil {
				log.Error().Err(err).Str("product", productName).Msg("failed to release zookeeper lock")
			}
		})
	}, nil
}
