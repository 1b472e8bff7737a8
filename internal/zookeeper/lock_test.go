package zookeeper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memConn 是内存中的 ZooKeeper 节点树，只实现锁用到的操作
type memConn struct {
	mu       sync.Mutex
	nodes    map[string]bool
	seq      int
	watchers map[string][]chan zk.Event
}

func newMemConn() *memConn {
	return &memConn{nodes: map[string]bool{}, watchers: map[string][]chan zk.Event{}}
}

func (c *memConn) Exists(path string) (bool, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[path], &zk.Stat{}, nil
}

func (c *memConn) Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nodes[path] {
		return "", zk.ErrNodeExists
	}
	c.nodes[path] = true
	return path, nil
}

func (c *memConn) CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dir, prefix := path[:strings.LastIndex(path, "/")], path[strings.LastIndex(path, "/")+1:]
	c.seq++
	// GUID 前缀使字典序与序号无关
	node := fmt.Sprintf("%s/_c_%s-%s%010d", dir, uuid.NewString(), prefix, c.seq)
	c.nodes[node] = true
	return node, nil
}

func (c *memConn) Children(path string) ([]string, *zk.Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for node := range c.nodes {
		if rest, ok := strings.CutPrefix(node, path+"/"); ok && !strings.Contains(rest, "/") {
			out = append(out, rest)
		}
	}
	return out, &zk.Stat{}, nil
}

func (c *memConn) ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.nodes[path] {
		return false, nil, nil, zk.ErrNoNode
	}
	ch := make(chan zk.Event, 1)
	c.watchers[path] = append(c.watchers[path], ch)
	return true, &zk.Stat{}, ch, nil
}

func (c *memConn) Delete(path string, version int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.nodes[path] {
		return zk.ErrNoNode
	}
	delete(c.nodes, path)
	for _, ch := range c.watchers[path] {
		ch <- zk.Event{Type: zk.EventNodeDeleted, Path: path}
	}
	delete(c.watchers, path)
	return nil
}

func TestDistributedLockCreatesParents(t *testing.T) {
	conn := newMemConn()
	_, err := NewDistributedLock(conn, "cola")
	require.NoError(t, err)
	assert.True(t, conn.nodes[lockRoot])
	assert.True(t, conn.nodes[lockRoot+"/cola"])

	_, err = NewDistributedLock(conn, "cola")
	assert.NoError(t, err)
}

func TestProductLockerMutualExclusion(t *testing.T) {
	locker := &ProductLocker{conn: newMemConn()}

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "콜라")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			holders++
			maxSeen = max(maxSeen, holders)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestProductLockerContextCancel(t *testing.T) {
	conn := newMemConn()
	locker := &ProductLocker{conn: conn}

	unlock, err := locker.Lock(context.Background(), "콜라")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "콜라")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	children, _, _ := conn.Children(lockRoot + "/%EC%BD%9C%EB%9D%BC")
	assert.Len(t, children, 1, "waiter removes its own node")
}

func TestUnlockWithoutLock(t *testing.T) {
	lock, err := NewDistributedLock(newMemConn(), "cola")
	require.NoError(t, err)
	assert.Error(t, lock.Unlock())
}

func TestSequenceOrdering(t *testing.T) {
	assert.Equal(t, "0000000002", sequence("_c_ffff-lock-0000000002"))
	assert.Less(t, sequence("_c_ffff-lock-0000000001"), sequence("_c_0000-lock-0000000002"))
}
