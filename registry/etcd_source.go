package registry

import (
	"context"
	"encoding/json"
	"net"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Prefix is where replicas register themselves in etcd:
//
//	Key:   /msgproxy/backends/{host:port}
//	Value: JSON-encoded Backend
//
// Replicas attach a TTL lease so a crashed replica's key expires on its own.
// The pool itself is append-only — expiry stops re-announcement, while the
// heartbeat sweep handles liveness of already-admitted replicas.
const Prefix = "/msgproxy/backends/"

// Backend is the value a replica writes under its key.
type Backend struct {
	Host string `json:"host"`
	Port string `json:"port"`
}

// EtcdSource discovers replicas from an etcd prefix: an initial scan, then a
// watch for keys appearing later. Each address is admitted at most once per
// process lifetime, matching the pool's append-only semantics.
type EtcdSource struct {
	client *clientv3.Client

	mu   sync.Mutex
	seen map[string]bool
}

// NewEtcdSource connects to the given etcd endpoints.
func NewEtcdSource(endpoints []string) (*EtcdSource, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdSource{
		client: c,
		seen:   make(map[string]bool),
	}, nil
}

// Run scans the prefix, then watches it until ctx is cancelled.
func (s *EtcdSource) Run(ctx context.Context, register RegisterFunc) error {
	resp, err := s.client.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}
	for _, kv := range resp.Kvs {
		s.admit(kv.Value, register)
	}

	watchChan := s.client.Watch(ctx, Prefix, clientv3.WithPrefix())
	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			return err
		}
		for _, ev := range watchResp.Events {
			if ev.Type != clientv3.EventTypePut {
				continue
			}
			s.admit(ev.Kv.Value, register)
		}
	}
	return ctx.Err()
}

// Close releases the etcd client.
func (s *EtcdSource) Close() error {
	return s.client.Close()
}

// admit decodes one value and registers it if well-formed and not yet seen.
func (s *EtcdSource) admit(value []byte, register RegisterFunc) {
	var b Backend
	if err := json.Unmarshal(value, &b); err != nil {
		return
	}
	if b.Host == "" || b.Port == "" {
		return
	}

	addr := net.JoinHostPort(b.Host, b.Port)
	s.mu.Lock()
	dup := s.seen[addr]
	s.seen[addr] = true
	s.mu.Unlock()
	if dup {
		return
	}
	register(b.Host, b.Port)
}
