// Package registry feeds backend addresses into the replica pool from
// sources other than the wire-level REGISTER operation: a static seed list
// from configuration, or an etcd prefix the replicas register under.
// Discovery complements self-registration, it never replaces it.
package registry

import (
	"context"
	"net"
)

// RegisterFunc admits one replica address into the pool. It is the same
// entry point the REGISTER session handler uses, so a discovered replica
// starts in the REGISTERED state like any other.
type RegisterFunc func(host, port string)

// Source is a stream of backend addresses.
type Source interface {
	// Run feeds addresses to register until ctx is cancelled or the
	// source is exhausted.
	Run(ctx context.Context, register RegisterFunc) error
}

// StaticSource registers a fixed address list once. It covers deployments
// where replicas are provisioned ahead of the proxy and cannot self-register
// before it is up.
type StaticSource struct {
	Addrs []string
}

// Run registers every well-formed host:port in the list, skipping the rest.
func (s *StaticSource) Run(ctx context.Context, register RegisterFunc) error {
	for _, addr := range s.Addrs {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		register(host, port)
	}
	return nil
}
