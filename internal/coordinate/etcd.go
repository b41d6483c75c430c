// Package coordinate shards the heartbeat scanner across ingress
// replicas by consistent hashing a subject ID against the set of live
// replica instance IDs registered in etcd, so only one replica raises or
// resolves a given subject's staleness alert on any given tick.
package coordinate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	instancePrefix    = "/fleetwatch/ingress-replicas/"
	defaultLeaseTTL   = 15
	heartbeatInterval = 10 * time.Second
)

// EtcdClient wraps the subset of the etcd v3 client coordination needs.
type EtcdClient struct {
	cli *clientv3.Client
}

// EtcdConfig configures the etcd client.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
}

// NewEtcdClient dials etcd at the given endpoints.
func NewEtcdClient(cfg EtcdConfig) (*EtcdClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("coordinate: etcd endpoints cannot be empty")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("coordinate: dialing etcd: %w", err)
	}
	return &EtcdClient{cli: cli}, nil
}

// Close releases the underlying etcd connection.
func (c *EtcdClient) Close() error { return c.cli.Close() }

type replicaInfo struct {
	InstanceID    string    `json:"instance_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Registry registers this ingress replica's liveness in etcd under a
// lease, and lists the currently-live replicas, itself included.
type Registry struct {
	client     *EtcdClient
	instanceID string
	leaseID    clientv3.LeaseID
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewRegistry builds a Registry for one ingress replica.
func NewRegistry(client *EtcdClient, instanceID string) *Registry {
	return &Registry{client: client, instanceID: instanceID, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Start grants a lease, registers this replica, and begins the
// keep-alive loop that renews it until Stop is called.
func (r *Registry) Start(ctx context.Context) error {
	resp, err := r.client.cli.Grant(ctx, defaultLeaseTTL)
	if err != nil {
		return fmt.Errorf("coordinate: granting lease: %w", err)
	}
	r.leaseID = resp.ID

	if err := r.register(ctx); err != nil {
		return fmt.Errorf("coordinate: registering replica: %w", err)
	}

	go r.heartbeatLoop(ctx)
	return nil
}

// Stop deregisters this replica by revoking its lease.
func (r *Registry) Stop(ctx context.Context) error {
	close(r.stopCh)
	<-r.doneCh
	if r.leaseID != 0 {
		if _, err := r.client.cli.Revoke(ctx, r.leaseID); err != nil {
			return fmt.Errorf("coordinate: revoking lease: %w", err)
		}
	}
	return nil
}

func (r *Registry) register(ctx context.Context) error {
	data, err := json.Marshal(replicaInfo{InstanceID: r.instanceID, LastHeartbeat: time.Now()})
	if err != nil {
		return err
	}
	_, err = r.client.cli.Put(ctx, instancePrefix+r.instanceID, string(data), clientv3.WithLease(r.leaseID))
	return err
}

func (r *Registry) heartbeatLoop(ctx context.Context) {
	defer close(r.doneCh)

	keepAlive, err := r.client.cli.KeepAlive(ctx, r.leaseID)
	if err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.register(ctx)
		case _, ok := <-keepAlive:
			if !ok {
				return
			}
		}
	}
}

// ListInstances returns the instance IDs of every currently-live ingress replica.
func (r *Registry) ListInstances(ctx context.Context) ([]string, error) {
	resp, err := r.client.cli.Get(ctx, instancePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("coordinate: listing replicas: %w", err)
	}
	ids := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info replicaInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			continue
		}
		ids = append(ids, info.InstanceID)
	}
	return ids, nil
}

// WatchInstances streams the live replica ID list every time it changes.
func (r *Registry) WatchInstances(ctx context.Context) (<-chan []string, error) {
	out := make(chan []string)

	initial, err := r.ListInstances(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case out <- initial:
		case <-ctx.Done():
		}
	}()

	watch := r.client.cli.Watch(ctx, instancePrefix, clientv3.WithPrefix())
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case resp, ok := <-watch:
				if !ok {
					return
				}
				if resp.Err() != nil {
					continue
				}
				ids, err := r.ListInstances(ctx)
				if err != nil {
					continue
				}
				select {
				case out <- ids:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
