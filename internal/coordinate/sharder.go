package coordinate

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
)

// InstanceWatcher supplies the live replica ID list, either from an etcd
// Registry or a fixed single-instance stub for tests and single-replica
// deployments.
type InstanceWatcher interface {
	WatchInstances(ctx context.Context) (<-chan []string, error)
}

// Sharder assigns each heartbeat subject to exactly one live ingress
// replica via consistent hashing, so the heartbeat scanner's raise/resolve
// decisions never race across replicas without needing a per-tick
// distributed lock.
type Sharder struct {
	instanceID string

	mu        sync.RWMutex
	instances []string
}

// NewSharder builds a Sharder for one replica. Call Watch to start
// tracking the live replica set; until the first update arrives, the
// sharder assumes it is the only instance.
func NewSharder(instanceID string) *Sharder {
	return &Sharder{instanceID: instanceID, instances: []string{instanceID}}
}

// Watch subscribes to watcher's live-instance stream and updates the
// sharder's view as replicas join or leave. It returns once the
// subscription is established; updates continue in the background until
// ctx is done.
func (s *Sharder) Watch(ctx context.Context, watcher InstanceWatcher) error {
	updates, err := watcher.WatchInstances(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ids := range updates {
			s.update(ids)
		}
	}()
	return nil
}

func (s *Sharder) update(instanceIDs []string) {
	sorted := make([]string, len(instanceIDs))
	copy(sorted, instanceIDs)
	sort.Strings(sorted)

	s.mu.Lock()
	s.instances = sorted
	s.mu.Unlock()
}

// Owns reports whether this replica is responsible for subjectID.
func (s *Sharder) Owns(subjectID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.instances) <= 1 {
		return true
	}
	return s.instances[assignedIndex(subjectID, len(s.instances))] == s.instanceID
}

// InstanceCount returns the number of replicas currently known to be live.
func (s *Sharder) InstanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

func assignedIndex(subjectID string, instanceCount int) int {
	h := fnv.New64a()
	h.Write([]byte(subjectID))
	return int(h.Sum64() % uint64(instanceCount))
}
