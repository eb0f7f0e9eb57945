// Package mapred implements the job execution layer: the job manager, the
// worker daemons and the job client that dispatches map tasks to the daemon
// co-located with each input chunk.
package mapred

import (
	"sync"

	"github.com/vaflag/hidoop/format"
)

// MapReduce is a user job. The map reader is nil for generator jobs.
type MapReduce interface {
	Map(reader format.Reader, writer format.Writer) error
	Reduce(reader format.Reader, writer format.Writer) error
}

// Functions are shipped by name, not by value: every node taking part in a
// job must have the function registered under the same name.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]MapReduce)
)

// Register makes a map/reduce function available under name. Registering a
// name twice replaces the previous function.
func Register(name string, fn MapReduce) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Lookup resolves a registered function.
func Lookup(name string) (MapReduce, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}
