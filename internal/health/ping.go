package health

import "context"

// HealthPinger is implemented by any dependency that can answer a direct
// connectivity probe — the store, a broker connection, anything dialed over
// the network. HealthPing returns nil exactly when the dependency is
// reachable and responsive.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}
