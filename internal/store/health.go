package store

import "context"

// Healthy runs a trivial query to confirm the database connection is
// usable. It backs the storage health check registered with the
// telemetry health registry.
func (c *conn) Healthy(ctx context.Context) error {
	var one int
	return c.queryRow(`select 1;`).Scan(&one)
}

// NewCustomHealthCheckFunc adapts Storage.Healthy to the shape
// go-sundheit's checks.CustomCheck expects.
func NewCustomHealthCheckFunc(s Storage) func(context.Context) (interface{}, error) {
	return func(ctx context.Context) (interface{}, error) {
		if err := s.Healthy(ctx); err != nil {
			return nil, err
		}
		return "ok", nil
	}
}
