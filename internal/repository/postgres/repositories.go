package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Clients  *ClientRepository
	Requests *RequestRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Clients:  NewClientRepository(pool),
		Requests: NewRequestRepository(pool),
	}
}
