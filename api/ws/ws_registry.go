package ws

import "sync"

// Registry tracks open connections so one user cannot hold an unbounded number
// of them.
type Registry struct {
	mu                    sync.Mutex
	userToClients         map[string]map[*Client]struct{}
	maxConnectionsPerUser int
}

func NewRegistry(maxConnectionsPerUser int) *Registry {
	return &Registry{
		userToClients:         make(map[string]map[*Client]struct{}),
		maxConnectionsPerUser: maxConnectionsPerUser,
	}
}

// Open registers client, or reports false if its user is at the limit.
func (r *Registry) Open(client *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.userToClients[client.user.Id]
	if !ok {
		clients = make(map[*Client]struct{})
		r.userToClients[client.user.Id] = clients
	}
	if r.maxConnectionsPerUser > 0 && len(clients) >= r.maxConnectionsPerUser {
		return false
	}
	clients[client] = struct{}{}
	return true
}

func (r *Registry) Close(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients, ok := r.userToClients[client.user.Id]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(r.userToClients, client.user.Id)
	}
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, clients := range r.userToClients {
		n += len(clients)
	}
	return n
}
