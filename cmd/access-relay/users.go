package main

import (
	"net/http"
	"sync"

	"github.com/eks-observability/access-relay/pkg/relay"
)

// sessionCookie names the logged-in demo user.
const sessionCookie = "relay_user"

// userDirectory is the demo account table: login name -> role. Accounts
// created through the register page are added at runtime.
type userDirectory struct {
	mu    sync.RWMutex
	roles map[string]string
}

func newUserDirectory(seed map[string]string) *userDirectory {
	roles := make(map[string]string, len(seed))
	for name, role := range seed {
		roles[name] = role
	}
	return &userDirectory{roles: roles}
}

func (d *userDirectory) lookup(name string) (*relay.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	role, ok := d.roles[name]
	if !ok {
		return nil, false
	}
	return &relay.Identity{DisplayName: name, Role: role}, true
}

// add registers name with role and reports whether it was new.
func (d *userDirectory) add(name, role string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.roles[name]; exists {
		return false
	}
	d.roles[name] = role
	return true
}

// identify resolves the session cookie to a known account.
func (d *userDirectory) identify(r *http.Request) *relay.Identity {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil
	}
	id, _ := d.lookup(c.Value)
	return id
}
