// Package identity holds the authenticated user of a session and lets other
// components follow login and logout.
package identity

import (
	"sync"

	"github.com/emmy19999/bingham-bites/internal/service/models/user"
)

// Change is the identity state after a login or logout.
type Change struct {
	User     user.User
	LoggedIn bool
}

// Provider is safe for concurrent use.
//
// Watch channels hold only the latest Change: a slow watcher skips
// intermediate states but always observes the final one.
type Provider struct {
	mu       sync.RWMutex
	current  *user.User
	watchers map[int]chan Change
	nextID   int
}

func NewProvider() *Provider {
	return &Provider{
		watchers: make(map[int]chan Change),
	}
}

// CurrentUser returns the logged-in user, if any.
func (p *Provider) CurrentUser() (user.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return user.User{}, false
	}

	return *p.current, true
}

func (p *Provider) Login(u user.User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = &u
	p.broadcastLocked(Change{User: u, LoggedIn: true})
}

func (p *Provider) Logout() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.current = nil
	p.broadcastLocked(Change{})
}

// Watch returns a channel primed with the current state and a func that
// stops watching and closes the channel.
func (p *Provider) Watch() (<-chan Change, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Change, 1)
	if p.current != nil {
		ch <- Change{User: *p.current, LoggedIn: true}
	} else {
		ch <- Change{}
	}

	id := p.nextID
	p.nextID++
	p.watchers[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()

			delete(p.watchers, id)
			close(ch)
		})
	}
}

func (p *Provider) broadcastLocked(c Change) {
	for _, ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- c
	}
}
