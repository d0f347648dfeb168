package navigator

import "sync"

// Subscription is the outside-interaction listener held while a menu is
// open. Done is closed when the menu closes.
type Subscription struct {
	menuID string
	done   chan struct{}
	once   sync.Once
}

// MenuID is the menu this subscription belongs to.
func (s *Subscription) MenuID() string { return s.menuID }

// Done is closed once the subscription is released.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) release() bool {
	released := false
	s.once.Do(func() {
		close(s.done)
		released = true
	})
	return released
}

// Menu tracks which dropdown or action menu of a screen is open. At most one
// menu is open, and only the open menu holds a subscription.
type Menu struct {
	mu     sync.Mutex
	openID string
	sub    *Subscription
	active int
}

// NewMenu returns a menu state with nothing open.
func NewMenu() *Menu {
	return &Menu{}
}

// OpenID is the open menu, or "" when none is open.
func (m *Menu) OpenID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openID
}

// Open opens id, closing any other open menu first. Reopening the already
// open menu returns its existing subscription.
func (m *Menu) Open(id string) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openID == id && m.sub != nil {
		return m.sub
	}
	return m.openLocked(id)
}

// Close closes the open menu, if any.
func (m *Menu) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// Toggle closes id if it is open and opens it otherwise. It returns the new
// subscription, or nil when the menu was closed.
func (m *Menu) Toggle(id string) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openID == id {
		m.closeLocked()
		return nil
	}
	return m.openLocked(id)
}

// Interact handles a click or focus on target. Interacting anywhere other
// than the open menu closes it. It reports whether a menu was closed.
func (m *Menu) Interact(target string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openID == "" || target == m.openID {
		return false
	}
	m.closeLocked()
	return true
}

// Escape closes the open menu. It reports whether a menu was closed.
func (m *Menu) Escape() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.openID == "" {
		return false
	}
	m.closeLocked()
	return true
}

// ActiveSubscriptions is the number of live subscriptions, zero or one.
func (m *Menu) ActiveSubscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Menu) openLocked(id string) *Subscription {
	m.closeLocked()
	if id == "" {
		return nil
	}
	m.openID = id
	m.sub = &Subscription{menuID: id, done: make(chan struct{})}
	m.active++
	return m.sub
}

func (m *Menu) closeLocked() {
	if m.sub != nil && m.sub.release() {
		m.active--
	}
	m.sub = nil
	m.openID = ""
}
