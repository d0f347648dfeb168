package navigator

import (
	"sync"
	"testing"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestMenu_openAndClose(t *testing.T) {
	m := NewMenu()

	sub := m.Open("row-actions:ORD-1")
	if sub == nil {
		t.Fatal("Open() returned nil subscription")
	}
	if m.OpenID() != "row-actions:ORD-1" {
		t.Errorf("OpenID() = %q", m.OpenID())
	}
	if m.ActiveSubscriptions() != 1 {
		t.Errorf("ActiveSubscriptions() = %d, want 1", m.ActiveSubscriptions())
	}
	if isClosed(sub.Done()) {
		t.Error("subscription released while menu open")
	}

	m.Close()

	if m.OpenID() != "" {
		t.Errorf("OpenID() = %q after Close, want empty", m.OpenID())
	}
	if !isClosed(sub.Done()) {
		t.Error("subscription not released on Close")
	}
	if m.ActiveSubscriptions() != 0 {
		t.Errorf("ActiveSubscriptions() = %d, want 0", m.ActiveSubscriptions())
	}
}

func TestMenu_openingAnotherReleasesPrevious(t *testing.T) {
	m := NewMenu()
	first := m.Open("status-filter")
	second := m.Open("row-actions:ORD-2")

	if !isClosed(first.Done()) {
		t.Error("first subscription still live")
	}
	if isClosed(second.Done()) {
		t.Error("second subscription released")
	}
	if second.MenuID() != "row-actions:ORD-2" {
		t.Errorf("MenuID() = %q", second.MenuID())
	}
	if m.ActiveSubscriptions() != 1 {
		t.Errorf("ActiveSubscriptions() = %d, want 1", m.ActiveSubscriptions())
	}
}

func TestMenu_reopenSameMenuKeepsSubscription(t *testing.T) {
	m := NewMenu()
	first := m.Open("status-filter")
	again := m.Open("status-filter")

	if first != again {
		t.Error("reopening the open menu created a new subscription")
	}
	if m.ActiveSubscriptions() != 1 {
		t.Errorf("ActiveSubscriptions() = %d, want 1", m.ActiveSubscriptions())
	}
}

func TestMenu_interact(t *testing.T) {
	m := NewMenu()
	sub := m.Open("status-filter")

	if m.Interact("status-filter") {
		t.Error("Interact(inside) closed the menu")
	}
	if !m.Interact("table-body") {
		t.Error("Interact(outside) did not close the menu")
	}
	if !isClosed(sub.Done()) {
		t.Error("subscription not released after outside interaction")
	}
	if m.Interact("anything") {
		t.Error("Interact() with nothing open reported a close")
	}
}

func TestMenu_escapeAndToggle(t *testing.T) {
	m := NewMenu()

	if m.Escape() {
		t.Error("Escape() with nothing open reported a close")
	}

	m.Toggle("sort")
	if m.OpenID() != "sort" {
		t.Fatalf("Toggle() did not open, OpenID() = %q", m.OpenID())
	}
	m.Toggle("sort")
	if m.OpenID() != "" {
		t.Fatalf("Toggle() did not close, OpenID() = %q", m.OpenID())
	}

	m.Open("sort")
	if !m.Escape() {
		t.Error("Escape() did not close the menu")
	}
	if m.ActiveSubscriptions() != 0 {
		t.Errorf("ActiveSubscriptions() = %d, want 0", m.ActiveSubscriptions())
	}
}

func TestMenu_openEmptyIDCloses(t *testing.T) {
	m := NewMenu()
	m.Open("sort")

	if sub := m.Open(""); sub != nil {
		t.Errorf("Open(\"\") = %v, want nil", sub)
	}
	if m.OpenID() != "" {
		t.Errorf("OpenID() = %q, want empty", m.OpenID())
	}
}

func TestMenu_concurrentTogglesPair(t *testing.T) {
	m := NewMenu()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Toggle("sort")
		}()
	}
	wg.Wait()

	if m.OpenID() != "" {
		t.Errorf("OpenID() = %q after an even number of toggles, want empty", m.OpenID())
	}
	if m.ActiveSubscriptions() != 0 {
		t.Errorf("ActiveSubscriptions() = %d, want 0", m.ActiveSubscriptions())
	}
}
