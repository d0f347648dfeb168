package definition

import (
	"sync"
	"testing"

	"github.com/pitabwire/opsdesk/model"
)

func testDefs() []model.DomainDefinition {
	return []model.DomainDefinition{
		{
			Domain:   "orders",
			Version:  "1.0.0",
			Checksum: "abc123",
			Screens: []model.ScreenDefinition{
				{ID: "orders", Title: "Orders"},
				{ID: "bids", Title: "Bids", DataSource: model.DataSourceDefinition{Type: model.DataSourcePostgres}},
			},
		},
		{
			Domain:   "wallets",
			Version:  "1.0.0",
			Checksum: "def456",
			Screens: []model.ScreenDefinition{
				{ID: "wallet_transactions", Title: "Transactions"},
			},
		},
	}
}

func TestRegistry_GetDomain(t *testing.T) {
	r := NewRegistry(testDefs())

	d, ok := r.GetDomain("orders")
	if !ok {
		t.Fatal("GetDomain(orders) not found")
	}
	if d.Domain != "orders" {
		t.Errorf("Domain = %q, want orders", d.Domain)
	}

	if _, ok := r.GetDomain("unknown"); ok {
		t.Error("GetDomain(unknown) should not be found")
	}
}

func TestRegistry_GetScreen(t *testing.T) {
	r := NewRegistry(testDefs())

	sc, ok := r.GetScreen("wallet_transactions")
	if !ok {
		t.Fatal("GetScreen(wallet_transactions) not found")
	}
	if sc.Domain != "wallets" {
		t.Errorf("Domain = %q, want wallets", sc.Domain)
	}
	if _, ok := r.GetScreen("withdrawals"); ok {
		t.Error("GetScreen(withdrawals) should not be found")
	}
}

func TestRegistry_AllScreens_sorted(t *testing.T) {
	r := NewRegistry(testDefs())

	screens := r.AllScreens()
	want := []string{"bids", "orders", "wallet_transactions"}
	if len(screens) != len(want) {
		t.Fatalf("AllScreens() = %d, want %d", len(screens), len(want))
	}
	for i, id := range want {
		if screens[i].ID != id {
			t.Errorf("AllScreens()[%d] = %q, want %q", i, screens[i].ID, id)
		}
	}

	summaries := r.Summaries()
	if summaries[1].Title != "Orders" || summaries[1].Domain != "orders" {
		t.Errorf("Summaries()[1] = %+v", summaries[1])
	}
}

func TestRegistry_Checksum(t *testing.T) {
	r1 := NewRegistry(testDefs())
	r2 := NewRegistry(testDefs())
	if r1.Checksum() != r2.Checksum() {
		t.Error("same definitions should produce same checksum")
	}

	defs := testDefs()
	defs[0].Checksum = "changed"
	r3 := NewRegistry(defs)
	if r1.Checksum() == r3.Checksum() {
		t.Error("different definitions should produce different checksum")
	}
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry(testDefs())
	old := r.Checksum()

	r.Replace([]model.DomainDefinition{{
		Domain:   "withdrawals",
		Checksum: "xyz",
		Screens:  []model.ScreenDefinition{{ID: "withdrawals", Title: "Withdrawals"}},
	}})

	if _, ok := r.GetScreen("orders"); ok {
		t.Error("orders should be gone after Replace")
	}
	if _, ok := r.GetScreen("withdrawals"); !ok {
		t.Error("withdrawals should exist after Replace")
	}
	if r.Checksum() == old {
		t.Error("checksum should change after Replace")
	}
}

func TestRegistry_concurrent_reads(t *testing.T) {
	r := NewRegistry(testDefs())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.GetScreen("orders")
			r.AllScreens()
		}()
		go func() {
			defer wg.Done()
			r.Replace(testDefs())
		}()
	}
	wg.Wait()
}

func TestDescribe(t *testing.T) {
	def := model.ScreenDefinition{
		ID:     "orders",
		Domain: "orders",
		Title:  "Orders",
		Dropdown: &model.DropdownDefinition{
			Field:   "status",
			Label:   "Status",
			Options: []model.OptionDefinition{{Label: "Pending", Value: "pending"}},
		},
		Views: []model.ViewDefinition{{Name: "order_detail", Kind: model.ViewDetail}},
	}

	desc := Describe(def, "/ui/screens/orders/sessions")

	if desc.PageSize != 10 {
		t.Errorf("PageSize = %d, want default 10", desc.PageSize)
	}
	if desc.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want default 3", desc.MaxDepth)
	}
	if desc.DefaultSort != model.SortNewest {
		t.Errorf("DefaultSort = %q, want newest", desc.DefaultSort)
	}
	if len(desc.Tabs) != 1 || desc.Tabs[0].Value != model.TabAll {
		t.Errorf("Tabs = %+v, want implicit all tab", desc.Tabs)
	}
	if desc.Dropdown == nil || desc.Dropdown.Mode != model.DropdownModeEquals {
		t.Errorf("Dropdown = %+v, want eq mode", desc.Dropdown)
	}
	if len(desc.Views) != 1 || desc.Views[0].Kind != model.ViewDetail {
		t.Errorf("Views = %+v", desc.Views)
	}
	if desc.Paginated {
		t.Error("static screen should not be paginated")
	}
	if desc.SessionsPath != "/ui/screens/orders/sessions" {
		t.Errorf("SessionsPath = %q", desc.SessionsPath)
	}
}

func TestIsPaginated(t *testing.T) {
	tests := []struct {
		ds   model.DataSourceDefinition
		want bool
	}{
		{model.DataSourceDefinition{}, false},
		{model.DataSourceDefinition{Type: model.DataSourceStatic}, false},
		{model.DataSourceDefinition{Type: model.DataSourceHTTP}, false},
		{model.DataSourceDefinition{Type: model.DataSourceHTTP, ServerPaging: true}, true},
		{model.DataSourceDefinition{Type: model.DataSourcePostgres}, true},
	}
	for _, tt := range tests {
		if got := IsPaginated(model.ScreenDefinition{DataSource: tt.ds}); got != tt.want {
			t.Errorf("IsPaginated(%+v) = %v, want %v", tt.ds, got, tt.want)
		}
	}
}
