// Package derive computes display-only data from list records. Nothing here
// feeds back into filtering, sorting, or navigation.
package derive

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/pitabwire/opsdesk/internal/listquery"
	"github.com/pitabwire/opsdesk/model"
)

const (
	// DefaultAmountField is read when a screen names no amount field.
	DefaultAmountField = "total"

	shippingPercent = 5
	shippingCap     = 1500
	// Prices are tax-inclusive at taxPercent.
	taxPercent = 10
	maxLines   = 3
)

// Invoice derives a deterministic invoice from a record's total. The same
// record always yields the same lines, and the lines plus shipping plus tax
// add up to the total in minor units exactly.
func Invoice(rec model.Record, amountField string) (model.Invoice, error) {
	if amountField == "" {
		amountField = DefaultAmountField
	}
	raw := rec.Field(amountField)
	amount, ok := listquery.ParseAmount(raw)
	if !ok || amount < 0 {
		return model.Invoice{}, model.NewBadRequestError(
			fmt.Sprintf("record %q has no usable %s amount", rec.ID, amountField))
	}

	total := int64(math.Round(amount * 100))
	shipping := min(total*shippingPercent/100, shippingCap)
	tax := (total - shipping) * taxPercent / (100 + taxPercent)
	subtotal := total - shipping - tax

	seed := seedFor(rec.ID)
	lines := splitLines(subtotal, seed)

	return model.Invoice{
		Number:   "INV-" + rec.ID,
		RecordID: rec.ID,
		Lines:    lines,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    total,
	}, nil
}

// splitLines divides subtotal into 1 to maxLines lines. Every line but the
// last has a whole unit price; the last absorbs the remainder at quantity 1.
func splitLines(subtotal int64, seed uint32) []model.InvoiceLine {
	count := 1 + int(seed%maxLines)
	if subtotal < int64(count) {
		count = 1
	}

	weights := make([]int64, count)
	var sumW int64
	for i := range weights {
		weights[i] = 1 + int64((seed>>(4*(i+1)))%4)
		sumW += weights[i]
	}

	lines := make([]model.InvoiceLine, 0, count)
	var used int64
	for i := 0; i < count-1; i++ {
		share := subtotal * weights[i] / sumW
		qty := 1 + int((seed>>(8+4*i))%3)
		unit := share / int64(qty)
		if unit == 0 {
			qty, unit = 1, share
		}
		amt := unit * int64(qty)
		used += amt
		lines = append(lines, model.InvoiceLine{
			Description: fmt.Sprintf("Item %d", i+1),
			Quantity:    qty,
			UnitAmount:  unit,
			Amount:      amt,
		})
	}
	last := subtotal - used
	lines = append(lines, model.InvoiceLine{
		Description: fmt.Sprintf("Item %d", count),
		Quantity:    1,
		UnitAmount:  last,
		Amount:      last,
	})
	return lines
}

func seedFor(id string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return h.Sum32()
}
