package refinement_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/ventas-retro/internal/application/refinement"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var vatRate = dec("0.15")

func quarter() *entity.QuarterTarget {
	return &entity.QuarterTarget{
		Label:       "Q1-2024",
		PeriodStart: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Strict:      true,
	}
}

// armarLibro crea un almacén con un lote fraccionario y facturas con
// líneas de ese lote, una en día pico (jueves) y otra en día lento.
func armarLibro(t *testing.T) (*inventory.Store, []*entity.Invoice) {
	t.Helper()
	lot := &entity.Lot{
		ItemDescription:      "سكر ناعم",
		CustomsDeclarationNo: "D1",
		Classification:       entity.NonExcOutside,
		ImportDate:           time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
		StockDate:            time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
		QtyImported:          10000,
		UnitCostExVAT:        dec("0.50"),
		UnitPriceExVAT:       dec("0.80"),
	}
	store, err := inventory.Load([]*entity.Lot{lot})
	require.NoError(t, err)

	mkInvoice := func(day time.Time, qty int) *entity.Invoice {
		_, err := store.Deduct(lot.ID(), qty)
		require.NoError(t, err)
		inv := &entity.Invoice{
			Type:         entity.Simplified,
			IssuedAt:     day.Add(14 * time.Hour),
			CustomerName: entity.CashCustomerName,
			Lines: []entity.InvoiceLine{{
				LotID:           lot.ID(),
				ItemDescription: lot.ItemDescription,
				Classification:  lot.Classification,
				Quantity:        qty,
				UnitPriceExVAT:  lot.UnitPriceExVAT,
				UnitCostExVAT:   lot.UnitCostExVAT,
				LineSubtotal:    money.LineSubtotal(lot.UnitPriceExVAT, qty),
			}},
		}
		inv.Recalculate(vatRate)
		return inv
	}

	invoices := []*entity.Invoice{
		mkInvoice(time.Date(2024, time.January, 18, 0, 0, 0, 0, time.UTC), 100), // jueves (pico)
		mkInvoice(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), 100), // lunes (lento)
	}
	return store, invoices
}

func newRefiner(store *inventory.Store) *refinement.Refiner {
	return refinement.New(store, refinement.Options{
		VATRate:         vatRate,
		Tolerance:       dec("5.00"),
		StrictTolerance: dec("0.10"),
		MaxIterations:   50,
	})
}

func sumTotals(invoices []*entity.Invoice) decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range invoices {
		sum = sum.Add(inv.Total)
	}
	return sum
}

// Bajo el objetivo: el refinador agrega unidades hasta cerrar dentro
// de la tolerancia estricta, descontando el stock agregado.
func TestRefine_SubeHaciaElObjetivo(t *testing.T) {
	store, invoices := armarLibro(t)
	r := newRefiner(store)

	target := sumTotals(invoices).Add(dec("7.36")) // 8 unidades de 0.92 inc
	res := r.Refine(invoices, quarter(), target)

	assert.True(t, res.FinalVariance.Abs().LessThanOrEqual(dec("0.10")),
		"varianza final %s", res.FinalVariance)
	assert.True(t, res.FinalVariance.Abs().LessThan(res.InitialVariance.Abs()))

	// El inventario quedó consistente con lo emitido.
	lot, err := store.Lot("D1:سكر ناعم")
	require.NoError(t, err)
	emitido := 0
	for _, inv := range invoices {
		for _, ln := range inv.Lines {
			emitido += ln.Quantity
		}
	}
	assert.Equal(t, lot.QtyImported-emitido, lot.QtyRemaining)
}

// Sobre el objetivo: rebaja cantidades y restaura stock.
func TestRefine_BajaHaciaElObjetivo(t *testing.T) {
	store, invoices := armarLibro(t)
	r := newRefiner(store)

	target := sumTotals(invoices).Sub(dec("9.20")) // 10 unidades de 0.92 inc
	res := r.Refine(invoices, quarter(), target)

	assert.True(t, res.FinalVariance.Abs().LessThanOrEqual(dec("0.10")),
		"varianza final %s", res.FinalVariance)

	// Ninguna línea quedó con cantidad < 1 y los totales se
	// rederivaron desde las líneas.
	for _, inv := range invoices {
		lineSum := decimal.Zero
		for _, ln := range inv.Lines {
			assert.GreaterOrEqual(t, ln.Quantity, 1)
			lineSum = lineSum.Add(ln.LineSubtotal)
		}
		assert.True(t, inv.Subtotal.Equal(lineSum))
		assert.True(t, inv.VATAmount.Equal(money.VAT(inv.Subtotal, vatRate)))
		assert.True(t, inv.Total.Equal(inv.Subtotal.Add(inv.VATAmount)))
	}
}

// Ya dentro de la tolerancia: cero iteraciones, nada cambia.
func TestRefine_SinTrabajo(t *testing.T) {
	store, invoices := armarLibro(t)
	r := newRefiner(store)

	target := sumTotals(invoices)
	res := r.Refine(invoices, quarter(), target)

	assert.Equal(t, 0, res.Iterations)
	assert.True(t, res.FinalVariance.IsZero())
}

// Las facturas de impuesto no se tocan: llevan el total exacto del
// cliente.
func TestRefine_NoTocaFacturasDeImpuesto(t *testing.T) {
	store, invoices := armarLibro(t)
	tax := &entity.Invoice{
		Type:              entity.Tax,
		IssuedAt:          time.Date(2024, time.February, 5, 11, 0, 0, 0, time.UTC),
		CustomerName:      "شركة التموين",
		CustomerVATNumber: "300000000000003",
		Subtotal:          dec("10000.00"),
		VATAmount:         dec("1500.00"),
		Total:             dec("11500.00"),
	}
	invoices = append(invoices, tax)
	r := newRefiner(store)

	before := tax.Total
	_ = r.Refine(invoices, quarter(), sumTotals(invoices).Add(dec("20.00")))
	assert.True(t, tax.Total.Equal(before))
}
