// Package refinement cierra la varianza residual de un trimestre con
// ajustes de ±1 unidad sobre cantidades ya emitidas, sin tocar nunca
// un precio. Los aumentos se concentran en días pico y las rebajas en
// días lentos para no destruir la distribución semanal.
package refinement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

// Options parametriza el refinador; el alineador las toma de la
// configuración (tolerancia gruesa 5.00, estricta 0.10, tope 50).
type Options struct {
	VATRate         decimal.Decimal
	Tolerance       decimal.Decimal
	StrictTolerance decimal.Decimal
	MaxIterations   int
}

// Result resume la pasada para el informe de corrida.
type Result struct {
	InitialVariance decimal.Decimal
	FinalVariance   decimal.Decimal
	Iterations      int
}

// Refiner ajusta cantidades contra el almacén: cada +1 deduce stock
// del lote y cada −1 lo restaura, así los invariantes de inventario se
// conservan durante el refinamiento.
type Refiner struct {
	store *inventory.Store
	opts  Options
}

// New construye el refinador.
func New(store *inventory.Store, opts Options) *Refiner {
	return &Refiner{store: store, opts: opts}
}

// Refine acerca Σ total al objetivo con impuesto incluido. Corre una
// pasada gruesa a la tolerancia normal y, si el trimestre es estricto,
// una pasada interna idéntica que persigue la tolerancia estricta.
// Solo se ajustan facturas simplificadas: las de impuesto llevan el
// total exacto de su compra y no se tocan.
func (r *Refiner) Refine(invoices []*entity.Invoice, q *entity.QuarterTarget, target decimal.Decimal) Result {
	res := Result{InitialVariance: target.Sub(sumTotals(invoices))}

	res.Iterations = r.pass(invoices, q, target, r.opts.Tolerance)
	if q.Strict {
		res.Iterations += r.pass(invoices, q, target, r.opts.StrictTolerance)
	}

	res.FinalVariance = target.Sub(sumTotals(invoices))
	return res
}

// pass es el lazo voraz: mientras |δ| supere la tolerancia y haya
// presupuesto, aplica el ajuste de ±1 que más acerque el total al
// objetivo. Un ajuste que no mejora |δ| se deshace y la pasada
// termina: el lazo nunca oscila.
func (r *Refiner) pass(invoices []*entity.Invoice, q *entity.QuarterTarget, target, tol decimal.Decimal) int {
	iters := 0
	for ; iters < r.opts.MaxIterations; iters++ {
		delta := target.Sub(sumTotals(invoices))
		if delta.Abs().LessThanOrEqual(tol) {
			break
		}
		increasing := delta.IsPositive()
		inv, idx := r.adjust(invoices, q, delta.Abs(), increasing)
		if inv == nil {
			break
		}
		newDelta := target.Sub(sumTotals(invoices))
		if newDelta.Abs().GreaterThanOrEqual(delta.Abs()) {
			r.undo(inv, idx, increasing)
			break
		}
	}
	return iters
}

// adjust aplica el ±1 sobre el mejor candidato: suma en día pico o
// resta en día lento, con caída a cualquier factura si el patrón no
// ofrece candidato.
func (r *Refiner) adjust(invoices []*entity.Invoice, q *entity.QuarterTarget,
	magnitude decimal.Decimal, increasing bool) (*entity.Invoice, int) {
	inv, idx := r.bestCandidate(invoices, q, magnitude, increasing, true)
	if inv == nil {
		inv, idx = r.bestCandidate(invoices, q, magnitude, increasing, false)
	}
	if inv == nil {
		return nil, -1
	}
	ln := &inv.Lines[idx]
	if increasing {
		if _, err := r.store.Deduct(ln.LotID, 1); err != nil {
			return nil, -1
		}
		ln.Quantity++
	} else {
		if err := r.store.Restore(ln.LotID, 1); err != nil {
			return nil, -1
		}
		ln.Quantity--
	}
	ln.Rematerialize()
	inv.Recalculate(r.opts.VATRate)
	return inv, idx
}

// undo revierte el último ajuste (y su efecto sobre el lote).
func (r *Refiner) undo(inv *entity.Invoice, idx int, wasIncrease bool) {
	ln := &inv.Lines[idx]
	if wasIncrease {
		_ = r.store.Restore(ln.LotID, 1)
		ln.Quantity--
	} else {
		if _, err := r.store.Deduct(ln.LotID, 1); err != nil {
			return
		}
		ln.Quantity++
	}
	ln.Rematerialize()
	inv.Recalculate(r.opts.VATRate)
}

// bestCandidate busca la línea cuyo precio con impuesto queda más
// cerca de la varianza sin excederla en más de 1.5×. Para aumentos
// exige stock en el lote; para rebajas exige cantidad > 1. preferPeak
// restringe la búsqueda al tipo de día que conserva el patrón semanal.
func (r *Refiner) bestCandidate(invoices []*entity.Invoice, q *entity.QuarterTarget,
	magnitude decimal.Decimal, increasing, preferPeak bool) (*entity.Invoice, int) {
	ceiling := magnitude.Abs().Mul(decimal.NewFromFloat(1.5))

	var bestInv *entity.Invoice
	bestIdx := -1
	var bestDiff decimal.Decimal

	var fallbackInv *entity.Invoice
	fallbackIdx := -1
	var fallbackPrice decimal.Decimal

	for _, inv := range invoices {
		if inv.Type != entity.Simplified {
			continue
		}
		peak := isPeakDay(inv.IssuedAt, q)
		if preferPeak && peak != increasing {
			// Aumentos en días pico, rebajas en días lentos.
			continue
		}
		for i := range inv.Lines {
			ln := &inv.Lines[i]
			if increasing {
				lot, err := r.store.Lot(ln.LotID)
				if err != nil || lot.QtyRemaining < 1 {
					continue
				}
			} else if ln.Quantity <= 1 {
				continue
			}
			priceInc := ln.UnitPriceExVAT.Mul(money.One.Add(r.opts.VATRate))
			diff := magnitude.Abs().Sub(priceInc).Abs()
			if priceInc.LessThanOrEqual(ceiling) && (bestIdx == -1 || diff.LessThan(bestDiff)) {
				bestInv, bestIdx, bestDiff = inv, i, diff
			}
			if fallbackIdx == -1 || priceInc.LessThan(fallbackPrice) {
				fallbackInv, fallbackIdx, fallbackPrice = inv, i, priceInc
			}
		}
	}
	if bestIdx != -1 {
		return bestInv, bestIdx
	}
	return fallbackInv, fallbackIdx
}

// isPeakDay: jueves, sábado, día de sueldo (1, 10, 27) o última semana
// del trimestre. Es más amplia que la noción de pico del simulador,
// que solo cuenta jueves y días de sueldo.
func isPeakDay(d time.Time, q *entity.QuarterTarget) bool {
	if d.Weekday() == time.Thursday || d.Weekday() == time.Saturday {
		return true
	}
	switch d.Day() {
	case 27, 1, 10:
		return true
	}
	end := time.Date(q.PeriodEnd.Year(), q.PeriodEnd.Month(), q.PeriodEnd.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(day).Hours()/24) <= 7
}

func sumTotals(invoices []*entity.Invoice) decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range invoices {
		sum = sum.Add(inv.Total)
	}
	return sum
}
