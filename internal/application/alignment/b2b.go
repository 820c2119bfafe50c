package alignment

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/application/composer"
	"github.com/tu-usuario/ventas-retro/internal/domain"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

// DeferredPurchase es una compra B2B que no se pudo materializar en
// esta corrida; se reporta, nunca se silencia.
type DeferredPurchase struct {
	Customer entity.Customer
	Reason   string
}

// b2bFulfiller emite una factura de impuesto por cada compra B2B del
// trimestre, con el total con impuesto EXACTO de la compra. La canasta
// usa solo lotes NONEXC_INSPECTION y ajusta la última línea para que
// la suma de subtotales cierre sin residuo a escala 2.
type b2bFulfiller struct {
	store   *inventory.Store
	rng     *rand.Rand
	vatRate decimal.Decimal
}

// Tope de intentos de la fase voraz por factura.
const b2bGreedyAttempts = 200

// fulfil materializa la factura de una compra. Si el stock activo no
// permite cerrar el subtotal exacto sin vender bajo costo, revierte
// toda deducción y devuelve un error de compra diferida.
func (f *b2bFulfiller) fulfil(c entity.Customer) (*entity.Invoice, error) {
	subtotal := money.BackOutSubtotal(c.PurchaseAmountIncVAT, f.vatRate)
	vat := c.PurchaseAmountIncVAT.Sub(subtotal)

	lines, err := f.exactBasket(subtotal, c.PurchaseDate)
	if err != nil {
		return nil, err
	}

	inv := &entity.Invoice{
		Type:              entity.Tax,
		IssuedAt:          f.timestamp(c.PurchaseDate),
		CustomerName:      c.Name,
		CustomerVATNumber: c.VATNumber,
		CustomerAddress:   c.Address,
		Lines:             lines,
		Subtotal:          subtotal,
		VATAmount:         vat,
		Total:             c.PurchaseAmountIncVAT,
	}
	return inv, nil
}

// exactBasket arma líneas cuya suma de subtotales es exactamente
// target. Fase voraz con selección ponderada y cierre exacto: primero
// intenta engrosar una línea existente, luego un lote de cierre cuyo
// precio divida el restante, y por último reabre una línea ya emitida
// para habilitar un divisor.
func (f *b2bFulfiller) exactBasket(target decimal.Decimal, date time.Time) ([]entity.InvoiceLine, error) {
	var lines []entity.InvoiceLine
	used := make(map[string]struct{})
	remaining := target

	rollback := func() {
		for _, ln := range lines {
			_ = f.store.Restore(ln.LotID, ln.Quantity)
		}
	}

	// Fase voraz: acercarse al objetivo con cantidades grandes.
	for attempt := 0; attempt < b2bGreedyAttempts && remaining.IsPositive(); attempt++ {
		pool := f.pool(date, used)
		if len(pool) == 0 {
			break
		}
		lot := f.weightedPick(pool, date)
		ideal := remaining.Div(lot.UnitPriceExVAT).IntPart()
		if ideal < 1 {
			// Este precio ya no cabe en el restante; otro del pool
			// puede caber todavía.
			used[lot.ID()] = struct{}{}
			continue
		}
		qty := int(ideal)
		if qty > lot.QtyRemaining {
			qty = lot.QtyRemaining
		}
		// Si el lote no cierra el restante él solo, dejar una unidad
		// de margen para la línea de cierre.
		closes := lot.UnitPriceExVAT.Mul(decimal.NewFromInt(int64(qty))).Equal(remaining)
		if !closes && qty > 1 {
			qty--
		}
		ded, err := f.store.Deduct(lot.ID(), qty)
		if err != nil {
			used[lot.ID()] = struct{}{}
			continue
		}
		ln := entity.InvoiceLine{
			LotID:                ded.LotID,
			CustomsDeclarationNo: lot.CustomsDeclarationNo,
			ItemDescription:      lot.ItemDescription,
			Classification:       lot.Classification,
			Quantity:             ded.QtyTaken,
			UnitPriceExVAT:       ded.UnitPriceExVAT,
			UnitCostExVAT:        ded.UnitCostExVAT,
			LineSubtotal:         money.LineSubtotal(ded.UnitPriceExVAT, ded.QtyTaken),
		}
		lines = append(lines, ln)
		used[lot.ID()] = struct{}{}
		remaining = remaining.Sub(ln.LineSubtotal)
	}

	if remaining.IsZero() {
		return lines, nil
	}
	if remaining.IsNegative() {
		rollback()
		return nil, fmt.Errorf("%w: la fase voraz sobregiró el subtotal B2B", domain.ErrInsufficientStock)
	}

	// Cierre 1: engrosar una línea existente cuyo precio divida el
	// restante.
	for i := range lines {
		if add, ok := exactUnits(remaining, lines[i].UnitPriceExVAT); ok {
			if _, err := f.store.Deduct(lines[i].LotID, add); err == nil {
				lines[i].Quantity += add
				lines[i].Rematerialize()
				return lines, nil
			}
		}
	}

	// Cierre 2: un lote nuevo cuyo precio divida el restante.
	if ln, ok := f.closingLine(remaining, date, used); ok {
		return append(lines, ln), nil
	}

	// Cierre 3: devolver unidades de una línea emitida para mover el
	// restante hacia un monto divisible.
	for i := len(lines) - 1; i >= 0; i-- {
		price := lines[i].UnitPriceExVAT
		maxBack := lines[i].Quantity - 1
		if maxBack > 20 {
			maxBack = 20
		}
		for back := 1; back <= maxBack; back++ {
			lifted := remaining.Add(price.Mul(decimal.NewFromInt(int64(back))))
			if ln, ok := f.closingLine(lifted, date, used); ok {
				_ = f.store.Restore(lines[i].LotID, back)
				lines[i].Quantity -= back
				lines[i].Rematerialize()
				return append(lines, ln), nil
			}
		}
	}

	rollback()
	return nil, fmt.Errorf("sin canasta exacta para subtotal %s en %s: %w",
		target, date.Format("2006-01-02"), domain.ErrInsufficientStock)
}

// closingLine busca un lote sin usar cuyo precio divida el restante y
// cuyo stock alcance; lo deduce y devuelve la línea de cierre.
func (f *b2bFulfiller) closingLine(remaining decimal.Decimal, date time.Time, used map[string]struct{}) (entity.InvoiceLine, bool) {
	if !remaining.IsPositive() {
		return entity.InvoiceLine{}, false
	}
	for _, lot := range f.pool(date, used) {
		qty, ok := exactUnits(remaining, lot.UnitPriceExVAT)
		if !ok || qty > lot.QtyRemaining {
			continue
		}
		ded, err := f.store.Deduct(lot.ID(), qty)
		if err != nil {
			continue
		}
		used[lot.ID()] = struct{}{}
		return entity.InvoiceLine{
			LotID:                ded.LotID,
			CustomsDeclarationNo: lot.CustomsDeclarationNo,
			ItemDescription:      lot.ItemDescription,
			Classification:       lot.Classification,
			Quantity:             ded.QtyTaken,
			UnitPriceExVAT:       ded.UnitPriceExVAT,
			UnitCostExVAT:        ded.UnitCostExVAT,
			LineSubtotal:         money.LineSubtotal(ded.UnitPriceExVAT, ded.QtyTaken),
		}, true
	}
	return entity.InvoiceLine{}, false
}

// exactUnits devuelve k tal que price × k == amount a escala 2, si
// existe con k ≥ 1.
func exactUnits(amount, price decimal.Decimal) (int, bool) {
	if !price.IsPositive() || !amount.IsPositive() {
		return 0, false
	}
	if !amount.Mod(price).IsZero() {
		return 0, false
	}
	k := amount.Div(price)
	if !k.IsInteger() || k.IntPart() < 1 {
		return 0, false
	}
	return int(k.IntPart()), true
}

// pool son los lotes NONEXC_INSPECTION activos a la fecha, con precio
// positivo y sin los ya usados en la canasta en curso.
func (f *b2bFulfiller) pool(date time.Time, used map[string]struct{}) []*entity.Lot {
	all := f.store.AvailableLots(date, entity.NonExcInspection)
	out := all[:0:0]
	for _, l := range all {
		if !l.UnitPriceExVAT.IsPositive() {
			continue
		}
		if _, skip := used[l.ID()]; !skip {
			out = append(out, l)
		}
	}
	return out
}

// weightedPick reutiliza la ponderación de popularidad del compositor.
func (f *b2bFulfiller) weightedPick(pool []*entity.Lot, date time.Time) *entity.Lot {
	total := 0.0
	weights := make([]float64, len(pool))
	for i, l := range pool {
		weights[i] = composer.LotWeight(l, date)
		total += weights[i]
	}
	if total <= 0 {
		return pool[f.rng.Intn(len(pool))]
	}
	r := f.rng.Float64() * total
	for i, l := range pool {
		r -= weights[i]
		if r <= 0 {
			return l
		}
	}
	return pool[len(pool)-1]
}

// timestamp sortea una hora comercial para la factura de impuesto.
func (f *b2bFulfiller) timestamp(d time.Time) time.Time {
	return calendar.At(d, 9+f.rng.Intn(13), f.rng.Intn(60))
}

// selectWithinCap aplica la defensa contra sobregiro: si la suma B2B
// con impuesto excede el objetivo del trimestre, conserva el mayor
// prefijo (en orden de lectura) cuyo subtotal acumulado quepa en
// ratio × sales_ex_vat y difiere el resto.
func selectWithinCap(customers []entity.Customer, q *entity.QuarterTarget,
	capRatio decimal.Decimal, vatRate decimal.Decimal) (selected []entity.Customer, deferred []DeferredPurchase) {

	totalInc := decimal.Zero
	for _, c := range customers {
		totalInc = totalInc.Add(c.PurchaseAmountIncVAT)
	}
	if totalInc.LessThanOrEqual(q.SalesIncVAT) {
		return customers, nil
	}

	ceiling := q.SalesExVAT.Mul(capRatio)
	cumulative := decimal.Zero
	for _, c := range customers {
		sub := money.BackOutSubtotal(c.PurchaseAmountIncVAT, vatRate)
		if cumulative.Add(sub).LessThanOrEqual(ceiling) && len(deferred) == 0 {
			selected = append(selected, c)
			cumulative = cumulative.Add(sub)
		} else {
			deferred = append(deferred, DeferredPurchase{
				Customer: c,
				Reason:   "excede el techo B2B del trimestre",
			})
		}
	}
	return selected, deferred
}
