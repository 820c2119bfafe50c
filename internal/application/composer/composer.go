// Package composer arma la canasta de una factura: elige lotes y
// cantidades respetando las reglas de mezcla por clasificación, el
// stock disponible a la fecha y la rentabilidad por lote. La selección
// es ponderada pero nunca repite un lote dentro de la misma factura.
package composer

import (
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
	"github.com/tu-usuario/ventas-retro/pkg/config"
)

// Intentos acotados por canasta antes de rendirse con lo armado.
const maxAttempts = 50

// Margen de sobregiro aceptado al perseguir un objetivo monetario.
var overshootSlack = decimal.NewFromInt(100)

// Piso bajo el cual se da por satisfecho el objetivo monetario.
var targetFloor = decimal.NewFromInt(1)

// Hint dirige el tamaño de la canasta: un tope de líneas y,
// opcionalmente, un objetivo monetario ex-VAT que el armado persigue
// sin sobrepasar demasiado.
type Hint struct {
	MaxLines     int
	AmountTarget decimal.Decimal // cero = sin objetivo monetario
}

// Stats cuenta los eventos recuperables del armado; se reportan en el
// resumen de corrida y nunca escalan al alineador.
type Stats struct {
	InsufficientStock  int
	ProfitabilitySkips int
	EmptyBaskets       int
}

// Composer arma canastas contra el almacén de lotes. Toda aleatoriedad
// sale del generador sembrado que le inyecta el alineador.
type Composer struct {
	store *inventory.Store
	rng   *rand.Rand

	lineItems   config.Range
	qtyPerLine  config.Range
	exciseRatio float64

	stats Stats
}

// New construye el compositor.
func New(store *inventory.Store, rng *rand.Rand, gen config.GenerationConfig) *Composer {
	return &Composer{
		store:       store,
		rng:         rng,
		lineItems:   gen.LineItemsPerInvoice,
		qtyPerLine:  gen.QuantityPerLine,
		exciseRatio: gen.ExciseExclusiveRatio,
	}
}

// Stats devuelve los contadores acumulados.
func (c *Composer) Stats() Stats { return c.stats }

// Compose arma las líneas de una factura del tipo dado en la fecha
// dada. El stock se descuenta del almacén línea a línea; una canasta
// vacía se reporta en los contadores y devuelve nil.
//
// Reglas de mezcla:
//   - Las facturas TAX solo admiten lotes NONEXC_INSPECTION.
//   - Las SIMPLIFIED mezclan NONEXC_INSPECTION y NONEXC_OUTSIDE, y en
//     una proporción configurada salen exclusivas de mercancía
//     selectiva (una sola línea EXC_INSPECTION).
func (c *Composer) Compose(invType entity.InvoiceType, date time.Time, hint Hint) []entity.InvoiceLine {
	if invType == entity.Simplified && c.rng.Float64() < c.exciseRatio {
		if line, ok := c.composeExciseExclusive(date); ok {
			return []entity.InvoiceLine{line}
		}
		// Sin lotes selectivos disponibles: cae a canasta regular.
	}

	pool := c.pool(invType, date)
	if len(pool) == 0 {
		c.stats.EmptyBaskets++
		return nil
	}

	maxLines := hint.MaxLines
	if maxLines <= 0 {
		maxLines = c.lineItems.Min + c.rng.Intn(c.lineItems.Max-c.lineItems.Min+1)
	}

	var lines []entity.InvoiceLine
	used := make(map[string]struct{})
	remaining := hint.AmountTarget
	chaseTarget := remaining.IsPositive()

	for attempt := 0; attempt < maxAttempts && len(lines) < maxLines; attempt++ {
		if chaseTarget && remaining.LessThanOrEqual(targetFloor) {
			break
		}
		lot := c.weightedPick(pool, used, date)
		if lot == nil {
			break
		}
		if !lot.Profitable() || !lot.UnitPriceExVAT.IsPositive() {
			// Nunca vender bajo costo ni a precio cero: el lote se
			// salta y se cuenta.
			c.stats.ProfitabilitySkips++
			used[lot.ID()] = struct{}{}
			continue
		}
		qty := c.chooseQty(lot, remaining, chaseTarget)
		if qty == 0 {
			continue
		}
		ded, err := c.store.Deduct(lot.ID(), qty)
		if err != nil {
			// El lote se agotó entre la consulta y la deducción de
			// esta misma corrida; se descarta del pool y se reintenta.
			c.stats.InsufficientStock++
			used[lot.ID()] = struct{}{}
			continue
		}
		line := lineFromDeduction(lot, ded)
		lines = append(lines, line)
		used[lot.ID()] = struct{}{}
		if chaseTarget {
			remaining = remaining.Sub(line.LineSubtotal)
		}
	}

	if len(lines) == 0 {
		c.stats.EmptyBaskets++
	}
	return lines
}

// composeExciseExclusive arma la única línea de una factura exclusiva
// de mercancía selectiva. Prueba cantidades de mayor a menor hasta que
// el stock del lote alcance.
func (c *Composer) composeExciseExclusive(date time.Time) (entity.InvoiceLine, bool) {
	pool := c.store.AvailableLots(date, entity.ExcInspection)
	if len(pool) == 0 {
		return entity.InvoiceLine{}, false
	}
	lot := pool[c.rng.Intn(len(pool))]
	for _, qty := range []int{40, 30, 20, 10, 5, 3} {
		if qty > c.qtyPerLine.Max || qty < c.qtyPerLine.Min {
			continue
		}
		ded, err := c.store.Deduct(lot.ID(), qty)
		if err != nil {
			continue
		}
		return lineFromDeduction(lot, ded), true
	}
	c.stats.InsufficientStock++
	return entity.InvoiceLine{}, false
}

// pool junta los lotes elegibles para el tipo de factura a la fecha.
func (c *Composer) pool(invType entity.InvoiceType, date time.Time) []*entity.Lot {
	if invType == entity.Tax {
		return c.store.AvailableLots(date, entity.NonExcInspection)
	}
	pool := c.store.AvailableLots(date, entity.NonExcInspection)
	return append(pool, c.store.AvailableLots(date, entity.NonExcOutside)...)
}

// chooseQty decide la cantidad de la línea. Con objetivo monetario se
// acerca al restante sin sobrepasar el margen; sin objetivo sortea en
// el rango configurado. Devuelve 0 si el lote no sirve.
func (c *Composer) chooseQty(lot *entity.Lot, remaining decimal.Decimal, chaseTarget bool) int {
	if !lot.UnitPriceExVAT.IsPositive() {
		return 0
	}
	maxQty := c.qtyPerLine.Max
	if lot.QtyRemaining < maxQty {
		maxQty = lot.QtyRemaining
	}
	if maxQty < 1 {
		return 0
	}

	if !chaseTarget {
		qty := c.qtyPerLine.Min + c.rng.Intn(c.qtyPerLine.Max-c.qtyPerLine.Min+1)
		if qty > maxQty {
			qty = maxQty
		}
		return qty
	}

	// Cantidad ideal sin tocar el precio: restante / precio del lote,
	// acotada para que la línea no sobrepase restante + margen.
	ideal := remaining.Div(lot.UnitPriceExVAT).IntPart()
	if ideal < 1 {
		ideal = 1
	}
	if ideal > int64(maxQty) {
		ideal = int64(maxQty)
	}
	for qty := int(ideal); qty >= 1; qty-- {
		sub := money.LineSubtotal(lot.UnitPriceExVAT, qty)
		if sub.LessThanOrEqual(remaining.Add(overshootSlack)) {
			return qty
		}
	}
	return 0
}

// lineFromDeduction materializa la línea con el precio y costo
// congelados del lote.
func lineFromDeduction(lot *entity.Lot, ded inventory.Deduction) entity.InvoiceLine {
	return entity.InvoiceLine{
		LotID:                ded.LotID,
		CustomsDeclarationNo: lot.CustomsDeclarationNo,
		ItemDescription:      lot.ItemDescription,
		Classification:       lot.Classification,
		Quantity:             ded.QtyTaken,
		UnitPriceExVAT:       ded.UnitPriceExVAT,
		UnitCostExVAT:        ded.UnitCostExVAT,
		LineSubtotal:         money.LineSubtotal(ded.UnitPriceExVAT, ded.QtyTaken),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Ponderación de lotes
// ──────────────────────────────────────────────────────────────────────────────

// weightedPick elige un lote del pool por ruleta de pesos, saltando los
// ya usados en esta canasta. Devuelve nil si no queda candidato.
func (c *Composer) weightedPick(pool []*entity.Lot, used map[string]struct{}, date time.Time) *entity.Lot {
	var candidates []*entity.Lot
	total := 0.0
	weights := make([]float64, 0, len(pool))
	for _, l := range pool {
		if _, skip := used[l.ID()]; skip {
			continue
		}
		if l.QtyRemaining <= 0 {
			continue
		}
		w := LotWeight(l, date)
		candidates = append(candidates, l)
		weights = append(weights, w)
		total += w
	}
	if len(candidates) == 0 {
		return nil
	}
	if total <= 0 {
		return candidates[c.rng.Intn(len(candidates))]
	}
	r := c.rng.Float64() * total
	for i, l := range candidates {
		r -= weights[i]
		if r <= 0 {
			return l
		}
	}
	return candidates[len(candidates)-1]
}

// LotWeight pondera qué tan probable es que el lote venda en la fecha:
// punto de precio (lo barato rota más), nivel de stock (importaciones
// grandes = artículos populares), clasificación y estacionalidad por
// palabras clave de la descripción.
func LotWeight(l *entity.Lot, date time.Time) float64 {
	w := 1.0

	price, _ := l.UnitPriceExVAT.Float64()
	switch {
	case price < 10:
		w *= 2.5
	case price < 20:
		w *= 2.0
	case price < 50:
		w *= 1.5
	case price < 100:
		w *= 1.0
	default:
		w *= 0.5
	}

	switch qty := l.QtyRemaining; {
	case qty > 1000:
		w *= 1.8
	case qty > 500:
		w *= 1.5
	case qty > 200:
		w *= 1.2
	case qty > 50:
		w *= 1.0
	default:
		w *= 0.7
	}

	switch l.Classification {
	case entity.NonExcOutside:
		w *= 1.3
	case entity.NonExcInspection:
		w *= 1.1
	}

	w *= seasonalFactor(l.ItemDescription, date.Month())
	return w
}

// seasonalFactor impulsa categorías según la época del año: bebidas en
// verano, café/té/dátiles en Ramadán, reconfortantes en invierno.
func seasonalFactor(description string, month time.Month) float64 {
	name := strings.ToLower(description)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(name, w) {
				return true
			}
		}
		return false
	}

	f := 1.0
	switch month {
	case time.June, time.July, time.August:
		if contains("juice", "عصير", "شراب", "drink", "مشروب") {
			f *= 1.8
		}
	case time.March, time.April:
		if contains("coffee", "قهوة", "tea", "شاي", "تمر", "date") {
			f *= 2.0
		}
		if contains("juice", "عصير", "milk", "حليب") {
			f *= 1.6
		}
	case time.December, time.January, time.February:
		if contains("chocolate", "شوكولاتة", "coffee", "قهوة", "soup", "شوربة") {
			f *= 1.4
		}
	}
	return f
}
