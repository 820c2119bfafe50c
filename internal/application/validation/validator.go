// Package validation corre la batería de invariantes sobre el libro
// recién generado: fidelidad de precios, rentabilidad, integridad de
// inventario, totales trimestrales, calendario, mezcla por
// clasificación y numeración. Un libro sano reporta cero hallazgos
// críticos.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/application/alignment"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
)

// Severity clasifica el hallazgo.
type Severity string

const (
	Critical Severity = "CRITICAL"
	Warning  Severity = "WARNING"
)

// Finding es un hallazgo individual de la validación.
type Finding struct {
	Severity Severity
	Check    string
	Message  string
}

// ItemProfit agrega rentabilidad por artículo para el reporte.
type ItemProfit struct {
	ItemDescription string
	Revenue         decimal.Decimal
	Cost            decimal.Decimal
}

// Report es el resultado completo de la validación.
type Report struct {
	Findings     []Finding
	ItemProfits  map[string]*ItemProfit
	GrossRevenue decimal.Decimal
	GrossCost    decimal.Decimal
}

// Failed indica si hay al menos un hallazgo crítico.
func (r *Report) Failed() bool {
	for _, f := range r.Findings {
		if f.Severity == Critical {
			return true
		}
	}
	return false
}

func (r *Report) add(sev Severity, check, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Severity: sev,
		Check:    check,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Validator corre las verificaciones contra el almacén y el calendario
// usados en la generación.
type Validator struct {
	store           *inventory.Store
	holidays        calendar.HolidaySet
	vatRate         decimal.Decimal
	strictTolerance decimal.Decimal
}

// New construye el validador.
func New(store *inventory.Store, holidays calendar.HolidaySet, vatRate, strictTolerance decimal.Decimal) *Validator {
	return &Validator{
		store:           store,
		holidays:        holidays,
		vatRate:         vatRate,
		strictTolerance: strictTolerance,
	}
}

// Tolerancia de un centavo para el impuesto despejado de las facturas
// B2B (el residuo del ÷ 1.15 vive en el impuesto).
var centTolerance = decimal.NewFromFloat(0.01)

// Validate corre todas las verificaciones sobre la corrida.
func (v *Validator) Validate(run *alignment.RunResult) *Report {
	rep := &Report{ItemProfits: make(map[string]*ItemProfit)}

	deductedPerLot := make(map[string]int)
	for _, inv := range run.Invoices {
		v.checkArithmetic(rep, inv)
		v.checkCalendar(rep, inv)
		v.checkClassification(rep, inv)
		v.checkLines(rep, inv, deductedPerLot)
	}
	v.checkInventory(rep, deductedPerLot)
	v.checkQuarterTotals(rep, run)
	v.checkNumbering(rep, run.Invoices)

	return rep
}

// checkArithmetic: total = subtotal + impuesto; impuesto =
// round2(subtotal × tasa); subtotal = Σ subtotales de línea. Las
// facturas de impuesto despejan el IVA desde el total exacto del
// cliente, de ahí la tolerancia de un centavo en esa comparación.
func (v *Validator) checkArithmetic(rep *Report, inv *entity.Invoice) {
	lineSum := decimal.Zero
	for i := range inv.Lines {
		ln := &inv.Lines[i]
		expected := ln.UnitPriceExVAT.Mul(decimal.NewFromInt(int64(ln.Quantity))).Round(2)
		if !ln.LineSubtotal.Equal(expected) {
			rep.add(Critical, "aritmetica", "factura %s línea %d: subtotal %s ≠ round2(precio × cantidad) %s",
				inv.Number, i+1, ln.LineSubtotal, expected)
		}
		if ln.Quantity < 1 {
			rep.add(Critical, "aritmetica", "factura %s línea %d: cantidad %d < 1", inv.Number, i+1, ln.Quantity)
		}
		lineSum = lineSum.Add(ln.LineSubtotal)
	}
	if !inv.Subtotal.Equal(lineSum) {
		rep.add(Critical, "aritmetica", "factura %s: subtotal %s ≠ Σ líneas %s", inv.Number, inv.Subtotal, lineSum)
	}
	if !inv.Total.Equal(inv.Subtotal.Add(inv.VATAmount)) {
		rep.add(Critical, "aritmetica", "factura %s: total %s ≠ subtotal + impuesto", inv.Number, inv.Total)
	}
	expectedVAT := inv.Subtotal.Mul(v.vatRate).Round(2)
	diff := inv.VATAmount.Sub(expectedVAT).Abs()
	if inv.Type == entity.Tax {
		if diff.GreaterThan(centTolerance) {
			rep.add(Critical, "aritmetica", "factura %s: impuesto %s difiere de round2(subtotal × tasa) en %s",
				inv.Number, inv.VATAmount, diff)
		}
	} else if !diff.IsZero() {
		rep.add(Critical, "aritmetica", "factura %s: impuesto %s ≠ round2(subtotal × tasa) %s",
			inv.Number, inv.VATAmount, expectedVAT)
	}
}

// checkCalendar: ninguna factura en viernes ni feriado.
func (v *Validator) checkCalendar(rep *Report, inv *entity.Invoice) {
	if inv.IssuedAt.Weekday() == time.Friday {
		rep.add(Critical, "calendario", "factura %s emitida un viernes (%s)", inv.Number, inv.IssuedAt.Format("2006-01-02"))
	}
	if v.holidays.Contains(inv.IssuedAt) {
		rep.add(Critical, "calendario", "factura %s emitida en feriado (%s)", inv.Number, inv.IssuedAt.Format("2006-01-02"))
	}
}

// checkClassification: exclusividad de mercancía selectiva y pureza
// NONEXC_INSPECTION de las facturas de impuesto.
func (v *Validator) checkClassification(rep *Report, inv *entity.Invoice) {
	if inv.HasExciseLine() && len(inv.Lines) != 1 {
		rep.add(Critical, "clasificacion", "factura %s: línea selectiva acompañada (%d líneas)", inv.Number, len(inv.Lines))
	}
	if inv.Type == entity.Tax {
		for i := range inv.Lines {
			if inv.Lines[i].Classification != entity.NonExcInspection {
				rep.add(Critical, "clasificacion", "factura de impuesto %s: línea %d con clase %s",
					inv.Number, i+1, inv.Lines[i].Classification)
			}
		}
	}
	if inv.Type == entity.Tax && inv.CustomerVATNumber == "" {
		rep.add(Critical, "clasificacion", "factura de impuesto %s sin número fiscal del cliente", inv.Number)
	}
}

// checkLines: fidelidad de precio contra el catálogo del lote,
// rentabilidad por línea y acumulación por artículo.
func (v *Validator) checkLines(rep *Report, inv *entity.Invoice, deducted map[string]int) {
	for i := range inv.Lines {
		ln := &inv.Lines[i]
		lot, err := v.store.Lot(ln.LotID)
		if err != nil {
			rep.add(Critical, "precio", "factura %s línea %d: lote %q inexistente", inv.Number, i+1, ln.LotID)
			continue
		}
		if !ln.UnitPriceExVAT.Equal(lot.UnitPriceExVAT) {
			rep.add(Critical, "precio", "factura %s línea %d: precio %s ≠ catálogo %s (lote %s)",
				inv.Number, i+1, ln.UnitPriceExVAT, lot.UnitPriceExVAT, ln.LotID)
		}
		if ln.UnitPriceExVAT.LessThan(ln.UnitCostExVAT) {
			rep.add(Critical, "rentabilidad", "factura %s línea %d: precio %s bajo costo %s (lote %s)",
				inv.Number, i+1, ln.UnitPriceExVAT, ln.UnitCostExVAT, ln.LotID)
		}
		deducted[ln.LotID] += ln.Quantity

		qty := decimal.NewFromInt(int64(ln.Quantity))
		p := rep.ItemProfits[ln.ItemDescription]
		if p == nil {
			p = &ItemProfit{ItemDescription: ln.ItemDescription, Revenue: decimal.Zero, Cost: decimal.Zero}
			rep.ItemProfits[ln.ItemDescription] = p
		}
		p.Revenue = p.Revenue.Add(ln.UnitPriceExVAT.Mul(qty))
		p.Cost = p.Cost.Add(ln.UnitCostExVAT.Mul(qty))
		rep.GrossRevenue = rep.GrossRevenue.Add(ln.UnitPriceExVAT.Mul(qty))
		rep.GrossCost = rep.GrossCost.Add(ln.UnitCostExVAT.Mul(qty))
	}
}

// checkInventory: sin stock negativo y deducciones consistentes con lo
// importado.
func (v *Validator) checkInventory(rep *Report, deducted map[string]int) {
	for _, lot := range v.store.Lots() {
		if lot.QtyRemaining < 0 || lot.QtyRemaining > lot.QtyImported {
			rep.add(Critical, "inventario", "lote %s: remanente %d fuera de [0, %d]",
				lot.ID(), lot.QtyRemaining, lot.QtyImported)
		}
		if d := deducted[lot.ID()]; d != lot.QtyImported-lot.QtyRemaining {
			rep.add(Critical, "inventario", "lote %s: emitido %d ≠ importado − remanente %d",
				lot.ID(), d, lot.QtyImported-lot.QtyRemaining)
		}
	}
}

// checkQuarterTotals: los estrictos dentro de la tolerancia; los no
// estrictos solo registran la varianza.
func (v *Validator) checkQuarterTotals(rep *Report, run *alignment.RunResult) {
	for _, qr := range run.Quarters {
		if qr.Quarter.Strict {
			if qr.Variance.Abs().GreaterThan(v.strictTolerance) {
				rep.add(Critical, "totales", "trimestre %s: varianza %s supera la tolerancia %s",
					qr.Quarter.Label, qr.Variance.StringFixed(2), v.strictTolerance)
			}
		} else if !qr.Variance.IsZero() {
			rep.add(Warning, "totales", "trimestre %s: varianza %s (cobertura %s%%, mejor esfuerzo)",
				qr.Quarter.Label, qr.Variance.StringFixed(2), qr.CoveragePct)
		}
	}
}

// checkNumbering: consecutivos contiguos y ascendentes por espacio de
// secuencia.
func (v *Validator) checkNumbering(rep *Report, invoices []*entity.Invoice) {
	expect := map[entity.InvoiceType]int{entity.Simplified: 0, entity.Tax: 0}
	for _, inv := range invoices {
		seq, err := sequenceOf(inv.Number)
		if err != nil {
			rep.add(Critical, "numeracion", "factura %q: número ilegible", inv.Number)
			continue
		}
		expect[inv.Type]++
		if seq != expect[inv.Type] {
			rep.add(Critical, "numeracion", "factura %s: consecutivo %d, se esperaba %d", inv.Number, seq, expect[inv.Type])
			expect[inv.Type] = seq
		}
	}
}

// sequenceOf extrae el consecutivo final del número de factura.
func sequenceOf(number string) (int, error) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, fmt.Errorf("número sin consecutivo: %q", number)
	}
	return strconv.Atoi(number[idx+1:])
}
