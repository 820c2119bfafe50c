package validation_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/ventas-retro/internal/application/alignment"
	"github.com/tu-usuario/ventas-retro/internal/application/validation"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var vatRate = dec("0.15")

func libroSano(t *testing.T) (*inventory.Store, *alignment.RunResult) {
	t.Helper()
	lot := &entity.Lot{
		ItemDescription:      "أرز بسمتي",
		CustomsDeclarationNo: "D1",
		Classification:       entity.NonExcInspection,
		ImportDate:           time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
		StockDate:            time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC),
		QtyImported:          1000,
		UnitCostExVAT:        dec("8.00"),
		UnitPriceExVAT:       dec("10.00"),
	}
	store, err := inventory.Load([]*entity.Lot{lot})
	require.NoError(t, err)
	_, err = store.Deduct(lot.ID(), 20)
	require.NoError(t, err)

	inv := &entity.Invoice{
		Number:       "INV-SIMP-202401-000001",
		Type:         entity.Simplified,
		IssuedAt:     time.Date(2024, time.January, 15, 13, 30, 0, 0, time.UTC), // lunes
		CustomerName: entity.CashCustomerName,
		Lines: []entity.InvoiceLine{{
			LotID:           lot.ID(),
			ItemDescription: lot.ItemDescription,
			Classification:  lot.Classification,
			Quantity:        20,
			UnitPriceExVAT:  dec("10.00"),
			UnitCostExVAT:   dec("8.00"),
			LineSubtotal:    money.LineSubtotal(dec("10.00"), 20),
		}},
	}
	inv.Recalculate(vatRate)

	inc := inv.Total
	q := &entity.QuarterTarget{
		Label:       "Q1-2024",
		PeriodStart: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		SalesIncVAT: inc,
		Strict:      true,
	}
	run := &alignment.RunResult{
		Quarters: []alignment.QuarterResult{{
			Quarter:      q,
			Invoices:     []*entity.Invoice{inv},
			CashCount:    1,
			ActualIncVAT: inc,
			Variance:     decimal.Zero,
			CoveragePct:  dec("100"),
		}},
		Invoices: []*entity.Invoice{inv},
	}
	return store, run
}

func newValidator(store *inventory.Store, holidays calendar.HolidaySet) *validation.Validator {
	return validation.New(store, holidays, vatRate, dec("0.10"))
}

func TestValidate_LibroSanoSinHallazgos(t *testing.T) {
	store, run := libroSano(t)
	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assert.False(t, rep.Failed(), "hallazgos: %+v", rep.Findings)
	assert.True(t, rep.GrossRevenue.GreaterThan(rep.GrossCost))
}

// La deriva de precio contra el catálogo del lote es crítica.
func TestValidate_DetectaDerivaDePrecio(t *testing.T) {
	store, run := libroSano(t)
	run.Invoices[0].Lines[0].UnitPriceExVAT = dec("11.00")
	run.Invoices[0].Lines[0].LineSubtotal = money.LineSubtotal(dec("11.00"), 20)
	run.Invoices[0].Recalculate(vatRate)
	run.Quarters[0].Variance = run.Quarters[0].Quarter.SalesIncVAT.Sub(run.Invoices[0].Total)

	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assert.True(t, rep.Failed())
	assertFinding(t, rep, "precio")
}

func TestValidate_DetectaViernesYFeriado(t *testing.T) {
	store, run := libroSano(t)
	// 2024-01-19 es viernes.
	run.Invoices[0].IssuedAt = time.Date(2024, time.January, 19, 13, 0, 0, 0, time.UTC)
	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "calendario")

	store2, run2 := libroSano(t)
	feriado := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	rep2 := newValidator(store2, calendar.NewHolidaySet([]time.Time{feriado})).Validate(run2)
	assertFinding(t, rep2, "calendario")
}

// Mercancía selectiva acompañada de otra línea: violación de mezcla.
func TestValidate_DetectaMezclaSelectiva(t *testing.T) {
	store, run := libroSano(t)
	run.Invoices[0].Lines = append(run.Invoices[0].Lines, entity.InvoiceLine{
		LotID:           run.Invoices[0].Lines[0].LotID,
		Classification:  entity.ExcInspection,
		Quantity:        1,
		UnitPriceExVAT:  dec("10.00"),
		UnitCostExVAT:   dec("8.00"),
		LineSubtotal:    dec("10.00"),
		ItemDescription: "مشروب طاقة",
	})
	run.Invoices[0].Recalculate(vatRate)
	run.Quarters[0].Variance = run.Quarters[0].Quarter.SalesIncVAT.Sub(run.Invoices[0].Total)

	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "clasificacion")
}

// Una factura de impuesto con una línea fuera de NONEXC_INSPECTION es
// crítica.
func TestValidate_DetectaTaxImpuro(t *testing.T) {
	store, run := libroSano(t)
	run.Invoices[0].Type = entity.Tax
	run.Invoices[0].Number = "INV-TAX-202401-000001"
	run.Invoices[0].CustomerVATNumber = "300000000000003"
	run.Invoices[0].Lines[0].Classification = entity.NonExcOutside

	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "clasificacion")
}

// Huecos en el consecutivo: crítico.
func TestValidate_DetectaHuecoDeNumeracion(t *testing.T) {
	store, run := libroSano(t)
	run.Invoices[0].Number = "INV-SIMP-202401-000003"

	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "numeracion")
}

// Deducciones inconsistentes con el remanente del lote: crítico.
func TestValidate_DetectaInventarioInconsistente(t *testing.T) {
	store, run := libroSano(t)
	run.Invoices[0].Lines[0].Quantity = 25 // emitidas 25, deducidas 20
	run.Invoices[0].Lines[0].LineSubtotal = money.LineSubtotal(dec("10.00"), 25)
	run.Invoices[0].Recalculate(vatRate)
	run.Quarters[0].Variance = run.Quarters[0].Quarter.SalesIncVAT.Sub(run.Invoices[0].Total)

	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "inventario")
}

// Trimestre estricto fuera de tolerancia: crítico; no estricto: solo
// advertencia.
func TestValidate_TotalesTrimestrales(t *testing.T) {
	store, run := libroSano(t)
	run.Quarters[0].Variance = dec("12.00")
	rep := newValidator(store, calendar.NewHolidaySet(nil)).Validate(run)
	assertFinding(t, rep, "totales")

	store2, run2 := libroSano(t)
	run2.Quarters[0].Quarter.Strict = false
	run2.Quarters[0].Variance = dec("12000.00")
	rep2 := newValidator(store2, calendar.NewHolidaySet(nil)).Validate(run2)
	assert.False(t, rep2.Failed())
	assertFinding(t, rep2, "totales") // advertencia con la cobertura
}

func assertFinding(t *testing.T, rep *validation.Report, check string) {
	t.Helper()
	for _, f := range rep.Findings {
		if f.Check == check {
			return
		}
	}
	t.Fatalf("no se encontró hallazgo %q en %+v", check, rep.Findings)
}
