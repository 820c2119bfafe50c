package simulation_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/ventas-retro/internal/application/composer"
	"github.com/tu-usuario/ventas-retro/internal/application/simulation"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/pkg/config"
	"github.com/tu-usuario/ventas-retro/pkg/logger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func quarter() *entity.QuarterTarget {
	return &entity.QuarterTarget{
		Label:       "Q3-2024",
		PeriodStart: d(2024, time.July, 1),
		PeriodEnd:   d(2024, time.September, 30),
	}
}

// El peso del día refleja las señales de calendario: jueves por encima
// de lunes, viernes en cero, cierre de trimestre empujado.
func TestDayWeight_Senales(t *testing.T) {
	q := quarter()

	// 2024-07-18 jueves vs 2024-07-15 lunes (misma semana).
	jueves := simulation.DayWeight(d(2024, time.July, 18), q)
	lunes := simulation.DayWeight(d(2024, time.July, 15), q)
	assert.Greater(t, jueves, lunes)

	// Viernes excluido.
	assert.Zero(t, simulation.DayWeight(d(2024, time.July, 19), q))

	// Día 27 (sueldo) pesa más que el 20 del mismo mes.
	dia27 := simulation.DayWeight(d(2024, time.August, 27), q) // martes
	dia20 := simulation.DayWeight(d(2024, time.August, 20), q) // martes
	assert.Greater(t, dia27, dia20)

	// Última semana del trimestre empujada (mismo día de semana).
	cierre := simulation.DayWeight(d(2024, time.September, 26), q) // jueves
	normal := simulation.DayWeight(d(2024, time.September, 5), q)  // jueves
	assert.Greater(t, cierre, normal)
}

// Ramadán duplica y pico: marzo de 2024 contra un martes común.
func TestDayWeight_Ramadan(t *testing.T) {
	q := &entity.QuarterTarget{
		Label:       "Q1-2024",
		PeriodStart: d(2024, time.January, 1),
		PeriodEnd:   d(2024, time.March, 31),
	}
	ramadan := simulation.DayWeight(d(2024, time.March, 19), q) // martes en Ramadán
	comun := simulation.DayWeight(d(2024, time.January, 16), q) // martes común
	assert.Greater(t, ramadan, comun*2)
}

func newSimulator(t *testing.T) (*simulation.Simulator, *inventory.Store) {
	t.Helper()
	stock := d(2024, time.June, 1)
	store, err := inventory.Load([]*entity.Lot{
		{
			ItemDescription: "شاي أخضر", CustomsDeclarationNo: "D1",
			Classification: entity.NonExcInspection,
			ImportDate:     stock, StockDate: stock,
			QtyImported: 100000, UnitCostExVAT: dec("2.00"), UnitPriceExVAT: dec("3.25"),
		},
		{
			ItemDescription: "سكر ناعم", CustomsDeclarationNo: "D2",
			Classification: entity.NonExcOutside,
			ImportDate:     stock, StockDate: stock,
			QtyImported: 200000, UnitCostExVAT: dec("0.50"), UnitPriceExVAT: dec("0.80"),
		},
	})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	gen := config.GenerationConfig{
		VATRate:              dec("0.15"),
		LineItemsPerInvoice:  config.Range{Min: 2, Max: 10},
		QuantityPerLine:      config.Range{Min: 3, Max: 40},
		ExciseExclusiveRatio: 0,
	}
	comp := composer.New(store, rng, gen)
	log := logger.New(logger.Config{Env: "development", Level: "error"})
	return simulation.New(store, comp, rng, calendar.NewHolidaySet(nil), dec("0.15"), 1000, log), store
}

// La generación de mostrador respeta el corte, el calendario y el
// horario comercial.
func TestGenerateCash(t *testing.T) {
	sim, _ := newSimulator(t)
	q := quarter()
	remaining := dec("20000.00")

	invoices := sim.GenerateCash(q, remaining, func(accum decimal.Decimal) bool {
		return remaining.Sub(accum).LessThanOrEqual(dec("0.10"))
	})
	require.NotEmpty(t, invoices)

	accum := decimal.Zero
	for _, inv := range invoices {
		assert.Equal(t, entity.Simplified, inv.Type)
		assert.Equal(t, entity.CashCustomerName, inv.CustomerName)
		assert.NotEqual(t, time.Friday, inv.IssuedAt.Weekday())
		assert.True(t, q.Contains(calendar.DateOnly(inv.IssuedAt)), "fecha %s fuera del trimestre", inv.IssuedAt)
		assert.GreaterOrEqual(t, inv.IssuedAt.Hour(), 9)
		assert.LessOrEqual(t, inv.IssuedAt.Hour(), 21)
		assert.NotEmpty(t, inv.Lines)
		accum = accum.Add(inv.Subtotal)
	}

	// El acumulado quedó cerca del objetivo: ni muy corto ni un
	// sobregiro mayor al margen de una canasta.
	assert.True(t, accum.GreaterThan(dec("19000.00")), "acumulado %s", accum)
	assert.True(t, accum.LessThan(dec("21000.00")), "acumulado %s", accum)
}

// Sin lotes activos en el periodo no se genera nada.
func TestGenerateCash_SinStockActivo(t *testing.T) {
	sim, store := newSimulator(t)
	for _, l := range store.Lots() {
		_, err := store.Deduct(l.ID(), l.QtyRemaining)
		require.NoError(t, err)
	}
	invoices := sim.GenerateCash(quarter(), dec("5000.00"), func(decimal.Decimal) bool { return false })
	assert.Empty(t, invoices)
}
