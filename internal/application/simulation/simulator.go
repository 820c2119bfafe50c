// Package simulation genera el flujo diario de facturas de mostrador
// de un trimestre. El conteo, el tamaño y el horario de las facturas
// siguen señales de calendario (día de semana, días de sueldo, Ramadán
// y Sha'bán, cierre de trimestre); toda aleatoriedad sale del
// generador sembrado del alineador.
package simulation

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/application/composer"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/pkg/logger"
)

// Pesos por día de semana (viernes queda excluido aguas arriba).
var weekdayWeights = map[time.Weekday]float64{
	time.Monday:    1.0,
	time.Tuesday:   1.0,
	time.Wednesday: 1.1,
	time.Thursday:  1.5,
	time.Saturday:  1.3,
	time.Sunday:    1.2,
}

// Picos por día del mes: sueldo (27), seguridad social (1) y cuenta
// ciudadana (10).
var monthDayWeights = map[int]float64{
	27: 1.5,
	1:  1.2,
	10: 1.1,
}

// Impulsos estacionales del calendario Hiyri.
const (
	ramadanBoost = 2.5
	shaabanBoost = 2.0
)

// Pesos por hora del día (9:00 a 22:00): pico de almuerzo y de tarde.
var hourWeights = []struct {
	hour   int
	weight float64
}{
	{9, 0.3}, {10, 0.5}, {11, 0.8}, {12, 1.2}, {13, 1.5}, {14, 1.0},
	{15, 0.8}, {16, 0.9}, {17, 1.3}, {18, 1.8}, {19, 1.5}, {20, 1.0},
	{21, 0.6},
}

// Tamaño de factura: distribución normal truncada alrededor de una
// media adaptativa, desvío relativo 0.3, recortada a [500, 10000].
var (
	sizeRelStdDev = 0.3
	sizeMin       = decimal.NewFromInt(500)
	sizeMax       = decimal.NewFromInt(10_000)
)

// StopFunc la consulta el generador antes de cada factura con el
// acumulado ex-VAT; true corta la generación (umbrales por nivel de
// exigencia del trimestre, propiedad del alineador).
type StopFunc func(accumExVAT decimal.Decimal) bool

// Simulator produce las facturas de mostrador de un trimestre.
type Simulator struct {
	store    *inventory.Store
	comp     *composer.Composer
	rng      *rand.Rand
	holidays calendar.HolidaySet
	vatRate  decimal.Decimal
	maxIters int
	log      *logger.Logger
}

// New construye el simulador. rng es el único generador de la corrida.
func New(store *inventory.Store, comp *composer.Composer, rng *rand.Rand,
	holidays calendar.HolidaySet, vatRate decimal.Decimal, maxIters int, log *logger.Logger) *Simulator {
	return &Simulator{
		store:    store,
		comp:     comp,
		rng:      rng,
		holidays: holidays,
		vatRate:  vatRate,
		maxIters: maxIters,
		log:      log,
	}
}

// GenerateCash genera facturas simplificadas para el periodo hasta que
// stop corte o se agote el presupuesto de iteraciones. remainingExVAT
// es la brecha ex-VAT que dejó la fase B2B.
func (s *Simulator) GenerateCash(q *entity.QuarterTarget, remainingExVAT decimal.Decimal, stop StopFunc) []*entity.Invoice {
	workingDays := calendar.WorkingDays(q.PeriodStart, q.PeriodEnd, s.holidays)
	if len(workingDays) == 0 {
		return nil
	}

	var invoices []*entity.Invoice
	accum := decimal.Zero

	for iter := 0; iter < s.maxIters; iter++ {
		if stop(accum) {
			break
		}
		available := s.sellableDays(workingDays)
		if len(available) == 0 {
			s.log.Warn().Str("trimestre", q.Label).Msg("sin inventario activo para los días restantes")
			break
		}

		date := s.weightedDate(available, q)
		daysLeft := 0
		for _, d := range workingDays {
			if !d.Before(date) {
				daysLeft++
			}
		}

		gap := remainingExVAT.Sub(accum)
		size := s.invoiceSize(date, gap, daysLeft, q)
		lines := s.comp.Compose(entity.Simplified, date, composer.Hint{AmountTarget: size})
		if len(lines) == 0 {
			continue
		}

		inv := &entity.Invoice{
			Type:         entity.Simplified,
			IssuedAt:     s.timestamp(date),
			CustomerName: entity.CashCustomerName,
			Lines:        lines,
		}
		inv.Recalculate(s.vatRate)
		invoices = append(invoices, inv)
		accum = accum.Add(inv.Subtotal)
	}

	return invoices
}

// sellableDays filtra los días hábiles en los que existe al menos un
// lote ya activo con stock.
func (s *Simulator) sellableDays(workingDays []time.Time) []time.Time {
	earliest := time.Time{}
	found := false
	for _, l := range s.store.Lots() {
		if l.QtyRemaining <= 0 || !l.Profitable() {
			continue
		}
		if !found || l.StockDate.Before(earliest) {
			earliest = l.StockDate
			found = true
		}
	}
	if !found {
		return nil
	}
	var out []time.Time
	for _, d := range workingDays {
		if !d.Before(earliest) {
			out = append(out, d)
		}
	}
	return out
}

// DayWeight combina las señales de calendario de una fecha.
func DayWeight(d time.Time, q *entity.QuarterTarget) float64 {
	w := weekdayWeights[d.Weekday()]
	if w == 0 {
		return 0 // viernes: excluido
	}
	if boost, ok := monthDayWeights[d.Day()]; ok {
		w *= boost
	}
	if calendar.IsRamadan(d) {
		w *= ramadanBoost
	} else if calendar.IsShaaban(d) {
		w *= shaabanBoost
	}

	// Empuje de cierre de trimestre y arranque lento.
	switch toEnd := calendar.DaysBetween(d, q.PeriodEnd); {
	case toEnd <= 7:
		w *= 1.8
	case toEnd <= 14:
		w *= 1.4
	}
	if calendar.DaysBetween(q.PeriodStart, d) <= 7 {
		w *= 0.8
	}
	return w
}

// weightedDate sortea una fecha por ruleta sobre DayWeight.
func (s *Simulator) weightedDate(dates []time.Time, q *entity.QuarterTarget) time.Time {
	total := 0.0
	weights := make([]float64, len(dates))
	for i, d := range dates {
		weights[i] = DayWeight(d, q)
		total += weights[i]
	}
	if total <= 0 {
		return dates[s.rng.Intn(len(dates))]
	}
	r := s.rng.Float64() * total
	for i, d := range dates {
		r -= weights[i]
		if r <= 0 {
			return d
		}
	}
	return dates[len(dates)-1]
}

// invoiceSize calcula el objetivo ex-VAT de una factura: media
// adaptativa (brecha restante / días restantes) escalada en días pico
// y en la última semana, normal truncada con desvío relativo 0.3 y
// recorte a [500, min(brecha, 10000)].
func (s *Simulator) invoiceSize(d time.Time, gap decimal.Decimal, daysLeft int, q *entity.QuarterTarget) decimal.Decimal {
	if daysLeft <= 0 {
		daysLeft = 1
	}
	gapF, _ := gap.Float64()
	if gapF < 0 {
		gapF = 0
	}
	mean := gapF / float64(daysLeft)

	if isPeakDay(d) {
		mean *= 1.5
	}
	if calendar.DaysBetween(d, q.PeriodEnd) <= 7 {
		mean *= 1.5
	}

	size := s.rng.NormFloat64()*mean*sizeRelStdDev + mean

	sized := decimal.NewFromFloat(size).Round(2)
	if sized.LessThan(sizeMin) {
		sized = sizeMin
	}
	// El techo es la brecha restante: la última factura del trimestre
	// persigue exactamente lo que queda, aunque sea menor al piso.
	ceiling := sizeMax
	if gap.IsPositive() && gap.LessThan(ceiling) {
		ceiling = gap.Round(2)
	}
	if sized.GreaterThan(ceiling) {
		sized = ceiling
	}
	return sized
}

// isPeakDay: jueves o día de sueldo.
func isPeakDay(d time.Time) bool {
	if d.Weekday() == time.Thursday {
		return true
	}
	_, salary := monthDayWeights[d.Day()]
	return salary
}

// timestamp sortea una hora ponderada (picos de almuerzo y tarde) y un
// minuto uniforme dentro del horario comercial.
func (s *Simulator) timestamp(d time.Time) time.Time {
	total := 0.0
	for _, hw := range hourWeights {
		total += hw.weight
	}
	r := s.rng.Float64() * total
	hour := hourWeights[len(hourWeights)-1].hour
	for _, hw := range hourWeights {
		r -= hw.weight
		if r <= 0 {
			hour = hw.hour
			break
		}
	}
	return calendar.At(d, hour, s.rng.Intn(60))
}
