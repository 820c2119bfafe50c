// Package calendar implementa el calendario comercial del emisor:
// semana laboral sábado–jueves (viernes cerrado), feriados oficiales y
// meses Hiyri relevantes para la estacionalidad (Sha'bán y Ramadán,
// calendario Umm al-Qura).
package calendar

import (
	"time"

	"github.com/hablullah/go-hijri"
)

// Meses Hiyri con impulso estacional de ventas.
const (
	HijriShaaban = 8
	HijriRamadan = 9
)

// HolidaySet es el conjunto de fechas cerradas por feriado oficial.
// Las claves se normalizan a medianoche UTC.
type HolidaySet map[time.Time]struct{}

// NewHolidaySet construye el conjunto a partir de las fechas leídas.
func NewHolidaySet(dates []time.Time) HolidaySet {
	hs := make(HolidaySet, len(dates))
	for _, d := range dates {
		hs[DateOnly(d)] = struct{}{}
	}
	return hs
}

// Contains indica si la fecha está marcada como feriado.
func (hs HolidaySet) Contains(d time.Time) bool {
	_, ok := hs[DateOnly(d)]
	return ok
}

// DateOnly normaliza a medianoche UTC para usar la fecha como clave.
func DateOnly(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWorkingDay devuelve false si la fecha cae viernes o en feriado.
func IsWorkingDay(d time.Time, holidays HolidaySet) bool {
	if d.Weekday() == time.Friday {
		return false
	}
	return !holidays.Contains(d)
}

// hijriMonth devuelve el mes Umm al-Qura de una fecha gregoriana.
// Si la conversión falla (fuera del rango tabulado) devuelve 0 y la
// fecha simplemente no recibe impulso estacional.
func hijriMonth(d time.Time) int64 {
	h, err := hijri.CreateUmmAlQuraDate(d)
	if err != nil {
		return 0
	}
	return h.Month
}

// IsRamadan indica si la fecha cae en Ramadán (mes Hiyri 9).
func IsRamadan(d time.Time) bool { return hijriMonth(d) == HijriRamadan }

// IsShaaban indica si la fecha cae en Sha'bán (mes Hiyri 8).
func IsShaaban(d time.Time) bool { return hijriMonth(d) == HijriShaaban }

// DaysBetween cuenta los días calendario entre a y b (b − a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// DateRange enumera las fechas de [a, b], ambos extremos incluidos.
func DateRange(a, b time.Time) []time.Time {
	var out []time.Time
	for d := DateOnly(a); !d.After(DateOnly(b)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// WorkingDays filtra DateRange por IsWorkingDay.
func WorkingDays(a, b time.Time, holidays HolidaySet) []time.Time {
	var out []time.Time
	for _, d := range DateRange(a, b) {
		if IsWorkingDay(d, holidays) {
			out = append(out, d)
		}
	}
	return out
}

// At construye el instante local de una fecha con la hora y el minuto
// indicados (marca de tiempo de la factura).
func At(d time.Time, hour, minute int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
}
