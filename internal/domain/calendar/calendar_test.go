package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestIsWorkingDay_ViernesYFeriados(t *testing.T) {
	holidays := calendar.NewHolidaySet([]time.Time{d(2024, time.June, 16)})

	// 2024-06-14 es viernes: cerrado.
	assert.False(t, calendar.IsWorkingDay(d(2024, time.June, 14), holidays))
	// 2024-06-16 es domingo pero feriado (Eid): cerrado.
	assert.False(t, calendar.IsWorkingDay(d(2024, time.June, 16), holidays))
	// 2024-06-17 lunes común: abierto.
	assert.True(t, calendar.IsWorkingDay(d(2024, time.June, 17), holidays))
}

// Ramadán 1445 corrió del 11 de marzo al 9 de abril de 2024 en el
// calendario Umm al-Qura; Sha'bán lo precedió desde el 11 de febrero.
func TestMesesHiyri(t *testing.T) {
	assert.True(t, calendar.IsRamadan(d(2024, time.March, 20)))
	assert.False(t, calendar.IsRamadan(d(2024, time.February, 20)))

	assert.True(t, calendar.IsShaaban(d(2024, time.February, 20)))
	assert.False(t, calendar.IsShaaban(d(2024, time.March, 20)))

	// Mitad de año: ni Ramadán ni Sha'bán.
	assert.False(t, calendar.IsRamadan(d(2024, time.July, 15)))
	assert.False(t, calendar.IsShaaban(d(2024, time.July, 15)))
}

func TestDateRangeYWorkingDays(t *testing.T) {
	holidays := calendar.NewHolidaySet(nil)

	rango := calendar.DateRange(d(2024, time.March, 1), d(2024, time.March, 7))
	require.Len(t, rango, 7)

	// En esa semana cae un solo viernes (2024-03-01).
	habiles := calendar.WorkingDays(d(2024, time.March, 1), d(2024, time.March, 7), holidays)
	assert.Len(t, habiles, 6)
	for _, day := range habiles {
		assert.NotEqual(t, time.Friday, day.Weekday())
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 30, calendar.DaysBetween(d(2024, time.March, 1), d(2024, time.March, 31)))
	assert.Equal(t, 0, calendar.DaysBetween(d(2024, time.March, 1), d(2024, time.March, 1)))
}

func TestAt_ConstruyeHoraLocal(t *testing.T) {
	ts := calendar.At(d(2024, time.March, 12), 18, 45)
	assert.Equal(t, 18, ts.Hour())
	assert.Equal(t, 45, ts.Minute())
	assert.Equal(t, d(2024, time.March, 12).Day(), ts.Day())
}
