// Package money concentra la aritmética monetaria del generador.
// Todo valor monetario viaja como decimal de escala fija; la
// materialización final de cada línea se redondea a escala 2 con
// redondeo "half-up". Ningún camino de dinero usa punto flotante.
package money

import "github.com/shopspring/decimal"

// Escala final de todos los montos emitidos (2 decimales).
const Scale = 2

var (
	// Cien para conversiones de porcentaje (margen de utilidad).
	Hundred = decimal.NewFromInt(100)
	// Uno, reutilizado para construir 1 + tasa.
	One = decimal.NewFromInt(1)
)

// Round2 redondea a escala 2 con half-up (mitades se alejan de cero;
// los montos del libro son siempre positivos).
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// LineSubtotal materializa el subtotal de una línea: precio × cantidad,
// redondeado a escala 2 antes de cualquier suma posterior.
func LineSubtotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return Round2(unitPrice.Mul(decimal.NewFromInt(int64(qty))))
}

// VAT calcula el impuesto de un subtotal: round2(subtotal × tasa).
func VAT(subtotal, rate decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Mul(rate))
}

// BackOutSubtotal despeja el subtotal de un total con impuesto incluido:
// round2(total / (1 + tasa)). Es el sitio más propenso a error del
// flujo B2B; el residuo queda en el impuesto, nunca en el subtotal.
func BackOutSubtotal(totalIncVAT, rate decimal.Decimal) decimal.Decimal {
	return Round2(totalIncVAT.Div(One.Add(rate)))
}

// BackOutVAT devuelve el impuesto implícito de un total con impuesto:
// total − subtotal despejado. Garantiza subtotal + impuesto == total.
func BackOutVAT(totalIncVAT, rate decimal.Decimal) decimal.Decimal {
	return totalIncVAT.Sub(BackOutSubtotal(totalIncVAT, rate))
}

// FromMarginPct deriva un precio de venta desde costo y margen
// porcentual: costo × (1 + margen/100). Solo se usa cuando el catálogo
// no trae precio explícito.
func FromMarginPct(unitCost, marginPct decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(One.Add(marginPct.Div(Hundred)))
}
