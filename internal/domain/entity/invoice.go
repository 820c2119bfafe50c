package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

// InvoiceType distingue la factura simplificada (venta de mostrador)
// de la factura de impuesto (B2B con cliente identificado).
type InvoiceType string

const (
	Simplified InvoiceType = "SIMPLIFIED"
	Tax        InvoiceType = "TAX"
)

// CashCustomerName es el centinela de cliente de mostrador.
const CashCustomerName = "عميل نقدي"

// InvoiceLine es una línea de factura. Referencia el lote por LotID
// (clave de texto, nunca puntero) y copia precio y costo del lote en
// el momento de la emisión. Dos líneas de la misma descripción pero de
// lotes distintos se mantienen separadas, cada una con su precio.
type InvoiceLine struct {
	LotID                string
	CustomsDeclarationNo string
	ItemDescription      string
	Classification       Classification
	Quantity             int
	UnitPriceExVAT       decimal.Decimal
	UnitCostExVAT        decimal.Decimal
	// LineSubtotal = round2(UnitPriceExVAT × Quantity).
	LineSubtotal decimal.Decimal
}

// Rematerialize recalcula el subtotal de la línea tras un ajuste de
// cantidad (refinamiento ±1).
func (ln *InvoiceLine) Rematerialize() {
	ln.LineSubtotal = money.LineSubtotal(ln.UnitPriceExVAT, ln.Quantity)
}

// Invoice es una factura sintetizada del libro de ventas.
//
// Invariantes: Subtotal = Σ LineSubtotal; VATAmount =
// round2(Subtotal × tasa); Total = Subtotal + VATAmount; todos los
// montos a escala 2.
type Invoice struct {
	// ID interno determinista (uuid.NewSHA1 sobre el número); el
	// Number se asigna al final de la alineación.
	ID     string
	Number string
	Type   InvoiceType
	// IssuedAt lleva fecha y hora local de emisión.
	IssuedAt time.Time

	CustomerName      string
	CustomerVATNumber string
	CustomerAddress   string

	Lines     []InvoiceLine
	Subtotal  decimal.Decimal
	VATAmount decimal.Decimal
	Total     decimal.Decimal

	// QRPayload: TLV en Base64, solo facturas simplificadas.
	QRPayload string
}

// Recalculate rederiva subtotal, impuesto y total desde las líneas.
// Es la única vía de actualización de los totales tras componer o
// refinar la factura.
func (inv *Invoice) Recalculate(vatRate decimal.Decimal) {
	subtotal := decimal.Zero
	for i := range inv.Lines {
		subtotal = subtotal.Add(inv.Lines[i].LineSubtotal)
	}
	inv.Subtotal = subtotal
	inv.VATAmount = money.VAT(subtotal, vatRate)
	inv.Total = inv.Subtotal.Add(inv.VATAmount)
}

// HasExciseLine indica si alguna línea es de mercancía selectiva.
func (inv *Invoice) HasExciseLine() bool {
	for i := range inv.Lines {
		if inv.Lines[i].Classification == ExcInspection {
			return true
		}
	}
	return false
}

// Date devuelve la fecha (sin hora) de emisión.
func (inv *Invoice) Date() time.Time {
	return time.Date(inv.IssuedAt.Year(), inv.IssuedAt.Month(), inv.IssuedAt.Day(), 0, 0, 0, 0, time.UTC)
}
