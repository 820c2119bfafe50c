package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer es una compra B2B del padrón de clientes con registro
// fiscal. Cada registro se usa exactamente una vez: produce una única
// factura de impuesto en PurchaseDate por PurchaseAmountIncVAT exacto.
type Customer struct {
	Name string
	// VATNumber se conserva como texto para no perder ceros a la
	// izquierda.
	VATNumber            string
	Address              string
	PurchaseAmountIncVAT decimal.Decimal
	PurchaseDate         time.Time
}
