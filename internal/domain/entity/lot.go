package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Classification es la etiqueta de fiscalización/selectividad de un
// lote. Gobierna la composición de canastas y los reportes.
type Classification string

const (
	// ExcInspection: mercancía selectiva bajo fiscalización. Exclusiva:
	// una factura con una línea de este tipo no admite ninguna otra.
	ExcInspection Classification = "EXC_INSPECTION"
	// NonExcInspection: mercancía no selectiva bajo fiscalización.
	// Única clase admitida en facturas de impuesto (B2B).
	NonExcInspection Classification = "NONEXC_INSPECTION"
	// NonExcOutside: mercancía no selectiva fuera de fiscalización.
	NonExcOutside Classification = "NONEXC_OUTSIDE"
)

// Etiquetas árabes tal como vienen en el catálogo de importación.
const (
	ArabicExcInspection    = "محل الفحص سلع انتقائية"
	ArabicNonExcInspection = "محل الفحص سلع غير انتقائية"
	ArabicNonExcOutside    = "خارج حالة الفحص غير انتقائية"
)

// Valid indica si la clasificación es una de las tres admitidas.
func (c Classification) Valid() bool {
	switch c {
	case ExcInspection, NonExcInspection, NonExcOutside:
		return true
	}
	return false
}

// Lot es la unidad atómica del inventario: una partida importada con
// su propio precio y costo, identificada por
// customs_declaration_no + ":" + item_description.
//
// Invariantes: 0 ≤ QtyRemaining ≤ QtyImported; el precio y el costo se
// congelan en la carga y nunca se recalculan ni se promedian entre
// lotes. Un lote con UnitPriceExVAT < UnitCostExVAT se marca y queda
// excluido de toda selección.
type Lot struct {
	ItemDescription      string
	CustomsDeclarationNo string
	Classification       Classification
	ImportDate           time.Time
	// StockDate = ImportDate + demora de activación sorteada en la
	// carga (política [min..max] días; 0 para el trimestre más
	// temprano para no matar de hambre su cobertura).
	StockDate      time.Time
	QtyImported    int
	QtyRemaining   int
	UnitCostExVAT  decimal.Decimal
	UnitPriceExVAT decimal.Decimal
}

// ID devuelve el identificador del lote:
// customs_declaration_no:item_description.
func (l *Lot) ID() string {
	return l.CustomsDeclarationNo + ":" + l.ItemDescription
}

// Profitable indica si el lote respeta precio ≥ costo.
func (l *Lot) Profitable() bool {
	return l.UnitPriceExVAT.GreaterThanOrEqual(l.UnitCostExVAT)
}

// ActiveAt indica si el lote ya está disponible para venta en la fecha.
func (l *Lot) ActiveAt(d time.Time) bool {
	return !l.StockDate.After(d)
}
