package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/domain/money"
)

// QuarterTarget fija los totales declarados de un trimestre fiscal.
// En trimestres estrictos el libro generado debe cerrar dentro de la
// tolerancia; en los no estrictos se acepta el mejor esfuerzo y la
// cobertura se reporta sin enmascarar.
type QuarterTarget struct {
	Label       string
	PeriodStart time.Time
	PeriodEnd   time.Time
	SalesExVAT  decimal.Decimal
	VATAmount   decimal.Decimal
	SalesIncVAT decimal.Decimal
	Strict      bool
}

// Validate verifica la consistencia aritmética del objetivo:
// SalesIncVAT = SalesExVAT + VATAmount y VATAmount = round2(SalesExVAT × tasa).
func (q *QuarterTarget) Validate(vatRate decimal.Decimal) error {
	if q.PeriodEnd.Before(q.PeriodStart) {
		return fmt.Errorf("trimestre %s: periodo invertido", q.Label)
	}
	if !q.SalesIncVAT.Equal(q.SalesExVAT.Add(q.VATAmount)) {
		return fmt.Errorf("trimestre %s: sales_inc_vat ≠ sales_ex_vat + vat_amount", q.Label)
	}
	if !q.VATAmount.Equal(money.VAT(q.SalesExVAT, vatRate)) {
		return fmt.Errorf("trimestre %s: vat_amount ≠ round2(sales_ex_vat × %s)", q.Label, vatRate)
	}
	return nil
}

// Contains indica si la fecha cae dentro del periodo del trimestre.
func (q *QuarterTarget) Contains(d time.Time) bool {
	return !d.Before(q.PeriodStart) && !d.After(q.PeriodEnd)
}
