// Package alignment es el motor de convergencia del libro de ventas:
// por cada trimestre emite primero las facturas B2B de monto fijo,
// luego genera ventas de mostrador hasta cerrar la brecha contra el
// total declarado, refina con ajustes de ±1 y, si un trimestre
// estricto sigue abierto, sintetiza una única factura de balance.
package alignment

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/application/composer"
	"github.com/tu-usuario/ventas-retro/internal/application/refinement"
	"github.com/tu-usuario/ventas-retro/internal/application/simulation"
	"github.com/tu-usuario/ventas-retro/internal/domain"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
	"github.com/tu-usuario/ventas-retro/pkg/config"
	"github.com/tu-usuario/ventas-retro/pkg/logger"
)

// Banda de cierre anticipado de los trimestres no estrictos: se acepta
// hasta 110% del objetivo y se corta en 95% si faltan menos de ~5000.
var (
	looseOvershoot   = decimal.NewFromFloat(1.10)
	looseNearRatio   = decimal.NewFromFloat(0.95)
	looseNearAbs     = decimal.NewFromInt(5000)
	overshootCapPref = decimal.NewFromFloat(0.95)
)

// QuarterResult es el resultado reportable de un trimestre.
type QuarterResult struct {
	Quarter      *entity.QuarterTarget
	Invoices     []*entity.Invoice
	B2BCount     int
	CashCount    int
	Deferred     []DeferredPurchase
	ActualIncVAT decimal.Decimal
	Variance     decimal.Decimal
	CoveragePct  decimal.Decimal
	Refinement   refinement.Result
	BalancingInv bool
	Err          error
}

// RunResult agrega la corrida completa.
type RunResult struct {
	Quarters      []QuarterResult
	Invoices      []*entity.Invoice // todas, numeradas y en orden cronológico
	ComposerStats composer.Stats
}

// Aligner posee el único generador aleatorio de la corrida, los
// contadores de numeración y el inventario durante la generación.
type Aligner struct {
	store    *inventory.Store
	holidays calendar.HolidaySet
	cfg      *config.Config
	log      *logger.Logger

	rng  *rand.Rand
	comp *composer.Composer
	sim  *simulation.Simulator
	ref  *refinement.Refiner
	b2b  *b2bFulfiller

	seqSimplified int
	seqTax        int
	runNamespace  uuid.UUID
}

// New arma el alineador y siembra el generador único de la corrida.
func New(store *inventory.Store, holidays calendar.HolidaySet, cfg *config.Config, log *logger.Logger) *Aligner {
	rng := rand.New(rand.NewSource(cfg.Generation.RandomSeed))
	comp := composer.New(store, rng, cfg.Generation)
	sim := simulation.New(store, comp, rng, holidays, cfg.Generation.VATRate,
		cfg.Alignment.MaxOuterIterations, log)
	ref := refinement.New(store, refinement.Options{
		VATRate:         cfg.Generation.VATRate,
		Tolerance:       cfg.Alignment.RefineTolerance,
		StrictTolerance: cfg.Alignment.StrictTolerance,
		MaxIterations:   cfg.Alignment.RefineMaxIterations,
	})
	return &Aligner{
		store:        store,
		holidays:     holidays,
		cfg:          cfg,
		log:          log,
		rng:          rng,
		comp:         comp,
		sim:          sim,
		ref:          ref,
		b2b:          &b2bFulfiller{store: store, rng: rng, vatRate: cfg.Generation.VATRate},
		runNamespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte("ventas-retro/"+cfg.Generation.InvoicePrefix)),
	}
}

// Run alinea todos los trimestres en orden cronológico y numera el
// libro completo al final con un recorrido determinista.
func (a *Aligner) Run(quarters []*entity.QuarterTarget, customers []entity.Customer) (*RunResult, error) {
	sorted := make([]*entity.QuarterTarget, len(quarters))
	copy(sorted, quarters)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PeriodStart.Before(sorted[j].PeriodStart)
	})

	res := &RunResult{}
	for _, q := range sorted {
		qr := a.alignQuarter(q, customers)
		res.Quarters = append(res.Quarters, qr)
		res.Invoices = append(res.Invoices, qr.Invoices...)
		if qr.Err != nil && q.Strict {
			a.log.Error().Str("trimestre", q.Label).Err(qr.Err).Msg("trimestre estricto sin cierre")
		}
	}

	a.assignNumbers(res.Invoices)
	res.ComposerStats = a.comp.Stats()
	return res, nil
}

// alignQuarter ejecuta la máquina de estados de un trimestre:
// fase B2B → generación de mostrador → refinamiento → balance.
func (a *Aligner) alignQuarter(q *entity.QuarterTarget, customers []entity.Customer) QuarterResult {
	qlog := a.log.ForQuarter(q.Label)
	qlog.Info().
		Str("objetivo_inc_vat", q.SalesIncVAT.StringFixed(2)).
		Bool("estricto", q.Strict).
		Msg("alineando trimestre")

	qr := QuarterResult{Quarter: q}

	// Fase 1: B2B. Defensa contra sobregiro y emisión de montos fijos.
	inQuarter := filterCustomers(customers, q)
	selected := inQuarter
	if q.Strict {
		var capped []DeferredPurchase
		selected, capped = selectWithinCap(inQuarter, q, overshootCapPref, a.cfg.Generation.VATRate)
		qr.Deferred = append(qr.Deferred, capped...)
	}
	b2bSubtotal := decimal.Zero
	b2bTotal := decimal.Zero
	for _, c := range selected {
		inv, err := a.b2b.fulfil(c)
		if err != nil {
			qlog.Warn().Str("cliente", c.Name).Err(err).Msg("compra B2B diferida")
			qr.Deferred = append(qr.Deferred, DeferredPurchase{Customer: c, Reason: err.Error()})
			continue
		}
		qr.Invoices = append(qr.Invoices, inv)
		qr.B2BCount++
		b2bSubtotal = b2bSubtotal.Add(inv.Subtotal)
		b2bTotal = b2bTotal.Add(inv.Total)
	}

	// Fase 2: brecha restante y ventas de mostrador.
	remainingEx := q.SalesExVAT.Sub(b2bSubtotal)
	qlog.Info().
		Int("facturas_b2b", qr.B2BCount).
		Str("total_b2b_inc_vat", b2bTotal.StringFixed(2)).
		Str("brecha_ex_vat", remainingEx.StringFixed(2)).
		Msg("fase B2B completa")

	cash := a.sim.GenerateCash(q, remainingEx, a.stopFunc(q, remainingEx))
	qr.CashCount = len(cash)
	qr.Invoices = append(qr.Invoices, cash...)

	// Fase 3: refinamiento contra el total con impuesto.
	qr.Refinement = a.ref.Refine(qr.Invoices, q, q.SalesIncVAT)

	// Fase 4: factura de balance si el trimestre estricto sigue abierto.
	actual := sumIncVAT(qr.Invoices)
	residual := q.SalesIncVAT.Sub(actual)
	if q.Strict && residual.Abs().GreaterThan(a.cfg.Alignment.StrictTolerance) {
		if inv, ok := a.balancingInvoice(q, residual); ok {
			qlog.Warn().
				Str("residual", residual.StringFixed(2)).
				Msg("emitiendo factura de balance")
			qr.Invoices = append(qr.Invoices, inv)
			qr.CashCount++
			qr.BalancingInv = true
			actual = sumIncVAT(qr.Invoices)
			residual = q.SalesIncVAT.Sub(actual)
		}
	}

	qr.ActualIncVAT = actual
	qr.Variance = residual
	if q.SalesIncVAT.IsPositive() {
		qr.CoveragePct = actual.Div(q.SalesIncVAT).Mul(money.Hundred).Round(1)
	}
	if q.Strict && residual.Abs().GreaterThan(a.cfg.Alignment.StrictTolerance) {
		qr.Err = fmt.Errorf("%w: residual %s", domain.ErrAlignmentUnreachable, residual.StringFixed(2))
	}
	if !q.Strict {
		lo := decimal.NewFromFloat(a.cfg.Alignment.LooseToleranceMin).Mul(money.Hundred)
		hi := decimal.NewFromFloat(a.cfg.Alignment.LooseToleranceMax).Mul(money.Hundred)
		if qr.CoveragePct.LessThan(lo) || qr.CoveragePct.GreaterThan(hi) {
			qlog.Warn().
				Str("cobertura_pct", qr.CoveragePct.String()).
				Msg("cobertura fuera de la banda aceptada del mejor esfuerzo")
		}
	}

	qlog.Info().
		Int("facturas", len(qr.Invoices)).
		Str("actual_inc_vat", actual.StringFixed(2)).
		Str("varianza", residual.StringFixed(2)).
		Str("cobertura_pct", qr.CoveragePct.String()).
		Msg("trimestre alineado")
	return qr
}

// stopFunc devuelve el corte de generación según la exigencia del
// trimestre: los estrictos persiguen la brecha hasta la tolerancia;
// los no estrictos aceptan la banda 95–110%.
func (a *Aligner) stopFunc(q *entity.QuarterTarget, remainingEx decimal.Decimal) simulation.StopFunc {
	target := remainingEx.Mul(decimal.NewFromFloat(a.cfg.Alignment.QuarterCapsTargetRatio))
	if q.Strict {
		theta := a.cfg.Alignment.StrictTolerance
		return func(accum decimal.Decimal) bool {
			return target.Sub(accum).LessThanOrEqual(theta)
		}
	}
	return func(accum decimal.Decimal) bool {
		if accum.GreaterThanOrEqual(target.Mul(looseOvershoot)) {
			return true
		}
		return accum.GreaterThanOrEqual(target.Mul(looseNearRatio)) &&
			target.Sub(accum).LessThanOrEqual(looseNearAbs)
	}
}

// balancingInvoice sintetiza la única factura que absorbe el residual
// de un trimestre estricto: elige un lote elegible y la cantidad cuyo
// total con impuesto más se acerque al residual, confiando el resto al
// redondeo half-up de la línea final.
func (a *Aligner) balancingInvoice(q *entity.QuarterTarget, residualInc decimal.Decimal) (*entity.Invoice, bool) {
	if !residualInc.IsPositive() {
		return nil, false
	}
	days := calendar.WorkingDays(q.PeriodStart, q.PeriodEnd, a.holidays)
	if len(days) == 0 {
		return nil, false
	}
	date := days[len(days)-1]
	targetSub := money.BackOutSubtotal(residualInc, a.cfg.Generation.VATRate)

	pool := a.store.AvailableLots(date, entity.NonExcInspection)
	pool = append(pool, a.store.AvailableLots(date, entity.NonExcOutside)...)

	var bestLot *entity.Lot
	bestQty := 0
	var bestErr decimal.Decimal
	for _, lot := range pool {
		for _, qty := range candidateQtys(targetSub, lot.UnitPriceExVAT) {
			if qty < 1 || qty > lot.QtyRemaining {
				continue
			}
			sub := money.LineSubtotal(lot.UnitPriceExVAT, qty)
			total := sub.Add(money.VAT(sub, a.cfg.Generation.VATRate))
			diff := residualInc.Sub(total).Abs()
			if bestLot == nil || diff.LessThan(bestErr) {
				bestLot, bestQty, bestErr = lot, qty, diff
			}
		}
	}
	if bestLot == nil || bestErr.GreaterThan(a.cfg.Alignment.StrictTolerance) {
		return nil, false
	}
	ded, err := a.store.Deduct(bestLot.ID(), bestQty)
	if err != nil {
		return nil, false
	}

	inv := &entity.Invoice{
		Type:         entity.Simplified,
		IssuedAt:     calendar.At(date, 20, a.rng.Intn(60)),
		CustomerName: entity.CashCustomerName,
		Lines: []entity.InvoiceLine{{
			LotID:                ded.LotID,
			CustomsDeclarationNo: bestLot.CustomsDeclarationNo,
			ItemDescription:      bestLot.ItemDescription,
			Classification:       bestLot.Classification,
			Quantity:             ded.QtyTaken,
			UnitPriceExVAT:       ded.UnitPriceExVAT,
			UnitCostExVAT:        ded.UnitCostExVAT,
			LineSubtotal:         money.LineSubtotal(ded.UnitPriceExVAT, ded.QtyTaken),
		}},
	}
	inv.Recalculate(a.cfg.Generation.VATRate)
	return inv, true
}

// candidateQtys: piso y techo de targetSub / price.
func candidateQtys(targetSub, price decimal.Decimal) []int {
	if !price.IsPositive() {
		return nil
	}
	k := targetSub.Div(price).IntPart()
	return []int{int(k), int(k) + 1}
}

// assignNumbers recorre el libro en orden (fecha, orden de emisión
// intradía) y asigna los consecutivos: espacios de secuencia separados
// para simplificadas y de impuesto, contiguos y ascendentes. El estado
// vive en el alineador, nunca a nivel de paquete.
func (a *Aligner) assignNumbers(invoices []*entity.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].IssuedAt.Before(invoices[j].IssuedAt)
	})
	prefix := a.cfg.Generation.InvoicePrefix
	for _, inv := range invoices {
		var seq int
		var kind string
		if inv.Type == entity.Simplified {
			a.seqSimplified++
			seq, kind = a.seqSimplified, "SIMP"
		} else {
			a.seqTax++
			seq, kind = a.seqTax, "TAX"
		}
		inv.Number = fmt.Sprintf("%s-%s-%s-%06d", prefix, kind, inv.IssuedAt.Format("200601"), seq)
		inv.ID = uuid.NewSHA1(a.runNamespace, []byte(inv.Number)).String()
	}
}

// filterCustomers devuelve las compras cuyo purchase_date cae en el
// trimestre, en el orden de lectura del padrón.
func filterCustomers(customers []entity.Customer, q *entity.QuarterTarget) []entity.Customer {
	var out []entity.Customer
	for _, c := range customers {
		if q.Contains(c.PurchaseDate) {
			out = append(out, c)
		}
	}
	return out
}

func sumIncVAT(invoices []*entity.Invoice) decimal.Decimal {
	sum := decimal.Zero
	for _, inv := range invoices {
		sum = sum.Add(inv.Total)
	}
	return sum
}
