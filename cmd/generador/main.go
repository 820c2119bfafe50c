// Comando generador: reconstruye el libro de ventas retrospectivo.
// Carga catálogos, alinea cada trimestre contra su declaración,
// valida las invariantes y escribe los reportes Excel (y PDFs de
// muestra si se piden). La corrida es determinista bajo la semilla
// configurada.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/application/alignment"
	"github.com/tu-usuario/ventas-retro/internal/application/validation"
	"github.com/tu-usuario/ventas-retro/internal/domain/calendar"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/inventory"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
	"github.com/tu-usuario/ventas-retro/internal/infrastructure/excelio"
	"github.com/tu-usuario/ventas-retro/internal/infrastructure/pdf"
	"github.com/tu-usuario/ventas-retro/internal/infrastructure/zatca"
	"github.com/tu-usuario/ventas-retro/pkg/config"
	"github.com/tu-usuario/ventas-retro/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuración inválida:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.Log}).
		ForRun(cfg.Generation.RandomSeed)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("corrida fallida")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	quarters, err := buildQuarters(cfg)
	if err != nil {
		return err
	}

	// Catálogos de entrada. La demora de activación se anula para los
	// lotes del trimestre más temprano (cobertura de Q3-2023).
	lots, err := excelio.ReadProducts(cfg.Input.Products, excelio.ReaderOptions{
		ActivationDays:  cfg.Generation.LotActivationDays,
		ZeroDelayBefore: quarters[0].PeriodEnd.AddDate(0, 0, 1),
	})
	if err != nil {
		return err
	}
	customers, err := excelio.ReadCustomers(cfg.Input.Customers)
	if err != nil {
		return err
	}
	holidayDates, err := excelio.ReadHolidays(cfg.Input.Holidays)
	if err != nil {
		return err
	}
	holidays := calendar.NewHolidaySet(holidayDates)

	store, err := inventory.Load(lots)
	if err != nil {
		return err
	}
	sum := store.Summarize()
	log.Info().
		Int("lotes", sum.TotalLots).
		Int("articulos", sum.UniqueItems).
		Int("lotes_marcados", sum.FlaggedLots).
		Int("clientes_b2b", len(customers)).
		Int("feriados", len(holidays)).
		Msg("catálogos cargados")

	// Alineación de todos los trimestres.
	aligner := alignment.New(store, holidays, cfg, log)
	ledger, err := aligner.Run(quarters, customers)
	if err != nil {
		return err
	}

	// Payload QR de las simplificadas (identidad fija del emisor).
	seller := zatca.Seller{Name: cfg.Seller.Name, VATNumber: cfg.Seller.VATNumber}
	for _, inv := range ledger.Invoices {
		if inv.Type == entity.Simplified {
			inv.QRPayload = zatca.Payload(seller, inv.IssuedAt, inv.VATAmount, inv.Total)
		}
	}

	// Validación de invariantes sobre el libro recién generado.
	validator := validation.New(store, holidays, cfg.Generation.VATRate, cfg.Alignment.StrictTolerance)
	report := validator.Validate(ledger)
	for _, f := range report.Findings {
		ev := log.Warn()
		if f.Severity == validation.Critical {
			ev = log.Error()
		}
		ev.Str("chequeo", f.Check).Msg(f.Message)
	}

	// Reportes Excel.
	writer, err := excelio.NewReportWriter(cfg.Output.Dir)
	if err != nil {
		return err
	}
	paths, err := writer.WriteAll(ledger)
	if err != nil {
		return err
	}
	for kind, p := range paths {
		log.Info().Str("reporte", kind).Str("ruta", p).Msg("reporte escrito")
	}

	if cfg.Output.SamplePDFs {
		if err := writeSamplePDFs(cfg, ledger); err != nil {
			log.Warn().Err(err).Msg("no se pudieron generar los PDFs de muestra")
		}
	}

	logRunSummary(log, ledger)

	if report.Failed() {
		return fmt.Errorf("la validación reportó hallazgos críticos")
	}
	for _, qr := range ledger.Quarters {
		if qr.Err != nil {
			return qr.Err
		}
	}
	return nil
}

// buildQuarters materializa y valida los objetivos trimestrales de la
// configuración. Sales ex-VAT y el impuesto se despejan del total
// declarado con impuesto incluido.
func buildQuarters(cfg *config.Config) ([]*entity.QuarterTarget, error) {
	var out []*entity.QuarterTarget
	for _, qc := range cfg.Quarters {
		start, err := config.ParseDate(qc.PeriodStart)
		if err != nil {
			return nil, fmt.Errorf("trimestre %s: period_start: %w", qc.Label, err)
		}
		end, err := config.ParseDate(qc.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("trimestre %s: period_end: %w", qc.Label, err)
		}
		inc, err := decimal.NewFromString(qc.SalesIncVAT)
		if err != nil {
			return nil, fmt.Errorf("trimestre %s: sales_inc_vat: %w", qc.Label, err)
		}
		q := &entity.QuarterTarget{
			Label:       qc.Label,
			PeriodStart: start,
			PeriodEnd:   end,
			SalesExVAT:  money.BackOutSubtotal(inc, cfg.Generation.VATRate),
			VATAmount:   money.BackOutVAT(inc, cfg.Generation.VATRate),
			SalesIncVAT: inc,
			Strict:      qc.Strict,
		}
		if err := q.Validate(cfg.Generation.VATRate); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("sin objetivos trimestrales configurados")
	}
	return out, nil
}

// writeSamplePDFs renderiza una simplificada y una de impuesto como
// muestra visual del libro.
func writeSamplePDFs(cfg *config.Config, run *alignment.RunResult) error {
	gen := pdf.NewReceiptGenerator(cfg.Seller)
	wrote := map[entity.InvoiceType]bool{}
	for _, inv := range run.Invoices {
		if wrote[inv.Type] {
			continue
		}
		bytes, err := gen.Generate(inv)
		if err != nil {
			return err
		}
		path := filepath.Join(cfg.Output.Dir, fmt.Sprintf("muestra_%s.pdf", inv.Type))
		if err := os.WriteFile(path, bytes, 0o644); err != nil {
			return err
		}
		wrote[inv.Type] = true
		if len(wrote) == 2 {
			break
		}
	}
	return nil
}

// logRunSummary vuelca los contadores de la corrida: eventos
// recuperables, diferidas y cobertura por trimestre.
func logRunSummary(log *logger.Logger, run *alignment.RunResult) {
	for _, qr := range run.Quarters {
		ev := log.Info().
			Str("trimestre", qr.Quarter.Label).
			Int("facturas", len(qr.Invoices)).
			Int("b2b", qr.B2BCount).
			Int("mostrador", qr.CashCount).
			Int("diferidas", len(qr.Deferred)).
			Str("varianza", qr.Variance.StringFixed(2)).
			Str("cobertura_pct", qr.CoveragePct.String()).
			Bool("factura_balance", qr.BalancingInv)
		ev.Msg("resumen del trimestre")
		for _, d := range qr.Deferred {
			log.Warn().
				Str("trimestre", qr.Quarter.Label).
				Str("cliente", d.Customer.Name).
				Str("motivo", d.Reason).
				Msg("compra B2B diferida")
		}
	}
	stats := run.ComposerStats
	log.Info().
		Int("reintentos_sin_stock", stats.InsufficientStock).
		Int("saltos_rentabilidad", stats.ProfitabilitySkips).
		Int("canastas_vacias", stats.EmptyBaskets).
		Int("facturas_totales", len(run.Invoices)).
		Msg("resumen de la corrida")
}
