// Package excelio lee los catálogos de entrada y escribe los reportes
// del libro generado, todo sobre planillas Excel. El núcleo consume y
// produce registros ya tipados; aquí termina todo el manejo de celdas.
package excelio

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/tu-usuario/ventas-retro/internal/domain"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/internal/domain/money"
	"github.com/tu-usuario/ventas-retro/pkg/config"
)

// ReaderOptions gobierna la carga de lotes.
type ReaderOptions struct {
	// ActivationDays: demora [Min..Max] que se suma a import_date para
	// formar stock_date. La demora de cada lote se deriva de su id
	// (hash FNV), así la carga es reproducible sin consumir el
	// generador de la corrida.
	ActivationDays config.Range
	// ZeroDelayBefore: los lotes importados antes de esta fecha entran
	// con demora 0 (el trimestre más temprano no se deja sin stock).
	ZeroDelayBefore time.Time
}

// Margen por defecto cuando el catálogo no trae precio ni margen.
var defaultMarginPct = decimal.NewFromInt(15)

// ReadProducts carga el catálogo de importación y materializa un lote
// por fila. Filas mal formadas abortan la corrida con ErrInputShape.
func ReadProducts(path string, opts ReaderOptions) ([]*entity.Lot, error) {
	rows, err := sheetRows(path)
	if err != nil {
		return nil, err
	}
	cols, err := headerIndex(rows, "item_description", "customs_declaration_no", "import_date", "quantity")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputShape, path, err)
	}

	var lots []*entity.Lot
	for i, row := range rows[1:] {
		get := func(name string) string { return cell(row, cols, name) }
		if strings.TrimSpace(get("item_description")) == "" {
			continue // fila vacía
		}

		importDate, err := parseDate(get("import_date"))
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: import_date %q", domain.ErrInputShape, i+2, get("import_date"))
		}
		qty, err := strconv.Atoi(strings.TrimSpace(strings.Split(get("quantity"), ".")[0]))
		if err != nil || qty <= 0 {
			return nil, fmt.Errorf("%w: fila %d: quantity %q", domain.ErrInputShape, i+2, get("quantity"))
		}

		unitCost, err := unitCost(get, qty)
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: %v", domain.ErrInputShape, i+2, err)
		}
		unitPrice, err := unitPrice(get, unitCost)
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: %v", domain.ErrInputShape, i+2, err)
		}

		class, err := parseClassification(get("classification"))
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: %v", domain.ErrInputShape, i+2, err)
		}

		lot := &entity.Lot{
			ItemDescription:      strings.TrimSpace(get("item_description")),
			CustomsDeclarationNo: strings.TrimSpace(get("customs_declaration_no")),
			Classification:       class,
			ImportDate:           importDate,
			QtyImported:          qty,
			UnitCostExVAT:        unitCost,
			UnitPriceExVAT:       unitPrice,
		}
		lot.StockDate = importDate.AddDate(0, 0, activationDelay(lot, opts))
		lots = append(lots, lot)
	}
	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: %s sin lotes", domain.ErrInputShape, path)
	}
	return lots, nil
}

// unitCost toma unit_cost_ex_vat si viene, o total_cost / quantity.
func unitCost(get func(string) string, qty int) (decimal.Decimal, error) {
	if s := strings.TrimSpace(get("unit_cost_ex_vat")); s != "" {
		return decimal.NewFromString(s)
	}
	s := strings.TrimSpace(get("total_cost"))
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("sin costo (unit_cost_ex_vat ni total_cost)")
	}
	total, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("total_cost %q", s)
	}
	return total.Div(decimal.NewFromInt(int64(qty))), nil
}

// unitPrice usa el precio exacto del catálogo; si falta, lo deriva del
// margen (costo × (1 + margen/100)).
func unitPrice(get func(string) string, cost decimal.Decimal) (decimal.Decimal, error) {
	if s := strings.TrimSpace(get("unit_price_before_vat")); s != "" {
		return decimal.NewFromString(s)
	}
	margin := defaultMarginPct
	if s := strings.TrimSpace(get("profit_margin_pct")); s != "" {
		m, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("profit_margin_pct %q", s)
		}
		margin = m
	}
	return money.Round2(money.FromMarginPct(cost, margin)), nil
}

// activationDelay deriva la demora de activación del id del lote:
// hash FNV dentro de [Min..Max], o 0 si el lote entra antes del corte
// del trimestre temprano.
func activationDelay(lot *entity.Lot, opts ReaderOptions) int {
	if !opts.ZeroDelayBefore.IsZero() && lot.ImportDate.Before(opts.ZeroDelayBefore) {
		return 0
	}
	span := opts.ActivationDays.Max - opts.ActivationDays.Min + 1
	if span <= 1 {
		return opts.ActivationDays.Min
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(lot.ID()))
	return opts.ActivationDays.Min + int(h.Sum32()%uint32(span))
}

// parseClassification admite la etiqueta árabe del catálogo o el
// nombre del enum.
func parseClassification(s string) (entity.Classification, error) {
	norm := strings.Join(strings.Fields(s), " ") // colapsar dobles espacios
	switch norm {
	case entity.ArabicExcInspection, string(entity.ExcInspection):
		return entity.ExcInspection, nil
	case entity.ArabicNonExcInspection, string(entity.NonExcInspection):
		return entity.NonExcInspection, nil
	case entity.ArabicNonExcOutside, string(entity.NonExcOutside):
		return entity.NonExcOutside, nil
	}
	return "", fmt.Errorf("clasificación desconocida %q", s)
}

// ReadCustomers carga el padrón de compras B2B.
func ReadCustomers(path string) ([]entity.Customer, error) {
	rows, err := sheetRows(path)
	if err != nil {
		return nil, err
	}
	cols, err := headerIndex(rows, "client_name", "amount_inc_vat", "purchase_date")
	if err != nil {
		// El padrón original usa customer_name / purchase_amount.
		cols, err = headerIndex(rows, "customer_name", "purchase_amount", "purchase_date")
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputShape, path, err)
		}
	}

	var customers []entity.Customer
	for i, row := range rows[1:] {
		get := func(name string) string { return cell(row, cols, name) }
		name := strings.TrimSpace(firstNonEmpty(get("client_name"), get("customer_name")))
		if name == "" {
			continue
		}
		amountStr := firstNonEmpty(get("amount_inc_vat"), get("purchase_amount"))
		amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: amount_inc_vat %q", domain.ErrInputShape, i+2, amountStr)
		}
		date, err := parseDate(get("purchase_date"))
		if err != nil {
			return nil, fmt.Errorf("%w: fila %d: purchase_date %q", domain.ErrInputShape, i+2, get("purchase_date"))
		}
		customers = append(customers, entity.Customer{
			Name: name,
			// El número fiscal se conserva como texto: los ceros a la
			// izquierda importan.
			VATNumber:            strings.TrimSpace(firstNonEmpty(get("vat_number"), get("tax_number"), get("tax_id"))),
			Address:              strings.TrimSpace(firstNonEmpty(get("address_line"), get("address"), get("adress"))),
			PurchaseAmountIncVAT: amount,
			PurchaseDate:         date,
		})
	}
	return customers, nil
}

// ReadHolidays carga el calendario de feriados: todas las hojas, la
// columna de fecha admite varios formatos.
func ReadHolidays(path string) ([]time.Time, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputShape, path, err)
	}
	defer f.Close()

	var holidays []time.Time
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) < 2 {
			continue
		}
		dateCol := 0
		for j, h := range rows[0] {
			name := strings.ToLower(strings.TrimSpace(h))
			if name == "date" || name == "holiday_date" {
				dateCol = j
				break
			}
		}
		for _, row := range rows[1:] {
			if dateCol >= len(row) || strings.TrimSpace(row[dateCol]) == "" {
				continue
			}
			d, err := parseDate(row[dateCol])
			if err != nil {
				continue
			}
			holidays = append(holidays, d)
		}
	}
	return holidays, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de planilla
// ──────────────────────────────────────────────────────────────────────────────

// sheetRows abre la primera hoja del archivo.
func sheetRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputShape, path, err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: %s sin hojas", domain.ErrInputShape, path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInputShape, path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s sin filas de datos", domain.ErrInputShape, path)
	}
	return rows, nil
}

// headerIndex mapea nombre de columna → índice y exige las columnas
// requeridas.
func headerIndex(rows [][]string, required ...string) (map[string]int, error) {
	cols := make(map[string]int)
	for j, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = j
	}
	for _, r := range required {
		if _, ok := cols[r]; !ok {
			return nil, fmt.Errorf("falta la columna %q", r)
		}
	}
	return cols, nil
}

func cell(row []string, cols map[string]int, name string) string {
	j, ok := cols[name]
	if !ok || j >= len(row) {
		return ""
	}
	return row[j]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDate admite fechas ISO, día/mes/año y seriales de Excel (días
// desde 1899-12-30).
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006", "01-02-06", "2006-01-02 15:04:05", "Jan 2, 2006", "January 2, 2006"} {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("fecha ilegible %q", s)
}
