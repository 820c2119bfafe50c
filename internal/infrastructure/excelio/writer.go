package excelio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/tu-usuario/ventas-retro/internal/application/alignment"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
)

// ReportWriter vuelca el libro generado a planillas Excel con los
// encabezados árabes de los reportes de la empresa.
type ReportWriter struct {
	dir string
}

// NewReportWriter crea el directorio de salida si no existe.
func NewReportWriter(dir string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("crear directorio de reportes: %w", err)
	}
	return &ReportWriter{dir: dir}, nil
}

const dateTimeLayout = "2006-01-02 15:04:05"

// WriteAll genera los cuatro reportes de la corrida y devuelve sus
// rutas.
func (w *ReportWriter) WriteAll(run *alignment.RunResult) (map[string]string, error) {
	paths := make(map[string]string)

	headerPath, err := w.WriteInvoiceHeaders(run.Invoices, "invoice_headers.xlsx")
	if err != nil {
		return nil, err
	}
	paths["headers"] = headerPath

	linesPath, err := w.WriteInvoiceLines(run.Invoices, "invoice_lines.xlsx")
	if err != nil {
		return nil, err
	}
	paths["lines"] = linesPath

	quarterlyPath, err := w.WriteQuarterlySummary(run, "quarterly_summary.xlsx")
	if err != nil {
		return nil, err
	}
	paths["quarterly"] = quarterlyPath

	excisePath, err := w.WriteExciseListing(run.Invoices, "excise_invoices.xlsx")
	if err != nil {
		return nil, err
	}
	paths["excise"] = excisePath

	return paths, nil
}

// WriteInvoiceHeaders: una fila por factura.
func (w *ReportWriter) WriteInvoiceHeaders(invoices []*entity.Invoice, filename string) (string, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []any{
		"رقم الفاتورة", "تاريخ الفاتورة", "نوع الفاتورة", "اسم العميل",
		"الرقم الضريبي للعميل", "المجموع قبل الضريبة", "مبلغ الضريبة",
		"الإجمالي شامل الضريبة", "رمز الاستجابة السريعة", "سلع انتقائية",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", err
	}

	for i, inv := range invoices {
		excise := ""
		if inv.HasExciseLine() {
			excise = "نعم"
		}
		row := []any{
			inv.Number,
			inv.IssuedAt.Format(dateTimeLayout),
			string(inv.Type),
			inv.CustomerName,
			inv.CustomerVATNumber,
			inv.Subtotal.InexactFloat64(),
			inv.VATAmount.InexactFloat64(),
			inv.Total.InexactFloat64(),
			inv.QRPayload,
			excise,
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return "", err
		}
	}
	return w.save(f, filename)
}

// WriteInvoiceLines: una fila por línea, con el lote siempre presente.
func (w *ReportWriter) WriteInvoiceLines(invoices []*entity.Invoice, filename string) (string, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []any{
		"رقم الفاتورة", "رقم السطر", "رقم اللوط", "اسم الصنف", "التصنيف",
		"الكمية", "سعر الوحدة (قبل الضريبة)", "المجموع قبل الضريبة",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", err
	}

	rowIdx := 2
	for _, inv := range invoices {
		for j := range inv.Lines {
			ln := &inv.Lines[j]
			row := []any{
				inv.Number,
				j + 1,
				ln.LotID,
				ln.ItemDescription,
				string(ln.Classification),
				ln.Quantity,
				ln.UnitPriceExVAT.InexactFloat64(),
				ln.LineSubtotal.InexactFloat64(),
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
				return "", err
			}
			rowIdx++
		}
	}
	return w.save(f, filename)
}

// WriteQuarterlySummary: objetivo contra real por trimestre.
func (w *ReportWriter) WriteQuarterlySummary(run *alignment.RunResult, filename string) (string, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []any{
		"الربع", "عدد الفواتير", "فواتير ضريبية", "فواتير مبسطة",
		"المستهدف (شامل الضريبة)", "الفعلي (شامل الضريبة)", "الفرق",
		"نسبة التغطية %", "مشتريات مؤجلة",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", err
	}

	for i, qr := range run.Quarters {
		row := []any{
			qr.Quarter.Label,
			len(qr.Invoices),
			qr.B2BCount,
			qr.CashCount,
			qr.Quarter.SalesIncVAT.InexactFloat64(),
			qr.ActualIncVAT.InexactFloat64(),
			qr.Variance.InexactFloat64(),
			qr.CoveragePct.InexactFloat64(),
			len(qr.Deferred),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return "", err
		}
	}
	return w.save(f, filename)
}

// WriteExciseListing: solo las facturas con línea selectiva.
func (w *ReportWriter) WriteExciseListing(invoices []*entity.Invoice, filename string) (string, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []any{
		"رقم الفاتورة", "تاريخ الفاتورة", "اسم الصنف", "رقم اللوط",
		"الكمية", "الإجمالي شامل الضريبة",
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return "", err
	}

	rowIdx := 2
	for _, inv := range invoices {
		if !inv.HasExciseLine() {
			continue
		}
		ln := &inv.Lines[0] // exclusiva: una sola línea
		row := []any{
			inv.Number,
			inv.IssuedAt.Format(dateTimeLayout),
			ln.ItemDescription,
			ln.LotID,
			ln.Quantity,
			inv.Total.InexactFloat64(),
		}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowIdx), &row); err != nil {
			return "", err
		}
		rowIdx++
	}
	return w.save(f, filename)
}

func (w *ReportWriter) save(f *excelize.File, filename string) (string, error) {
	path := filepath.Join(w.dir, filename)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("guardar %s: %w", path, err)
	}
	return path, nil
}
