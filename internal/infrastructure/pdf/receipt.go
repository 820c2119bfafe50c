// Package pdf genera la representación gráfica de una factura del
// libro con Maroto v2.
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Emisor + N° fiscal  │  N° Factura + Fecha          │
//	│  ─────────────────────────────────────────────────────────  │
//	│  CLIENTE: nombre + número fiscal (solo factura de impuesto) │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLA: Cant | Artículo | P.Unit | Subtotal                 │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Subtotal / IVA 15% / TOTAL                        │
//	│  FOOTER: QR TLV (simplificadas)                             │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	pkgconfig "github.com/tu-usuario/ventas-retro/pkg/config"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 20, Green: 80, Blue: 60}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// ReceiptGenerator renderiza una factura del libro como PDF.
type ReceiptGenerator struct {
	seller pkgconfig.SellerConfig
}

// NewReceiptGenerator construye el generador.
func NewReceiptGenerator(seller pkgconfig.SellerConfig) *ReceiptGenerator {
	return &ReceiptGenerator{seller: seller}
}

// Generate devuelve los bytes del PDF de la factura.
func (g *ReceiptGenerator) Generate(inv *entity.Invoice) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("فاتورة", true).
		WithAuthor(g.seller.Name, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(g.headerRow(inv))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	if inv.Type == entity.Tax {
		m.AddRows(customerRow(inv))
		m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	}

	m.AddRows(tableHeaderRow())
	for _, r := range tableLineRows(inv) {
		m.AddRows(r)
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inv))

	if inv.Type == entity.Simplified && inv.QRPayload != "" {
		m.AddRows(line.NewRow(3))
		m.AddRows(qrRow(inv))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: emisor (izq) y número + fecha (der).
func (g *ReceiptGenerator) headerRow(inv *entity.Invoice) core.Row {
	title := "فاتورة ضريبية مبسطة"
	if inv.Type == entity.Tax {
		title = "فاتورة ضريبية"
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New(g.seller.Name, props.Text{
				Style: fontstyle.Bold, Size: 12, Color: colorPrimary, Top: 1,
			}),
			text.New("الرقم الضريبي: "+g.seller.VATNumber, props.Text{
				Size: 9, Top: 8, Color: colorGray,
			}),
			text.New(g.seller.Address, props.Text{
				Size: 8, Top: 13, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(title, props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(inv.Number, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 7,
			}),
			text.New(inv.IssuedAt.Format("02/01/2006 15:04"), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// customerRow: cliente de la factura de impuesto.
func customerRow(inv *entity.Invoice) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("العميل", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("%s   |   الرقم الضريبي: %s",
				inv.CustomerName, inv.CustomerVATNumber,
			), props.Text{Size: 9, Top: 7}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de líneas.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("الكمية", 1, align.Center),
		h("الصنف", 6, align.Left),
		h("سعر الوحدة", 2, align.Right),
		h("المجموع", 3, align.Right),
	)
}

// tableLineRows: una fila por línea de la factura.
func tableLineRows(inv *entity.Invoice) []core.Row {
	result := make([]core.Row, 0, len(inv.Lines))
	for i := range inv.Lines {
		ln := &inv.Lines[i]
		result = append(result, row.New(7).Add(
			col.New(1).Add(text.New(
				fmt.Sprintf("%d", ln.Quantity),
				props.Text{Size: 8, Align: align.Center, Top: 1},
			)),
			col.New(6).Add(text.New(
				ln.ItemDescription,
				props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1},
			)),
			col.New(2).Add(text.New(
				ln.UnitPriceExVAT.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
			col.New(3).Add(text.New(
				ln.LineSubtotal.StringFixed(2),
				props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1},
			)),
		))
	}
	return result
}

// totalsRow: bloque de totales alineado a la derecha.
func totalsRow(inv *entity.Invoice) core.Row {
	label := func(s string) core.Component {
		return text.New(s, props.Text{
			Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2,
		})
	}
	value := func(s string) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1})
	}
	return row.New(20).Add(
		col.New(4),
		col.New(4).Add(
			label("المجموع قبل الضريبة:"),
			label("ضريبة القيمة المضافة ١٥٪:"),
			label("الإجمالي:"),
		),
		col.New(4).Add(
			value(inv.Subtotal.StringFixed(2)),
			value(inv.VATAmount.StringFixed(2)),
			value(inv.Total.StringFixed(2)),
		),
	)
}

// qrRow: código QR con el payload TLV de la factura simplificada.
func qrRow(inv *entity.Invoice) core.Row {
	return row.New(45).Add(
		col.New(4).Add(code.NewQr(inv.QRPayload, props.Rect{
			Percent: 95,
			Center:  true,
		})),
		col.New(8).Add(
			text.New("امسح الرمز للتحقق من الفاتورة", props.Text{
				Size: 8, Top: 6, Left: 3, Color: colorGray,
			}),
		),
	)
}
