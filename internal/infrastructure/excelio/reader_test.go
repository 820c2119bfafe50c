package excelio

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tu-usuario/ventas-retro/internal/domain"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
	"github.com/tu-usuario/ventas-retro/pkg/config"
)

func TestParseDate_Formatos(t *testing.T) {
	casos := map[string]string{
		"2024-03-12":  "2024-03-12",
		"12/03/2024":  "2024-03-12",
		"Mar 2, 2024": "2024-03-02",
		"45363":       "2024-03-12", // serial de Excel
	}
	for in, want := range casos {
		got, err := parseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Format("2006-01-02"), in)
	}

	_, err := parseDate("no es fecha")
	assert.Error(t, err)
}

func TestParseClassification_ArabeYEnum(t *testing.T) {
	casos := map[string]entity.Classification{
		entity.ArabicExcInspection:       entity.ExcInspection,
		entity.ArabicNonExcInspection:    entity.NonExcInspection,
		entity.ArabicNonExcOutside:       entity.NonExcOutside,
		"NONEXC_INSPECTION":              entity.NonExcInspection,
		"محل الفحص  سلع انتقائية":        entity.ExcInspection, // doble espacio del catálogo
	}
	for in, want := range casos {
		got, err := parseClassification(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := parseClassification("otra cosa")
	assert.Error(t, err)
}

// La demora de activación es determinista por lote y respeta el rango
// y el corte del trimestre temprano.
func TestActivationDelay(t *testing.T) {
	opts := ReaderOptions{
		ActivationDays:  config.Range{Min: 0, Max: 12},
		ZeroDelayBefore: time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC),
	}
	early := &entity.Lot{
		CustomsDeclarationNo: "D1", ItemDescription: "X",
		ImportDate: time.Date(2023, time.August, 10, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, 0, activationDelay(early, opts))

	late := &entity.Lot{
		CustomsDeclarationNo: "D2", ItemDescription: "Y",
		ImportDate: time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC),
	}
	d1 := activationDelay(late, opts)
	d2 := activationDelay(late, opts)
	assert.Equal(t, d1, d2) // reproducible
	assert.GreaterOrEqual(t, d1, 0)
	assert.LessOrEqual(t, d1, 12)
}

// escribirCatalogo crea una planilla de productos mínima.
func escribirCatalogo(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row))
	}
	path := filepath.Join(t.TempDir(), "products.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestReadProducts_CatalogoCompleto(t *testing.T) {
	path := escribirCatalogo(t, [][]any{
		{"customs_declaration_no", "item_description", "classification", "import_date", "quantity", "total_cost", "unit_price_before_vat"},
		{"784512", "شاي أخضر", entity.ArabicNonExcInspection, "2024-01-15", 500, 2000.00, 6.50},
		{"784513", "مشروب طاقة", entity.ArabicExcInspection, "2024-02-01", 400, 2000.00, 9.00},
	})

	lots, err := ReadProducts(path, ReaderOptions{ActivationDays: config.Range{Min: 0, Max: 0}})
	require.NoError(t, err)
	require.Len(t, lots, 2)

	l := lots[0]
	assert.Equal(t, "784512:شاي أخضر", l.ID())
	assert.Equal(t, entity.NonExcInspection, l.Classification)
	assert.Equal(t, 500, l.QtyImported)
	assert.Equal(t, "2024-01-15", l.ImportDate.Format("2006-01-02"))
	assert.Equal(t, "2024-01-15", l.StockDate.Format("2006-01-02"))
	// unit_cost = 2000 / 500 = 4.00; precio leído tal cual.
	assert.Equal(t, "4", l.UnitCostExVAT.String())
	assert.Equal(t, "6.5", l.UnitPriceExVAT.String())
	assert.True(t, l.Profitable())
}

func TestReadProducts_FilaMalFormada(t *testing.T) {
	path := escribirCatalogo(t, [][]any{
		{"customs_declaration_no", "item_description", "classification", "import_date", "quantity", "total_cost", "unit_price_before_vat"},
		{"784512", "شاي أخضر", entity.ArabicNonExcInspection, "fecha rota", 500, 2000.00, 6.50},
	})
	_, err := ReadProducts(path, ReaderOptions{ActivationDays: config.Range{Min: 0, Max: 0}})
	assert.ErrorIs(t, err, domain.ErrInputShape)
}

func TestReadCustomers_ConservaCerosDelNumeroFiscal(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"client_name", "vat_number", "address_line", "amount_inc_vat", "purchase_date"},
		{"شركة التموين", "010012345600003", "الرياض", 23000.00, "2024-03-12"},
	}
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+1), &row))
	}
	path := filepath.Join(t.TempDir(), "customers.xlsx")
	require.NoError(t, f.SaveAs(path))

	customers, err := ReadCustomers(path)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "010012345600003", customers[0].VATNumber)
	assert.Equal(t, "23000", customers[0].PurchaseAmountIncVAT.String())
	assert.Equal(t, "2024-03-12", customers[0].PurchaseDate.Format("2006-01-02"))
}

func TestReadHolidays_TodasLasHojas(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Date", "Name"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"2024-06-16", "عيد الأضحى"}))
	_, err := f.NewSheet("2023")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("2023", "A1", &[]any{"Date"}))
	require.NoError(t, f.SetSheetRow("2023", "A2", &[]any{"2023-09-23", "اليوم الوطني"}))
	path := filepath.Join(t.TempDir(), "holidays.xlsx")
	require.NoError(t, f.SaveAs(path))

	holidays, err := ReadHolidays(path)
	require.NoError(t, err)
	assert.Len(t, holidays, 2)
}
