package zatca_test

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-usuario/ventas-retro/internal/infrastructure/zatca"
)

var seller = zatca.Seller{
	Name:      "مؤسسة رائد الإنجاز للخدمات التجارية",
	VATNumber: "302167780700003",
}

func TestPayload_RoundTrip(t *testing.T) {
	issued := time.Date(2024, time.March, 12, 18, 45, 0, 0, time.UTC)
	payload := zatca.Payload(seller, issued, decimal.RequireFromString("30.00"), decimal.RequireFromString("230.00"))

	fields, err := zatca.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, seller.Name, fields[1])
	assert.Equal(t, seller.VATNumber, fields[2])
	assert.Equal(t, "2024-03-12T18:45:00Z", fields[3])
	assert.Equal(t, "30.00", fields[4])
	assert.Equal(t, "230.00", fields[5])
}

// Las longitudes TLV son longitudes de bytes UTF-8, no de runas: el
// nombre árabe ocupa más bytes que caracteres.
func TestPayload_LongitudesUTF8(t *testing.T) {
	issued := time.Date(2024, time.January, 2, 9, 5, 0, 0, time.UTC)
	payload := zatca.Payload(seller, issued, decimal.RequireFromString("1.50"), decimal.RequireFromString("11.50"))

	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)

	// Primer campo: etiqueta 1 y longitud en bytes del nombre.
	assert.Equal(t, byte(1), raw[0])
	assert.Equal(t, byte(len([]byte(seller.Name))), raw[1])
	assert.Greater(t, len([]byte(seller.Name)), len([]rune(seller.Name)))
}

// Valor conocido con campos ASCII para fijar el encoding exacto.
func TestPayload_ValorConocido(t *testing.T) {
	s := zatca.Seller{Name: "ACME", VATNumber: "12345"}
	issued := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	payload := zatca.Payload(s, issued, decimal.RequireFromString("1.00"), decimal.RequireFromString("7.67"))

	want := []byte{
		1, 4, 'A', 'C', 'M', 'E',
		2, 5, '1', '2', '3', '4', '5',
		3, 20, '2', '0', '2', '4', '-', '0', '1', '-', '0', '1', 'T', '0', '0', ':', '0', '0', ':', '0', '0', 'Z',
		4, 4, '1', '.', '0', '0',
		5, 4, '7', '.', '6', '7',
	}
	assert.Equal(t, base64.StdEncoding.EncodeToString(want), payload)
}
