// Package zatca codifica el payload QR de las facturas simplificadas:
// cinco campos TLV (etiqueta, longitud, valor) concatenados y luego
// Base64. Las longitudes son longitudes de bytes UTF-8, lo que importa
// porque el nombre del emisor viene en árabe.
package zatca

import (
	"encoding/base64"
	"time"

	"github.com/shopspring/decimal"
)

// Etiquetas TLV del payload.
const (
	tagSellerName = 1
	tagVATNumber  = 2
	tagTimestamp  = 3
	tagVATAmount  = 4
	tagTotal      = 5
)

// Seller es la identidad del emisor, constante para toda la corrida.
type Seller struct {
	Name      string
	VATNumber string
}

// Payload arma el TLV de una factura simplificada y lo devuelve en
// Base64: (1) nombre del emisor, (2) número fiscal, (3) marca de
// tiempo ISO, (4) impuesto, (5) total con impuesto.
func Payload(s Seller, issuedAt time.Time, vatAmount, totalIncVAT decimal.Decimal) string {
	buf := make([]byte, 0, 128)
	buf = appendTLV(buf, tagSellerName, []byte(s.Name))
	buf = appendTLV(buf, tagVATNumber, []byte(s.VATNumber))
	buf = appendTLV(buf, tagTimestamp, []byte(issuedAt.Format(time.RFC3339)))
	buf = appendTLV(buf, tagVATAmount, []byte(vatAmount.StringFixed(2)))
	buf = appendTLV(buf, tagTotal, []byte(totalIncVAT.StringFixed(2)))
	return base64.StdEncoding.EncodeToString(buf)
}

func appendTLV(buf []byte, tag int, value []byte) []byte {
	buf = append(buf, byte(tag), byte(len(value)))
	return append(buf, value...)
}

// Decode deshace el payload para verificación: devuelve los valores
// por etiqueta.
func Decode(payload string) (map[int]string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string)
	for i := 0; i+2 <= len(raw); {
		tag := int(raw[i])
		length := int(raw[i+1])
		i += 2
		if i+length > len(raw) {
			break
		}
		out[tag] = string(raw[i : i+length])
		i += length
	}
	return out, nil
}
