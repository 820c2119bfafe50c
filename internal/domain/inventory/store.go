// Package inventory implementa el almacén de lotes con FIFO por lote:
// cada partida importada conserva su precio y costo propios y se
// activa recién en su stock_date. Toda deducción es transaccional a
// nivel del almacén.
package inventory

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tu-usuario/ventas-retro/internal/domain"
	"github.com/tu-usuario/ventas-retro/internal/domain/entity"
)

// Deduction es el efecto de una deducción sobre un lote concreto.
type Deduction struct {
	LotID          string
	QtyTaken       int
	UnitPriceExVAT decimal.Decimal
	UnitCostExVAT  decimal.Decimal
}

// Store es el almacén de lotes. Es el único recurso mutable durante la
// corrida y lo posee en exclusiva el alineador; no hay concurrencia.
type Store struct {
	lots  []*entity.Lot
	index map[string]*entity.Lot

	// Lotes con precio < costo: marcados en la carga y excluidos de
	// toda selección.
	flagged map[string]struct{}
}

// Load ingiere los registros de lote ya parseados e inicializa
// QtyRemaining = QtyImported. Un lot_id repetido es un error de forma
// de entrada.
func Load(lots []*entity.Lot) (*Store, error) {
	s := &Store{
		index:   make(map[string]*entity.Lot, len(lots)),
		flagged: make(map[string]struct{}),
	}
	for _, l := range lots {
		id := l.ID()
		if _, dup := s.index[id]; dup {
			return nil, fmt.Errorf("%w: lot_id duplicado %q", domain.ErrInputShape, id)
		}
		l.QtyRemaining = l.QtyImported
		s.lots = append(s.lots, l)
		s.index[id] = l
		if !l.Profitable() {
			s.flagged[id] = struct{}{}
		}
	}
	return s, nil
}

// Lot devuelve el lote por id en O(1).
func (s *Store) Lot(lotID string) (*entity.Lot, error) {
	l, ok := s.index[lotID]
	if !ok {
		return nil, fmt.Errorf("%w: lote %q", domain.ErrNotFound, lotID)
	}
	return l, nil
}

// Flagged indica si el lote quedó marcado por vender bajo costo.
func (s *Store) Flagged(lotID string) bool {
	_, ok := s.flagged[lotID]
	return ok
}

// FlaggedCount devuelve cuántos lotes quedaron excluidos en la carga.
func (s *Store) FlaggedCount() int { return len(s.flagged) }

// LotsForItem devuelve todos los lotes de la descripción con stock,
// en orden FIFO: stock_date y luego import_date.
func (s *Store) LotsForItem(itemDescription string) []*entity.Lot {
	var out []*entity.Lot
	for _, l := range s.lots {
		if l.ItemDescription == itemDescription && l.QtyRemaining > 0 {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StockDate.Equal(out[j].StockDate) {
			return out[i].StockDate.Before(out[j].StockDate)
		}
		return out[i].ImportDate.Before(out[j].ImportDate)
	})
	return out
}

// AvailableLots devuelve los lotes con stock_date ≤ asOf y stock
// positivo, excluyendo los marcados. classification vacía = todas.
// El orden es el de carga, estable para mantener la corrida
// determinista.
func (s *Store) AvailableLots(asOf time.Time, classification entity.Classification) []*entity.Lot {
	var out []*entity.Lot
	for _, l := range s.lots {
		if l.QtyRemaining <= 0 || !l.ActiveAt(asOf) {
			continue
		}
		if s.Flagged(l.ID()) {
			continue
		}
		if classification != "" && l.Classification != classification {
			continue
		}
		out = append(out, l)
	}
	return out
}

// AvailableQtyForItem suma el stock de la descripción entre los lotes
// activos a la fecha, sin contar los marcados.
func (s *Store) AvailableQtyForItem(itemDescription string, asOf time.Time) int {
	total := 0
	for _, l := range s.lots {
		if l.ItemDescription == itemDescription && l.ActiveAt(asOf) && !s.Flagged(l.ID()) {
			total += l.QtyRemaining
		}
	}
	return total
}

// Deduct descuenta qty del lote. Falla con ErrInsufficientStock si el
// lote no existe o no alcanza; en ese caso no hay efecto alguno.
func (s *Store) Deduct(lotID string, qty int) (Deduction, error) {
	if qty <= 0 {
		return Deduction{}, fmt.Errorf("%w: cantidad %d", domain.ErrInvalidInput, qty)
	}
	l, ok := s.index[lotID]
	if !ok {
		return Deduction{}, fmt.Errorf("%w: lote %q", domain.ErrInsufficientStock, lotID)
	}
	if l.QtyRemaining < qty {
		return Deduction{}, fmt.Errorf("%w: lote %q pide %d, quedan %d",
			domain.ErrInsufficientStock, lotID, qty, l.QtyRemaining)
	}
	l.QtyRemaining -= qty
	return Deduction{
		LotID:          lotID,
		QtyTaken:       qty,
		UnitPriceExVAT: l.UnitPriceExVAT,
		UnitCostExVAT:  l.UnitCostExVAT,
	}, nil
}

// Restore devuelve qty unidades al lote (refinamiento a la baja).
// Nunca deja QtyRemaining > QtyImported.
func (s *Store) Restore(lotID string, qty int) error {
	l, ok := s.index[lotID]
	if !ok {
		return fmt.Errorf("%w: lote %q", domain.ErrNotFound, lotID)
	}
	if qty <= 0 || l.QtyRemaining+qty > l.QtyImported {
		return fmt.Errorf("%w: restaurar %d a lote %q", domain.ErrInvalidInput, qty, lotID)
	}
	l.QtyRemaining += qty
	return nil
}

// DeductFIFO descuenta qty de la descripción recorriendo sus lotes en
// orden FIFO, posiblemente abarcando varios. Todo o nada: si el
// agregado disponible no alcanza, falla sin tocar ningún lote.
func (s *Store) DeductFIFO(itemDescription string, qty int, asOf time.Time) ([]Deduction, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: cantidad %d", domain.ErrInvalidInput, qty)
	}
	if s.AvailableQtyForItem(itemDescription, asOf) < qty {
		return nil, fmt.Errorf("%w: %q pide %d", domain.ErrInsufficientStock, itemDescription, qty)
	}

	var deds []Deduction
	remaining := qty
	for _, l := range s.LotsForItem(itemDescription) {
		if remaining == 0 {
			break
		}
		if !l.ActiveAt(asOf) || s.Flagged(l.ID()) {
			continue
		}
		take := remaining
		if take > l.QtyRemaining {
			take = l.QtyRemaining
		}
		d, err := s.Deduct(l.ID(), take)
		if err != nil {
			// No debería ocurrir tras la verificación agregada;
			// revertir lo ya tomado para conservar todo-o-nada.
			for _, done := range deds {
				_ = s.Restore(done.LotID, done.QtyTaken)
			}
			return nil, err
		}
		deds = append(deds, d)
		remaining -= take
	}
	return deds, nil
}

// Summary son los contadores agregados del almacén para el resumen de
// corrida.
type Summary struct {
	TotalLots     int
	LotsWithStock int
	LotsDepleted  int
	QtyRemaining  int
	UniqueItems   int
	FlaggedLots   int
}

// Summarize calcula el estado agregado del almacén.
func (s *Store) Summarize() Summary {
	sum := Summary{TotalLots: len(s.lots), FlaggedLots: len(s.flagged)}
	items := make(map[string]struct{})
	for _, l := range s.lots {
		items[l.ItemDescription] = struct{}{}
		if l.QtyRemaining > 0 {
			sum.LotsWithStock++
		} else {
			sum.LotsDepleted++
		}
		sum.QtyRemaining += l.QtyRemaining
	}
	sum.UniqueItems = len(items)
	return sum
}

// Lots expone los lotes cargados (orden de carga) para validación y
// reportes.
func (s *Store) Lots() []*entity.Lot { return s.lots }
