package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound               = errors.New("recurso no encontrado")
	ErrInvalidInput           = errors.New("entrada inválida")
	ErrInsufficientStock      = errors.New("stock insuficiente")
	ErrProfitabilityViolation = errors.New("precio de venta por debajo del costo")
	ErrAlignmentUnreachable   = errors.New("el trimestre estricto no alcanza el objetivo declarado")
	ErrInvariantViolation     = errors.New("invariante del libro de ventas violada")
	ErrInputShape             = errors.New("registro de entrada mal formado")
)
