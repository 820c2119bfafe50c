package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config agrupa la configuración del generador (lectura vía Viper
// desde env y opcionalmente archivo). Toda opción tiene default.
type Config struct {
	App        AppConfig
	Seller     SellerConfig
	Input      InputConfig
	Output     OutputConfig
	Generation GenerationConfig
	Alignment  AlignmentConfig
	Quarters   []QuarterConfig
}

// AppConfig configuración general.
type AppConfig struct {
	Env  string // development, production
	Name string
	Log  string // trace, debug, info, warn, error
}

// SellerConfig identidad del emisor, constante para toda la corrida.
// Va en el payload TLV de cada factura simplificada.
type SellerConfig struct {
	Name      string
	VATNumber string
	Address   string
}

// InputConfig rutas de los catálogos de entrada (Excel).
type InputConfig struct {
	Products  string
	Customers string
	Holidays  string
}

// OutputConfig destino de los reportes.
type OutputConfig struct {
	Dir        string
	SamplePDFs bool
}

// Range es un par [Min, Max] entero.
type Range struct {
	Min int
	Max int
}

// GenerationConfig parámetros de simulación y composición.
type GenerationConfig struct {
	VATRate              decimal.Decimal
	RandomSeed           int64
	InvoicePrefix        string
	LotActivationDays    Range
	LineItemsPerInvoice  Range
	QuantityPerLine      Range
	PricingPolicy        string // "lot_price" (default); "weighted_avg" se reconoce pero validate siempre la rechaza
	ExciseExclusiveRatio float64
}

// AlignmentConfig parámetros de convergencia y refinamiento.
type AlignmentConfig struct {
	QuarterCapsTargetRatio float64
	StrictTolerance        decimal.Decimal
	LooseToleranceMin      float64
	LooseToleranceMax      float64
	RefineTolerance        decimal.Decimal
	RefineMaxIterations    int
	MaxOuterIterations     int
}

// QuarterConfig un objetivo trimestral declarado (config embebida o
// planilla de declaración parseada aguas arriba).
type QuarterConfig struct {
	Label       string `mapstructure:"label"`
	PeriodStart string `mapstructure:"period_start"` // ISO
	PeriodEnd   string `mapstructure:"period_end"`   // ISO
	SalesIncVAT string `mapstructure:"sales_inc_vat"` // decimal como texto para no pasar por float
	Strict      bool   `mapstructure:"strict"`
}

// PricingPolicyLotPrice es la política obligatoria por defecto: cada
// línea usa el precio congelado de su lote.
const PricingPolicyLotPrice = "lot_price"

// PricingPolicyWeightedAvg se reconoce como valor, pero la carga de
// configuración la rechaza siempre: no hay precio promediado.
const PricingPolicyWeightedAvg = "weighted_avg"

// Load lee la configuración desde variables de entorno y opcionalmente
// desde archivo (config.yaml en el directorio de trabajo o en ./config).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV,
// GEN_RANDOM_SEED, SELLER_VAT_NUMBER, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "ventas-retro"),
			Log:  getString(v, "APP_LOG", "info"),
		},
		Seller: SellerConfig{
			Name:      getString(v, "SELLER_NAME", "مؤسسة رائد الإنجاز للخدمات التجارية"),
			VATNumber: getString(v, "SELLER_VAT_NUMBER", "302167780700003"),
			Address:   getString(v, "SELLER_ADDRESS", "الرياض، السلي 14322"),
		},
		Input: InputConfig{
			Products:  getString(v, "INPUT_PRODUCTS", "input/products.xlsx"),
			Customers: getString(v, "INPUT_CUSTOMERS", "input/customers.xlsx"),
			Holidays:  getString(v, "INPUT_HOLIDAYS", "input/holidays.xlsx"),
		},
		Output: OutputConfig{
			Dir:        getString(v, "OUTPUT_DIR", "output/reports"),
			SamplePDFs: getBool(v, "OUTPUT_SAMPLE_PDFS", false),
		},
		Generation: GenerationConfig{
			VATRate:       getDecimal(v, "GEN_VAT_RATE", "0.15"),
			RandomSeed:    int64(getInt(v, "GEN_RANDOM_SEED", 42)),
			InvoicePrefix: getString(v, "GEN_INVOICE_PREFIX", "INV"),
			LotActivationDays: Range{
				Min: getInt(v, "GEN_LOT_ACTIVATION_MIN", 0),
				Max: getInt(v, "GEN_LOT_ACTIVATION_MAX", 12),
			},
			LineItemsPerInvoice: Range{
				Min: getInt(v, "GEN_LINE_ITEMS_MIN", 2),
				Max: getInt(v, "GEN_LINE_ITEMS_MAX", 10),
			},
			QuantityPerLine: Range{
				Min: getInt(v, "GEN_QTY_PER_LINE_MIN", 3),
				Max: getInt(v, "GEN_QTY_PER_LINE_MAX", 40),
			},
			PricingPolicy:        getString(v, "GEN_PRICING_POLICY", PricingPolicyLotPrice),
			ExciseExclusiveRatio: getFloat(v, "GEN_EXCISE_EXCLUSIVE_RATIO", 0.20),
		},
		Alignment: AlignmentConfig{
			QuarterCapsTargetRatio: getFloat(v, "ALIGN_QUARTER_CAPS_TARGET_RATIO", 1.00),
			StrictTolerance:        getDecimal(v, "ALIGN_STRICT_TOLERANCE", "0.10"),
			LooseToleranceMin:      getFloat(v, "ALIGN_LOOSE_TOLERANCE_MIN", 0.80),
			LooseToleranceMax:      getFloat(v, "ALIGN_LOOSE_TOLERANCE_MAX", 1.20),
			RefineTolerance:        getDecimal(v, "ALIGN_REFINE_TOLERANCE", "5.00"),
			RefineMaxIterations:    getInt(v, "ALIGN_REFINE_MAX_ITERATIONS", 50),
			MaxOuterIterations:     getInt(v, "ALIGN_MAX_OUTER_ITERATIONS", 1000),
		},
		Quarters: defaultQuarters(),
	}

	if err := v.UnmarshalKey("quarters", &cfg.Quarters); err == nil && v.IsSet("quarters") {
		// Objetivos trimestrales tomados del archivo.
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rechaza combinaciones inválidas antes de generar nada.
func (c *Config) validate() error {
	switch c.Generation.PricingPolicy {
	case PricingPolicyLotPrice:
	case PricingPolicyWeightedAvg:
		return fmt.Errorf("pricing_policy %q: el promedio ponderado está deshabilitado para esta corrida", PricingPolicyWeightedAvg)
	default:
		return fmt.Errorf("pricing_policy desconocida: %q", c.Generation.PricingPolicy)
	}
	if c.Generation.LotActivationDays.Min < 0 || c.Generation.LotActivationDays.Max < c.Generation.LotActivationDays.Min {
		return fmt.Errorf("lot_activation_days inválido: %+v", c.Generation.LotActivationDays)
	}
	if c.Generation.LineItemsPerInvoice.Min < 1 || c.Generation.LineItemsPerInvoice.Max < c.Generation.LineItemsPerInvoice.Min {
		return fmt.Errorf("line_items_per_invoice inválido: %+v", c.Generation.LineItemsPerInvoice)
	}
	if c.Generation.QuantityPerLine.Min < 1 || c.Generation.QuantityPerLine.Max < c.Generation.QuantityPerLine.Min {
		return fmt.Errorf("quantity_per_line inválido: %+v", c.Generation.QuantityPerLine)
	}
	if c.Generation.ExciseExclusiveRatio < 0 || c.Generation.ExciseExclusiveRatio > 1 {
		return fmt.Errorf("excise_exclusive_ratio fuera de [0,1]: %f", c.Generation.ExciseExclusiveRatio)
	}
	return nil
}

// ParseDate interpreta una fecha ISO de la config.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// defaultQuarters son los seis trimestres declarados de la ventana de
// 18 meses (montos con impuesto incluido, tal como la declaración).
// 2023 es mejor esfuerzo; 2024 es estricto.
func defaultQuarters() []QuarterConfig {
	return []QuarterConfig{
		{Label: "Q3-2023", PeriodStart: "2023-07-01", PeriodEnd: "2023-09-30", SalesIncVAT: "392299.99", Strict: false},
		{Label: "Q4-2023", PeriodStart: "2023-10-01", PeriodEnd: "2023-12-31", SalesIncVAT: "319600.00", Strict: false},
		{Label: "Q1-2024", PeriodStart: "2024-01-01", PeriodEnd: "2024-03-31", SalesIncVAT: "1053833.24", Strict: true},
		{Label: "Q2-2024", PeriodStart: "2024-04-01", PeriodEnd: "2024-06-30", SalesIncVAT: "1393727.32", Strict: true},
		{Label: "Q3-2024", PeriodStart: "2024-07-01", PeriodEnd: "2024-09-30", SalesIncVAT: "2333442.00", Strict: true},
		{Label: "Q4-2024", PeriodStart: "2024-10-01", PeriodEnd: "2024-12-31", SalesIncVAT: "892647.25", Strict: true},
	}
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getFloat(v *viper.Viper, key string, def float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}

// getDecimal lee un decimal desde texto para no pasar por float64.
func getDecimal(v *viper.Viper, key, def string) decimal.Decimal {
	s := def
	if v.IsSet(key) {
		s = v.GetString(key)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		d, _ = decimal.NewFromString(def)
	}
	return d
}
