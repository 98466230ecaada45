package intent

import "github.com/ashureev/advisor-gateway/internal/domain"

// intentRule maps trigger words onto an intent with a fixed confidence.
type intentRule struct {
	intent     domain.IntentType
	confidence float64
	triggers   []string
}

// intentRules are evaluated in order; the first rule with a matching trigger wins.
var intentRules = []intentRule{
	{
		intent:     domain.IntentCompare,
		confidence: 0.9,
		triggers:   []string{"comparar", "compara", "comparación", "comparacion", "diferencia", "versus", " vs ", "cuál es mejor", "cual es mejor"},
	},
	{
		intent:     domain.IntentPurchase,
		confidence: 0.85,
		triggers:   []string{"comprar", "compro", "pagar", "carrito", "pedido nuevo", "lo quiero", "me lo llevo", "finalizar compra"},
	},
	{
		intent:     domain.IntentSupport,
		confidence: 0.85,
		triggers:   []string{"garantía", "garantia", "devolución", "devolucion", "reclamo", "mi pedido", "no funciona", "soporte"},
	},
	{
		intent:     domain.IntentQuestion,
		confidence: 0.8,
		triggers:   []string{"qué es", "que es", "cómo funciona", "como funciona", "por qué", "por que", "explica", "significa"},
	},
	{
		intent:     domain.IntentSearch,
		confidence: 0.8,
		triggers:   []string{"busco", "buscar", "buscando", "necesito", "quiero", "recomienda", "recomendación", "recomendacion", "muéstrame", "muestrame"},
	},
}

const (
	defaultIntent     = domain.IntentSearch
	defaultConfidence = 0.7
)

// categories are checked in order; the first substring match is the category.
var categories = []string{
	"televisor", "smart tv", "celular", "smartphone", "portátil", "portatil",
	"laptop", "computador", "tablet", "audífonos", "audifonos", "parlante",
	"nevera", "lavadora", "consola", "monitor", "cámara", "camara", "reloj",
}

// brands are all reported when present, in this order.
var brands = []string{
	"samsung", "lg", "sony", "apple", "xiaomi", "huawei", "motorola",
	"lenovo", "hp", "dell", "asus", "acer", "whirlpool", "jbl", "nintendo",
}

// features describe intended use and count as "uso_principal" information.
var features = []string{
	"gaming", "juegos", "4k", "oled", "qled", "batería", "bateria",
	"cámara trasera", "pantalla grande", "inalámbrico", "inalambrico",
	"trabajo", "estudio", "diseño", "fotografía", "fotografia", "deporte",
}

var positiveWords = []string{"gracias", "perfecto", "excelente", "genial", "me encanta", "me gusta", "buenísimo"}

var negativeWords = []string{"malo", "terrible", "no sirve", "muy caro", "pésimo", "pesimo", "no me sirve", "horrible"}

// actions is the agent action recorded for each intent.
var actions = map[domain.IntentType]string{
	domain.IntentSearch:   "search_products",
	domain.IntentCompare:  "compare_products",
	domain.IntentQuestion: "answer_question",
	domain.IntentPurchase: "assist_purchase",
	domain.IntentSupport:  "provide_support",
}

// Missing-info field names reported to the backend.
const (
	MissingCategory = "categoria"
	MissingBudget   = "presupuesto"
	MissingUsage    = "uso_principal"
)
