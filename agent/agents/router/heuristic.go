package router

import (
	"strings"
	"unicode"

	contractx "github.com/tanpawarit/brain-orchestrator/agent/contract"
)

// keywords are matched against whole words or, for multi-word entries,
// against the normalized question text. English and Spanish.
var keywords = map[contractx.SpecialistID][]string{
	contractx.SpecialistDataQuery: {
		"how many", "count", "total", "average", "mean", "median", "records", "rows", "patients", "episodes",
		"statistics", "trend", "filter", "distribution", "data",
		"cuántos", "cuantos", "cuántas", "cuantas", "total", "promedio", "estadísticas", "estadisticas",
		"pacientes", "episodios", "tendencia", "filtrar", "datos", "registros",
	},
	contractx.SpecialistWebResearch: {
		"search", "research", "studies", "study", "literature", "latest", "recent", "what is", "information about",
		"guidelines", "evidence", "papers",
		"busca", "buscar", "investiga", "investigaciones", "estudios", "qué es", "que es", "información sobre",
		"informacion sobre", "literatura", "evidencia",
	},
	contractx.SpecialistCodeAnalysis: {
		"calculate", "compute", "correlation", "regression", "statistical test", "t-test", "chi-square",
		"simulate", "simulation", "probability", "variance", "standard deviation",
		"calcula", "calcular", "correlación", "correlacion", "regresión", "regresion", "análisis estadístico",
		"analisis estadistico", "prueba", "simulación", "simulacion", "probabilidad", "varianza",
	},
	contractx.SpecialistDiagram: {
		"diagram", "flowchart", "flow chart", "visualize", "visualise", "draw", "chart", "schema", "process map",
		"sequence", "show me",
		"diagrama", "gráfico", "grafico", "visualiza", "esquema", "flujo", "proceso", "muéstrame", "muestrame", "dibuja",
	},
}

// heuristic picks specialists whose keywords appear in query, in canonical
// order, restricted to registered.
func heuristic(query string, registered []contractx.SpecialistID) []contractx.SpecialistID {
	text := " " + normalize(query) + " "
	var out []contractx.SpecialistID
	for _, id := range contractx.AllSpecialists() {
		if !contains(registered, id) {
			continue
		}
		for _, kw := range keywords[id] {
			if strings.Contains(text, " "+kw+" ") {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// normalize lowercases and replaces punctuation with spaces, keeping letters
// (accented included), digits and hyphens.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func contains(ids []contractx.SpecialistID, id contractx.SpecialistID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
