package nlp

// DefaultStopWords is the Spanish function-word list applied when no
// custom list is configured. Tokens are matched after lowercasing and
// punctuation stripping.
var DefaultStopWords = []string{
	"a", "al", "algo", "algunas", "algunos", "ante", "antes", "como",
	"con", "contra", "cual", "cuando", "de", "del", "desde", "donde",
	"durante", "e", "el", "él", "ella", "ellas", "ellos", "en", "entre",
	"era", "eran", "es", "esa", "esas", "ese", "eso", "esos", "esta",
	"estas", "este", "esto", "estos", "fue", "fueron", "ha", "había",
	"han", "hasta", "hay", "la", "las", "le", "les", "lo", "los", "más",
	"me", "mi", "mis", "mucho", "muchos", "muy", "nada", "ni", "no",
	"nos", "nosotros", "o", "otra", "otras", "otro", "otros", "para",
	"pero", "poco", "por", "porque", "que", "qué", "quien", "quienes",
	"se", "ser", "sí", "sido", "sin", "sobre", "son", "su", "sus",
	"también", "tanto", "te", "tiene", "tienen", "todo", "todos", "tu",
	"tus", "un", "una", "uno", "unos", "y", "ya", "yo",
}
