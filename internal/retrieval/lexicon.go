package retrieval

import (
	"strings"

	"github.com/quantdesk/mbsiq/internal/rules"
)

// lexiconEntry maps a domain term to a rule category. Multi-word terms are
// matched as token sequences against the normalized question.
type lexiconEntry struct {
	// term is the normalized domain term.
	term string
	// category is the category the term implies.
	category rules.Category
}

// categoryLexicon is the ordered category-guessing table. Earlier entries
// win, so more specific terms ("pool factor") come before generic ones
// ("factor"). This table is the single place question text maps to a
// category — both the degraded retrieval fallback and analytics routing
// consult it.
var categoryLexicon = []lexiconEntry{
	{"tba", rules.CategoryTBA},
	{"to be announced", rules.CategoryTBA},
	{"roll", rules.CategoryTBA},
	{"settlement", rules.CategoryTBA},
	{"pool factor", rules.CategoryPoolFactor},
	{"factor", rules.CategoryPoolFactor},
	{"cpr", rules.CategoryPrepayment},
	{"smm", rules.CategoryPrepayment},
	{"psa", rules.CategoryPrepayment},
	{"prepayment", rules.CategoryPrepayment},
	{"prepay", rules.CategoryPrepayment},
	{"fnma", rules.CategoryAgency},
	{"fhlmc", rules.CategoryAgency},
	{"gnma", rules.CategoryAgency},
	{"fannie", rules.CategoryAgency},
	{"freddie", rules.CategoryAgency},
	{"ginnie", rules.CategoryAgency},
	{"agency", rules.CategoryAgency},
	{"yield", rules.CategoryPerformance},
	{"duration", rules.CategoryPerformance},
	{"wac", rules.CategoryPerformance},
	{"wam", rules.CategoryPerformance},
	{"coupon", rules.CategoryPerformance},
	{"performance", rules.CategoryPerformance},
	{"return", rules.CategoryPerformance},
}

// GuessCategory returns the category implied by the first lexicon term found
// in the question, or (CategoryCustom, false) when nothing matches.
func GuessCategory(question string) (rules.Category, bool) {
	tokens := rules.Tokenize(question)
	normalized := " " + strings.Join(tokens, " ") + " "
	for _, entry := range categoryLexicon {
		if strings.Contains(normalized, " "+entry.term+" ") {
			return entry.category, true
		}
	}
	return rules.CategoryCustom, false
}
