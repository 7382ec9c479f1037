// Package rules assigns categories to normalized transactions.
//
// Classification is an ordered (pattern, category) table evaluated
// top to bottom: the first pattern found as an accent-insensitive
// substring of the transaction description wins, and anything
// unmatched falls into CategoryOther. Order is a maintained invariant
// of the table: specific patterns must precede general ones (e.g.
// "VENDA" before "CARTAO", so card sales are not misread as card
// fees).
package rules

import (
	"fmt"
	"strings"

	"fechamento/internal/core"
)

// Rule maps a descriptor pattern to a category. Pattern is matched as
// a substring against the normalized (uppercased, accent-stripped)
// description.
type Rule struct {
	Pattern  string        `json:"pattern"`
	Category core.Category `json:"category"`
}

// Categorizer holds the ordered rule table. It is read-only after
// construction; Categorize is a pure function of the description.
type Categorizer struct {
	rules []Rule
}

// New builds a Categorizer from custom rules followed by the built-in
// table. Custom rules are evaluated first so user overrides win.
func New(custom []Rule) (*Categorizer, error) {
	all := make([]Rule, 0, len(custom)+len(builtinRules))
	for _, r := range custom {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("rule with empty pattern for category %q", r.Category)
		}
		if !core.ValidCategory(r.Category) {
			return nil, fmt.Errorf("rule %q: unknown category %q", r.Pattern, r.Category)
		}
		all = append(all, Rule{Pattern: core.NormalizeText(r.Pattern), Category: r.Category})
	}
	all = append(all, builtinRules...)
	return &Categorizer{rules: all}, nil
}

// Default returns a Categorizer with only the built-in table.
func Default() *Categorizer {
	return &Categorizer{rules: builtinRules}
}

// Categorize returns the category for one transaction. Deterministic:
// the same description always yields the same category.
func (c *Categorizer) Categorize(tx core.Transaction) core.Category {
	desc := core.NormalizeText(tx.Description)
	for _, r := range c.rules {
		if strings.Contains(desc, r.Pattern) {
			return r.Category
		}
	}
	return core.CategoryOther
}

// Apply categorizes a batch, preserving order. Every input produces
// exactly one output; nothing is dropped here.
func (c *Categorizer) Apply(txs []core.Transaction) []core.CategorizedTransaction {
	out := make([]core.CategorizedTransaction, len(txs))
	for i, tx := range txs {
		out[i] = core.CategorizedTransaction{Transaction: tx, Category: c.Categorize(tx)}
	}
	return out
}

// builtinRules is the static table, ordered specific to general.
// Patterns are already normalized.
var builtinRules = []Rule{
	// Investment yield before generic investment terms.
	{"REND PAGO APLIC", core.CategoryInvestments},
	{"RENDIMENTO", core.CategoryInvestments},
	{"APLICACAO", core.CategoryInvestments},
	{"RESGATE", core.CategoryInvestments},
	{"CDB", core.CategoryInvestments},

	{"CONTABILIDADE", core.CategoryAccounting},
	{"HONORARIOS CONTABEIS", core.CategoryAccounting},

	{"ALUGUEL", core.CategoryRent},
	{"ZOOP", core.CategoryRent},

	{"FOLHA DE PAGAMENTO", core.CategoryPayroll},
	{"FOLHA", core.CategoryPayroll},
	{"SALARIO", core.CategoryPayroll},
	{"PRO-LABORE", core.CategoryPayroll},
	{"FERIAS", core.CategoryPayroll},

	// Sales must precede the card-fee patterns: "VENDA CARTAO" is a
	// sale, not a card bill.
	{"VENDA", core.CategorySales},
	{"RECEBIMENTO", core.CategorySales},
	{"RECEBIDO", core.CategorySales},

	{"FATURA CARTAO", core.CategoryFees},
	{"CARTAO", core.CategoryFees},
	{"TARIFA", core.CategoryFees},
	{"IOF", core.CategoryFees},
	{"JUROS", core.CategoryFees},
	{"DARF", core.CategoryFees},
	{"FGTS", core.CategoryFees},
	{"INSS", core.CategoryFees},
	{"SIMPLES NACIONAL", core.CategoryFees},
	{"IMPOSTO", core.CategoryFees},

	{"FORNECEDOR", core.CategorySuppliers},
	{"MOTOBOY", core.CategorySuppliers},
	{"ENTREGA", core.CategorySuppliers},
	{"INSUMOS", core.CategorySuppliers},
	{"ENERGIA", core.CategorySuppliers},
}
