package core

import "strings"

var accentReplacer = strings.NewReplacer(
	"Á", "A", "À", "A", "Ã", "A", "Â", "A",
	"É", "E", "Ê", "E",
	"Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O",
	"Ú", "U",
	"Ç", "C",
)

// NormalizeText uppercases s and strips the Portuguese accents that
// appear in bank statement descriptors, so rule matching and column
// lookup are accent- and case-insensitive.
func NormalizeText(s string) string {
	return accentReplacer.Replace(strings.ToUpper(strings.TrimSpace(s)))
}
