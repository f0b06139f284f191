package llm

import (
	"fmt"
	"strings"

	"productmatch/internal/domain"
)

const (
	RoleCategorize = "categorize"
	RoleDescribe   = "describe"
	RoleCategory   = "category"
	RoleProduct    = "product"
)

// Per-item calls are kept short and deterministic.
const perItemMaxTokens = 100

// DescriptionMarker is the literal second field of every generated title.
const DescriptionMarker = "MODECAR"

// CategorizePrompt asks for one "product: category" line per product.
func CategorizePrompt(products []string) Request {
	var categories strings.Builder
	for i, c := range domain.Taxonomy() {
		categories.WriteString(fmt.Sprintf("%d. **%s**\n", i+1, c))
	}

	system := fmt.Sprintf(`Ești un expert în categorisirea pieselor auto. Sarcina ta este să clasifici fiecare produs auto din lista primită
în una dintre următoarele categorii, pe baza funcției sale sau a asocierii cu anumite sisteme ale vehiculului.

Categorii:
%s
**Instrucțiuni:**
- Răspunde doar cu perechi de `+"`Produs: Categorie`"+`.
- Fiecare pereche trebuie să fie pe o linie separată.
- Scrie numele produsului exact cum apare în listă.
- Nu include numere, titluri, sau alte texte suplimentare.
- Exemple: Disc frână: Sistem de frânare
  Amortizor: Suspensie și direcție`, categories.String())

	var items strings.Builder
	items.WriteString("**Produse:**\n")
	for _, p := range products {
		items.WriteString("- " + p + "\n")
	}

	return Request{
		Role:   RoleCategorize,
		System: system,
		Prompt: items.String(),
	}
}

// DescribePrompt asks for the seven-field product title of a cleaned title.
func DescribePrompt(cleanTitle string) Request {
	system := fmt.Sprintf(`Extract product information and return ONLY a single line following this exact format:
[product type], %[1]s, [car make], [car model], [year range], [additional information], [part number]

Rules:
- Return ONLY the formatted string, no explanations or additional text
- Product name in small letters
- %[1]s always in capitals
- Use "null" for any missing information
- Years must be in YYYY-YYYY format
- Always include all 7 parts separated by commas`, DescriptionMarker)

	return Request{
		Role:   RoleDescribe,
		System: system,
		Prompt: "Text to process:\n" + cleanTitle,
	}
}

// CategoryPrompt asks which of cats a single title belongs to.
func CategoryPrompt(title string, cats []domain.Category) Request {
	prompt := fmt.Sprintf(`Given the following product title, determine which category it belongs to.
Product: %s

Respond with only the category name from the following options:
%s`, title, strings.Join(domain.Labels(cats), ", "))

	return Request{
		Role:        RoleCategory,
		Prompt:      prompt,
		Temperature: floatPtr(0),
		MaxTokens:   perItemMaxTokens,
	}
}

// ProductPrompt asks for the single known product closest to title.
func ProductPrompt(title string, candidates []string) Request {
	prompt := fmt.Sprintf(`Given the following product: %s
And these similar products from the same category:
%s

Return exactly ONE product from the list that most closely matches the given product.
Respond with only the product name, nothing else.`, title, strings.Join(candidates, ", "))

	return Request{
		Role:        RoleProduct,
		Prompt:      prompt,
		Temperature: floatPtr(0),
		MaxTokens:   perItemMaxTokens,
	}
}
