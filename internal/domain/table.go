package domain

// CategorizedTable maps distinct product names to a category and remembers
// insertion order.
type CategorizedTable struct {
	order []string
	index map[string]Category
}

type TableEntry struct {
	Product  string
	Category Category
}

func NewCategorizedTable() *CategorizedTable {
	return &CategorizedTable{index: make(map[string]Category)}
}

// Set inserts product or overwrites its category in place. Invalid
// categories and empty product names are ignored and reported as false.
func (t *CategorizedTable) Set(product string, c Category) bool {
	if product == "" || !c.Valid() {
		return false
	}
	if _, ok := t.index[product]; !ok {
		t.order = append(t.order, product)
	}
	t.index[product] = c
	return true
}

func (t *CategorizedTable) Get(product string) (Category, bool) {
	c, ok := t.index[product]
	return c, ok
}

func (t *CategorizedTable) Len() int {
	return len(t.order)
}

func (t *CategorizedTable) Entries() []TableEntry {
	out := make([]TableEntry, len(t.order))
	for i, p := range t.order {
		out[i] = TableEntry{Product: p, Category: t.index[p]}
	}
	return out
}

// Products returns the products assigned to c in insertion order.
func (t *CategorizedTable) Products(c Category) []string {
	var out []string
	for _, p := range t.order {
		if t.index[p] == c {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the categories present in the table, in taxonomy order.
func (t *CategorizedTable) Categories() []Category {
	present := make(map[Category]bool)
	for _, c := range t.index {
		present[c] = true
	}
	var out []Category
	for _, c := range Taxonomy() {
		if present[c] {
			out = append(out, c)
		}
	}
	return out
}
