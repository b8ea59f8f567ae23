package seed

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entity identifies one seeded table.
type Entity int

const (
	Users Entity = iota + 1
	Products
	Expenses
	Sales
	Purchases
	ExpenseSummary
	ExpenseByCategory
	SalesSummary
	PurchaseSummary
)

var entityNames = map[Entity]string{
	Users:             "Users",
	Products:          "Products",
	Expenses:          "Expenses",
	Sales:             "Sales",
	Purchases:         "Purchases",
	ExpenseSummary:    "ExpenseSummary",
	ExpenseByCategory: "ExpenseByCategory",
	SalesSummary:      "SalesSummary",
	PurchaseSummary:   "PurchaseSummary",
}

// dependencies lists, for each entity, the entities whose rows must exist
// before its rows are created. Summaries depend on the rows they summarize.
var dependencies = map[Entity][]Entity{
	Sales:             {Products},
	Purchases:         {Products},
	ExpenseSummary:    {Expenses},
	ExpenseByCategory: {ExpenseSummary},
	SalesSummary:      {Sales},
	PurchaseSummary:   {Purchases},
}

// DefaultCreateOrder creates every base entity before any summary.
var DefaultCreateOrder = []Entity{
	Users,
	Products,
	Expenses,
	Sales,
	Purchases,
	ExpenseSummary,
	ExpenseByCategory,
	SalesSummary,
	PurchaseSummary,
}

// Entities returns every entity in declaration order.
func Entities() []Entity {
	all := make([]Entity, 0, len(entityNames))
	for e := Users; e <= PurchaseSummary; e++ {
		all = append(all, e)
	}
	return all
}

func (e Entity) String() string {
	if name, ok := entityNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Entity(%d)", int(e))
}

// FileName is the snapshot file holding the entity's records.
func (e Entity) FileName() string {
	name := e.String()
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:] + ".json"
}

// DependsOn returns the entities that must be created before e.
func (e Entity) DependsOn() []Entity {
	return dependencies[e]
}

// ParseEntity matches a model name to an entity, ignoring case.
func ParseEntity(name string) (Entity, bool) {
	for e, n := range entityNames {
		if strings.EqualFold(n, name) {
			return e, true
		}
	}
	return 0, false
}

// ModelName derives the model name from a snapshot file name:
// "expenseByCategory.json" becomes "ExpenseByCategory".
func ModelName(fileName string) string {
	base := filepath.Base(fileName)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

// EntityFromFile resolves the entity a snapshot file belongs to.
func EntityFromFile(fileName string) (Entity, bool) {
	return ParseEntity(ModelName(fileName))
}

// FileNames maps entities to their snapshot file names.
func FileNames(entities []Entity) []string {
	files := make([]string, len(entities))
	for i, e := range entities {
		files[i] = e.FileName()
	}
	return files
}

// Reverse returns a reversed copy of order.
func Reverse(order []Entity) []Entity {
	out := make([]Entity, len(order))
	for i, e := range order {
		out[len(order)-1-i] = e
	}
	return out
}

// DefaultDeleteOrder is the reverse of DefaultCreateOrder: dependents are
// cleared before the entities they reference.
func DefaultDeleteOrder() []Entity {
	return Reverse(DefaultCreateOrder)
}

// ValidateCreateOrder checks that no entity is listed before an entity it
// depends on. Dependencies absent from the order are not checked.
func ValidateCreateOrder(order []Entity) error {
	pos, err := positions(order)
	if err != nil {
		return err
	}
	for i, e := range order {
		for _, dep := range e.DependsOn() {
			if p, ok := pos[dep]; ok && p > i {
				return fmt.Errorf("create order: %s is listed before %s, which it depends on", e, dep)
			}
		}
	}
	return nil
}

// ValidateDeleteOrder checks that no entity is listed before an entity that
// depends on it.
func ValidateDeleteOrder(order []Entity) error {
	pos, err := positions(order)
	if err != nil {
		return err
	}
	for i, e := range order {
		for _, dep := range e.DependsOn() {
			if p, ok := pos[dep]; ok && p < i {
				return fmt.Errorf("delete order: %s is listed before %s, which depends on it", dep, e)
			}
		}
	}
	return nil
}

func positions(order []Entity) (map[Entity]int, error) {
	pos := make(map[Entity]int, len(order))
	for i, e := range order {
		if _, dup := pos[e]; dup {
			return nil, fmt.Errorf("%s is listed more than once", e)
		}
		pos[e] = i
	}
	return pos, nil
}
