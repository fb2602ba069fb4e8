package schema

import "strings"

// nameLikeHints are header fragments that mark a text column as holding
// person or entity names. Matching columns get fuzzy spelling expansion on
// equality and LIKE filters.
var nameLikeHints = []string{
	"name", "customer", "user", "account", "contact",
	"student", "employee", "email", "gmail",
}

// IsNameLike reports whether a column header suggests person/entity lookup.
func IsNameLike(header string) bool {
	h := strings.ToLower(header)
	for _, hint := range nameLikeHints {
		if strings.Contains(h, hint) {
			return true
		}
	}
	return false
}

// InferDescription builds a one-line summary of a table from its name and
// columns. The summary is retrieval context only; nothing downstream parses
// it.
func InferDescription(name string, columns []Column) string {
	lower := make(map[string]bool, len(columns))
	for _, c := range columns {
		lower[strings.ToLower(c.Name)] = true
	}

	switch {
	case lower["lineitem name"] || lower["product name"] || lower["item name"] || lower["sku"]:
		return "Detailed sales breakdown by line item or product."
	case lower["shipping zip"] || lower["pincode"] || lower["zip code"]:
		return "Sales breakdown by location or pincode."
	case lower["gross sales"] && lower["orders"]:
		return "Aggregate sales data with metrics like Orders and Gross Sales."
	}

	readable := strings.ReplaceAll(name, "_", " ")
	return "Table containing " + readable
}
