package search

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterParams describes a catalog search.
type FilterParams struct {
	Query    string
	MinPrice *float64
	MaxPrice *float64
	MinYear  *int
	OwnerIDs []string
	// HasImages restricts results to properties with at least one displayable image.
	HasImages bool
	SortBy    string
	Facets    []string
	Limit     int64
	Offset    int64
}

// sortOptions maps the public sort keys to index sort rules.
var sortOptions = map[string]string{
	"price_asc":  "price:asc",
	"price_desc": "price:desc",
	"year_desc":  "year:desc",
	"year_asc":   "year:asc",
	"name_asc":   "name:asc",
}

// Filter returns the Meilisearch filter expression, or "" for none.
func (p FilterParams) Filter() string {
	var filters []string

	if p.MinPrice != nil {
		filters = append(filters, "price >= "+formatNumber(*p.MinPrice))
	}
	if p.MaxPrice != nil {
		filters = append(filters, "price <= "+formatNumber(*p.MaxPrice))
	}
	if p.MinYear != nil {
		filters = append(filters, fmt.Sprintf("year >= %d", *p.MinYear))
	}
	if len(p.OwnerIDs) > 0 {
		owners := make([]string, len(p.OwnerIDs))
		for i, id := range p.OwnerIDs {
			owners[i] = fmt.Sprintf("idOwner = %s", quote(id))
		}
		if len(owners) == 1 {
			filters = append(filters, owners[0])
		} else {
			filters = append(filters, fmt.Sprintf("(%s)", strings.Join(owners, " OR ")))
		}
	}
	if p.HasImages {
		filters = append(filters, "imageCount > 0")
	}

	return strings.Join(filters, " AND ")
}

// Sort returns the sort rules for SortBy. Unknown keys sort by relevance.
func (p FilterParams) Sort() []string {
	if rule, ok := sortOptions[p.SortBy]; ok {
		return []string{rule}
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// quote wraps a value in double quotes for a filter expression.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
