package reader

import (
	"strings"

	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/storage"
)

// resolveOrder picks the row ordering for a table: the declared sort field,
// else the parsed default-order spec, else the primary key ascending.
func resolveOrder(t *schema.TableSchema) []storage.Order {
	if t.Control.Sort != "" {
		return []storage.Order{{Field: t.Control.Sort}}
	}
	if t.DefaultOrder != "" {
		if parsed := parseOrderSpec(t.DefaultOrder); len(parsed) > 0 {
			return parsed
		}
	}
	return []storage.Order{{Field: t.Control.PrimaryKey}}
}

// parseOrderSpec parses a "field ASC, other DESC" default-order declaration.
// Unrecognized directions default to ascending.
func parseOrderSpec(spec string) []storage.Order {
	parts := strings.Split(spec, ",")
	orders := make([]storage.Order, 0, len(parts))

	for _, part := range parts {
		tokens := strings.Fields(strings.TrimSpace(part))
		if len(tokens) == 0 {
			continue
		}
		order := storage.Order{Field: tokens[0]}
		if len(tokens) > 1 && strings.EqualFold(tokens[1], "DESC") {
			order.Desc = true
		}
		orders = append(orders, order)
	}
	return orders
}
