package main

import (
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
)

// idRow is one identifier in the list-ids report: what YNAB calls it and
// which ledger account, if any, the journal pins it to.
type idRow struct {
	id     string
	name   string
	mapped string
}

// listIDs prints every remote account and category alongside its mapping
// status. This is how users discover the ids to put on their open
// directives. Accounts first, then categories, each sorted by name.
func listIDs(w io.Writer, rc *resolveContext) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Ledger Account"})
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	appendRows := func(rows []idRow) {
		sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })
		for _, r := range rows {
			table.Append([]string{r.id, r.name, r.mapped})
		}
	}

	mappedOr := func(id string) string {
		if mapped, ok := rc.mapping[id]; ok {
			return mapped
		}
		return "(none)"
	}

	var accounts []idRow
	for id, a := range rc.entities.Accounts {
		accounts = append(accounts, idRow{id: id, name: a.Name, mapped: mappedOr(id)})
	}
	appendRows(accounts)

	var categories []idRow
	for id := range rc.entities.Categories {
		categories = append(categories, idRow{id: id, name: rc.categoryPath(id), mapped: mappedOr(id)})
	}
	appendRows(categories)

	table.Render()
}
