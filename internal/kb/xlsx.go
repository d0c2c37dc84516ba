package kb

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsx layout: first sheet, first row is a header naming the columns
// id, title, category, symptoms, recommended_action in any order. Symptoms in
// one cell are separated by ';', '|' or newlines.
func loadXLSX(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open kb workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Entry{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read kb sheet %q: %w", sheets[0], err)
	}
	return entriesFromRows(rows), nil
}

func entriesFromRows(rows [][]string) []Entry {
	entries := []Entry{}
	if len(rows) == 0 {
		return entries
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.ReplaceAll(key, " ", "_")
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for _, row := range rows[1:] {
		e := Entry{
			ID:                cell(row, "id"),
			Title:             cell(row, "title"),
			Category:          cell(row, "category"),
			Symptoms:          splitSymptoms(cell(row, "symptoms")),
			RecommendedAction: cell(row, "recommended_action"),
		}
		if e.ID == "" && e.Title == "" && e.Category == "" && len(e.Symptoms) == 0 && e.RecommendedAction == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func splitSymptoms(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == '|' || r == '\n'
	})
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
