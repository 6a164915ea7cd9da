package collect

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/TobiSchelling/Storyline/internal/content"
	"github.com/TobiSchelling/Storyline/internal/database"
)

// ImportResult holds the results of importing an export file.
type ImportResult struct {
	Imported map[content.ItemKind]int
	Skipped  int // records without a usable id
}

// ImportExport stores every record of a JSON export. The export is either a
// bare array of records of defaultKind, or an object with "stories" and
// "themes" arrays. Records are stored raw and replace existing documents
// with the same id.
func ImportExport(db *database.DB, data []byte, defaultKind content.ItemKind) (*ImportResult, error) {
	batches, err := parseExport(data, defaultKind)
	if err != nil {
		return nil, err
	}

	r := &ImportResult{Imported: make(map[content.ItemKind]int)}
	for _, kind := range content.Kinds {
		for i, rec := range batches[kind] {
			id := content.NormalizeItem(kind, rec).ID
			if id == "" {
				log.Printf("Skipping %s record %d: no id", kind, i)
				r.Skipped++
				continue
			}
			if err := db.UpsertDocument(string(kind), id, rec); err != nil {
				return r, fmt.Errorf("storing %s/%s: %w", kind, id, err)
			}
			r.Imported[kind]++
		}
	}
	return r, nil
}

func parseExport(data []byte, defaultKind content.ItemKind) (map[content.ItemKind][]content.Record, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing export: %w", err)
	}

	batches := make(map[content.ItemKind][]content.Record)
	switch v := raw.(type) {
	case []any:
		batches[defaultKind] = records(v)
	case map[string]any:
		found := false
		for key, list := range v {
			kind, ok := content.ParseKind(key)
			if !ok {
				continue
			}
			arr, ok := list.([]any)
			if !ok {
				return nil, fmt.Errorf("parsing export: %q is not an array", key)
			}
			batches[kind] = append(batches[kind], records(arr)...)
			found = true
		}
		if !found {
			return nil, fmt.Errorf("parsing export: expected \"stories\" or \"themes\"")
		}
	default:
		return nil, fmt.Errorf("parsing export: expected an array or object")
	}
	return batches, nil
}

// records keeps the object elements of a list.
func records(list []any) []content.Record {
	out := make([]content.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}
