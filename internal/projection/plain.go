package projection

import (
	"fmt"

	"github.com/roach88/repokit/internal/schema"
)

// Plain converts a result element into nil, string, bool, int64, []any or
// map[string]any, the value set accepted by canonical JSON.
//
// Records become their fields plus their links: an unfetched reference as
// its id, a fetched record nested, a fetched collection as a list. A record
// reached again through its own links is rendered with fields only.
// Elements of any other type are rendered with fmt.
func Plain(item any) any {
	return plain(item, map[*schema.Record]bool{})
}

func plain(item any, path map[*schema.Record]bool) any {
	switch v := item.(type) {
	case nil, string, bool, int64:
		return v
	case int:
		return int64(v)
	case *schema.Record:
		if v == nil {
			return nil
		}
		return plainRecord(v, path)
	case []*schema.Record:
		out := make([]any, len(v))
		for i, rec := range v {
			out[i] = plain(rec, path)
		}
		return out
	case schema.Ref:
		return v.ID
	case Value:
		out := make(map[string]any, len(v.Names))
		for i, n := range v.Names {
			out[n] = plain(v.Values[i], path)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e, path)
		}
		return out
	}
	return fmt.Sprint(item)
}

func plainRecord(rec *schema.Record, path map[*schema.Record]bool) map[string]any {
	out := make(map[string]any, len(rec.Fields)+len(rec.Links))
	for k, v := range rec.Fields {
		out[k] = plain(v, path)
	}
	if path[rec] {
		return out
	}
	path[rec] = true
	defer delete(path, rec)
	for k, v := range rec.Links {
		out[k] = plain(v, path)
	}
	return out
}
