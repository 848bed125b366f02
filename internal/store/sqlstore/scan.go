package sqlstore

import (
	"entity-graphql/internal/dbexec"
	"entity-graphql/internal/entity"
)

// scanRecords reads rows whose first columns are d's fields, optionally
// followed by the through entity's fields, which are attached under
// throughKey.
func scanRecords(rows dbexec.Rows, d, through *entity.Descriptor, throughKey string) ([]entity.Record, error) {
	defer rows.Close()

	width := len(d.Fields)
	if through != nil {
		width += len(through.Fields)
	}
	var out []entity.Record
	for rows.Next() {
		values := make([]interface{}, width)
		dest := make([]interface{}, width)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec := make(entity.Record, len(d.Fields)+1)
		for i, f := range d.Fields {
			rec[f.Name] = normalizeValue(values[i])
		}
		if through != nil {
			edge := make(entity.Record, len(through.Fields))
			for i, f := range through.Fields {
				edge[f.Name] = normalizeValue(values[len(d.Fields)+i])
			}
			rec[throughKey] = edge
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int64:
		return int(x)
	default:
		return v
	}
}
