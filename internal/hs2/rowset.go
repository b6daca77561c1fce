package hs2

import (
	"fmt"

	"github.com/beltran/gohive/hiveserver"

	"hue-gateway/internal/domain"
)

// decodeColumns converts a columnar TRowSet into row-major values. NULLs are
// reported through each column's null bitmap and become nil.
func decodeColumns(columns []*hiveserver.TColumn) ([][]any, error) {
	if len(columns) == 0 {
		return nil, nil
	}

	decoded := make([][]any, len(columns))
	numRows := -1
	for i, col := range columns {
		values, err := decodeColumn(col)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		if numRows == -1 {
			numRows = len(values)
		} else if len(values) != numRows {
			return nil, fmt.Errorf("column %d has %d values, expected %d", i, len(values), numRows)
		}
		decoded[i] = values
	}

	rows := make([][]any, numRows)
	for r := 0; r < numRows; r++ {
		row := make([]any, len(decoded))
		for c := range decoded {
			row[c] = decoded[c][r]
		}
		rows[r] = row
	}
	return rows, nil
}

func decodeColumn(col *hiveserver.TColumn) ([]any, error) {
	switch {
	case col.IsSetBoolVal():
		return collect(col.BoolVal.Values, col.BoolVal.Nulls, identity[bool]), nil
	case col.IsSetByteVal():
		return collect(col.ByteVal.Values, col.ByteVal.Nulls, identity[int8]), nil
	case col.IsSetI16Val():
		return collect(col.I16Val.Values, col.I16Val.Nulls, identity[int16]), nil
	case col.IsSetI32Val():
		return collect(col.I32Val.Values, col.I32Val.Nulls, identity[int32]), nil
	case col.IsSetI64Val():
		return collect(col.I64Val.Values, col.I64Val.Nulls, identity[int64]), nil
	case col.IsSetDoubleVal():
		return collect(col.DoubleVal.Values, col.DoubleVal.Nulls, identity[float64]), nil
	case col.IsSetStringVal():
		return collect(col.StringVal.Values, col.StringVal.Nulls, identity[string]), nil
	case col.IsSetBinaryVal():
		return collect(col.BinaryVal.Values, col.BinaryVal.Nulls, func(b []byte) any { return string(b) }), nil
	}
	return nil, fmt.Errorf("unrecognized column type")
}

func identity[T any](v T) any { return v }

func collect[T any](values []T, nulls []byte, conv func(T) any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if isNull(nulls, i) {
			continue
		}
		out[i] = conv(v)
	}
	return out
}

func isNull(nulls []byte, position int) bool {
	index := position / 8
	if index < len(nulls) {
		return nulls[index]&(1<<uint(position%8)) != 0
	}
	return false
}

// decodeSchema converts result set metadata into column descriptions.
func decodeSchema(schema *hiveserver.TTableSchema) []domain.ColumnMeta {
	if schema == nil {
		return nil
	}
	cols := make([]domain.ColumnMeta, len(schema.Columns))
	for i, c := range schema.Columns {
		meta := domain.ColumnMeta{Name: c.ColumnName, Comment: c.GetComment()}
		if c.TypeDesc != nil && len(c.TypeDesc.Types) > 0 {
			entry := c.TypeDesc.Types[0]
			if entry.PrimitiveEntry != nil {
				meta.Type = entry.PrimitiveEntry.Type.String()
			} else {
				meta.Type = complexTypeName(entry)
			}
		}
		cols[i] = meta
	}
	return cols
}

func complexTypeName(entry *hiveserver.TTypeEntry) string {
	switch {
	case entry.ArrayEntry != nil:
		return "ARRAY_TYPE"
	case entry.MapEntry != nil:
		return "MAP_TYPE"
	case entry.StructEntry != nil:
		return "STRUCT_TYPE"
	case entry.UnionEntry != nil:
		return "UNION_TYPE"
	case entry.UserDefinedTypeEntry != nil:
		return "USER_DEFINED_TYPE"
	}
	return "STRING_TYPE"
}

// toThriftHandle rebuilds the backend operation handle from its persisted form.
func toThriftHandle(h *domain.QueryHandle) *hiveserver.TOperationHandle {
	return &hiveserver.TOperationHandle{
		OperationId:      &hiveserver.THandleIdentifier{GUID: h.GUID, Secret: h.Secret},
		OperationType:    hiveserver.TOperationType(h.OperationType),
		HasResultSet:     h.HasResultSet,
		ModifiedRowCount: h.ModifiedRowCount,
	}
}

func fromThriftHandle(h *hiveserver.TOperationHandle) *domain.QueryHandle {
	if h == nil || h.OperationId == nil {
		return nil
	}
	return &domain.QueryHandle{
		GUID:             h.OperationId.GUID,
		Secret:           h.OperationId.Secret,
		OperationType:    int(h.OperationType),
		HasResultSet:     h.HasResultSet,
		ModifiedRowCount: h.ModifiedRowCount,
	}
}
