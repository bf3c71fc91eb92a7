// Package schema resolves form metadata into physical table layouts and
// synthesizes the SQL statements that operate on them. Statement text is
// assembled only from server-derived numeric ids and validated identifiers;
// request values always travel as bound parameters.
package schema

import (
	"fmt"
	"strings"
)

// TableName returns the physical table backing a form.
func TableName(formID int64) string {
	return fmt.Sprintf("_structbi_form_%d", formID)
}

// ColumnName returns the physical column backing a form column.
func ColumnName(columnID int64) string {
	return fmt.Sprintf("_structbi_column_%d", columnID)
}

// JoinAlias returns the table alias used when a link column joins its
// target form into a projection.
func JoinAlias(columnID int64) string {
	return fmt.Sprintf("_%d", columnID)
}

// sqlType maps a declared column type to its storage type.
func sqlType(columnType string) string {
	switch columnType {
	case "integer", "boolean", "link":
		return "INTEGER"
	case "decimal":
		return "REAL"
	default:
		// text, date, image, file store as text.
		return "TEXT"
	}
}

// BuildCreateTable returns the statement creating a form's physical table:
// the synthetic primary key plus a creation timestamp. Data columns are
// added one at a time as column metadata is created.
func BuildCreateTable(formID, pkColumnID int64) string {
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s INTEGER PRIMARY KEY AUTOINCREMENT, created_at TEXT NOT NULL DEFAULT (datetime('now')))",
		TableName(formID), ColumnName(pkColumnID))
}

// BuildDropTable returns the statement removing a form's physical table.
func BuildDropTable(formID int64) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", TableName(formID))
}

// BuildAddColumn returns the ALTER TABLE statement adding a data column.
func BuildAddColumn(formID, columnID int64, columnType string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		TableName(formID), ColumnName(columnID), sqlType(columnType))
}

// BuildDropColumn returns the ALTER TABLE statement removing a data column.
func BuildDropColumn(formID, columnID int64) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		TableName(formID), ColumnName(columnID))
}

// BuildInsert returns the INSERT for a form's data columns. A form whose
// metadata declares no storable columns cannot accept records.
func BuildInsert(formID int64, columnIDs []int64) (string, error) {
	if len(columnIDs) == 0 {
		return "", fmt.Errorf("form %d has no data columns", formID)
	}
	cols := make([]string, len(columnIDs))
	marks := make([]string, len(columnIDs))
	for i, id := range columnIDs {
		cols[i] = ColumnName(id)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName(formID), strings.Join(cols, ", "), strings.Join(marks, ", ")), nil
}

// BuildUpdate returns the UPDATE for a form's data columns, keyed on the
// synthetic primary key.
func BuildUpdate(formID, pkColumnID int64, columnIDs []int64) (string, error) {
	if len(columnIDs) == 0 {
		return "", fmt.Errorf("form %d has no data columns", formID)
	}
	sets := make([]string, len(columnIDs))
	for i, id := range columnIDs {
		sets[i] = ColumnName(id) + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		TableName(formID), strings.Join(sets, ", "), ColumnName(pkColumnID)), nil
}

// BuildSelectValues returns a SELECT of specific stored columns for one
// record, keyed on the synthetic primary key. Used to fetch current file
// names before a replace or delete.
func BuildSelectValues(formID, pkColumnID int64, columnIDs []int64) (string, error) {
	if len(columnIDs) == 0 {
		return "", fmt.Errorf("form %d: no columns selected", formID)
	}
	cols := make([]string, len(columnIDs))
	for i, id := range columnIDs {
		cols[i] = ColumnName(id)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(cols, ", "), TableName(formID), ColumnName(pkColumnID)), nil
}

// BuildDeleteRecord returns the DELETE for one record, keyed on the
// synthetic primary key.
func BuildDeleteRecord(formID, pkColumnID int64) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		TableName(formID), ColumnName(pkColumnID))
}
