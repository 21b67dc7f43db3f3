// Package identifier validates table and column names before they ever
// touch SQL text, closing the injection avenues that raw identifier
// interpolation would otherwise open.
package identifier

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	tableNameRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)
	columnNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// ReservedNames are table names the core never allows as a destination,
// whether or not they happen to exist in the backing database.
var ReservedNames = map[string]bool{
	"users":           true,
	"scripts":         true,
	"jobs":            true,
	"alembic_version": true,
}

// ReservedPrefixes are name prefixes that are always rejected, covering
// Postgres system catalogs and information_schema.
var ReservedPrefixes = []string{"pg_", "sql_", "information_schema"}

// ValidTableName reports whether name matches the table identifier rule.
// It does not check reserved names — see ValidDestinationTable.
func ValidTableName(name string) bool {
	return tableNameRe.MatchString(name)
}

// ValidColumnName reports whether name matches the column identifier rule.
func ValidColumnName(name string) bool {
	return columnNameRe.MatchString(name)
}

// ValidDestinationTable reports whether name is both a syntactically valid
// table name and not a reserved name or reserved-prefixed name. Source
// tables also pass through this check: the spec does not carve out a
// looser rule for read-only access.
func ValidDestinationTable(name string) bool {
	if !ValidTableName(name) {
		return false
	}
	lower := strings.ToLower(name)
	if ReservedNames[lower] {
		return false
	}
	for _, prefix := range ReservedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// CheckTableName returns a descriptive error if name fails validation, or
// nil if it is acceptable as a source or destination table name.
func CheckTableName(name string) error {
	if !ValidDestinationTable(name) {
		return fmt.Errorf("invalid table name %q: must match %s and must not be reserved", name, tableNameRe.String())
	}
	return nil
}

// CheckColumnName returns a descriptive error if name fails validation.
func CheckColumnName(name string) error {
	if !ValidColumnName(name) {
		return fmt.Errorf("invalid column name %q: must match %s", name, columnNameRe.String())
	}
	return nil
}
