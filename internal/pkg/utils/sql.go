package utils

import "database/sql"

// ToSQLStr wraps a string, empty maps to NULL
func ToSQLStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// FromSQLStr unwraps a nullable string, NULL maps to empty
func FromSQLStr(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

// ToSQLInt32 wraps an int32 as a non NULL value
func ToSQLInt32(i int32) sql.NullInt32 {
	return sql.NullInt32{Int32: i, Valid: true}
}

// FromSQLInt32OrZero unwraps a nullable int32, NULL maps to zero
func FromSQLInt32OrZero(v sql.NullInt32) int32 {
	if !v.Valid {
		return 0
	}
	return v.Int32
}
