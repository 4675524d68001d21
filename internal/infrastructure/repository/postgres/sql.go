package postgres

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"
)

func isNotFound(err error) bool {
	return stderrors.Is(err, sql.ErrNoRows)
}

// Connection poolers in transaction mode drop unnamed prepared statements
// between round trips; these errors are safe to retry once.
func isBindParameterMismatch(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "bind message supplies") && strings.Contains(text, "requires")
}

func isUnnamedPreparedStatementMissing(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unnamed prepared statement does not exist") ||
		(strings.Contains(text, "prepared statement") && strings.Contains(text, "26000"))
}

func isResultFormatMismatch(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "bind message has") &&
		strings.Contains(text, "result formats") &&
		strings.Contains(text, "query has")
}

func shouldRetryStatement(err error) bool {
	return isBindParameterMismatch(err) || isUnnamedPreparedStatementMissing(err) || isResultFormatMismatch(err)
}

// jsonColumn converts a raw document into a nullable jsonb parameter.
func jsonColumn(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	value := string(raw)
	return &value
}

func jsonValue(column *string) json.RawMessage {
	if column == nil || *column == "" || *column == "null" {
		return nil
	}
	return json.RawMessage(*column)
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
