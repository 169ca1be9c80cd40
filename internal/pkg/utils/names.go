package utils

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var batchNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// NormalizeBatchName prepares a user entered batch name for use as
// a storage prefix and a SQL literal: trims, replaces whitespace runs with '_'.
// Empty input falls back to a UTC timestamp
func NormalizeBatchName(name string, now time.Time) (string, error) {
	res := strings.TrimSpace(name)
	if res == "" {
		return now.UTC().Format("20060102_150405"), nil
	}
	res = strings.Join(strings.Fields(res), "_")
	if !batchNameRegexp.MatchString(res) {
		return "", fmt.Errorf("wrong batch name '%s'", name)
	}
	return res, nil
}

// ValidBatchName checks if the name is safe for storage prefixes and SQL literals
func ValidBatchName(name string) bool {
	return batchNameRegexp.MatchString(name)
}

// SupportInvoiceExt checks if document ext is supported
func SupportInvoiceExt(ext string) bool {
	return ext == ".pdf"
}

// MakeValidateFileName joins id and file name dropping any path part of the name
func MakeValidateFileName(id, name string) (string, error) {
	res := filepath.Base(strings.TrimSpace(name))
	if res == "" || res == "." || res == string(filepath.Separator) {
		return "", fmt.Errorf("wrong file name '%s'", name)
	}
	if strings.Contains(res, "..") {
		return "", fmt.Errorf("wrong file name '%s'", name)
	}
	if id == "" {
		return res, nil
	}
	return filepath.Join(id, res), nil
}

// MakeFileName joins id and file name
func MakeFileName(id, name string) string {
	return filepath.Join(id, name)
}
