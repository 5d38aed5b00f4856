package cachestore

import (
	"strings"
	"testing"
)

func TestUpsertQueryPerDriver(t *testing.T) {
	cases := map[string]string{
		"postgres": "ON CONFLICT",
		"sqlite3":  "ON CONFLICT",
		"mysql":    "REPLACE INTO",
	}
	for driver, want := range cases {
		q := upsertQuery(driver)
		if !strings.Contains(q, want) {
			t.Fatalf("driver %s: expected query to contain %q, got %q", driver, want, q)
		}
	}
}

func TestDriverNamesRecognizesTeacherVocabulary(t *testing.T) {
	for _, dbType := range []string{"mysql", "postgres", "postgresql", "sqlite3", "sqlite", "sqlserver", "mssql"} {
		if _, ok := driverNames[dbType]; !ok {
			t.Fatalf("expected driverNames to recognize %q", dbType)
		}
	}
}
