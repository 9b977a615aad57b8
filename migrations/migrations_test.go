package migrations

import (
	"strings"
	"testing"
)

func TestStatements(t *testing.T) {
	my, err := Statements(MySQL)
	if err != nil {
		t.Fatalf("mysql: %v", err)
	}
	if len(my) != 1 || !strings.Contains(my[0], "purchase_submissions") {
		t.Fatalf("unexpected mysql statements %q", my)
	}

	ch, err := Statements(ClickHouse)
	if err != nil {
		t.Fatalf("clickhouse: %v", err)
	}
	if len(ch) != 2 || !strings.HasPrefix(ch[0], "CREATE DATABASE") {
		t.Fatalf("unexpected clickhouse statements %q", ch)
	}
}
