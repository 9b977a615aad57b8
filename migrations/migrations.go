// Package migrations embeds the schema so the binary can migrate without
// a checkout next to it.
package migrations

import (
	"embed"
	"strings"
)

//go:embed *.sql
var files embed.FS

const (
	MySQL      = "001_init.sql"
	ClickHouse = "002_clickhouse_events.sql"
)

// Statements splits a migration file into single statements; neither
// driver accepts several statements in one Exec by default.
func Statements(name string) ([]string, error) {
	b, err := files.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, s := range strings.Split(string(b), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
