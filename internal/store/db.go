package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open открывает базу и проверяет соединение.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// одна запись за раз; для :memory: ещё и одна база на все запросы
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// rebind переписывает плейсхолдеры $1, $2 ... в ? для SQLite.
func rebind(driver, query string) string {
	if driver != DriverSQLite {
		return query
	}
	var sb strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			sb.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}

// encodeMetadata отдаёт строку: []byte lib/pq передал бы как bytea.
func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeMetadata(b []byte) map[string]any {
	m := map[string]any{}
	if len(b) > 0 {
		_ = json.Unmarshal(b, &m)
	}
	return m
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(us int64) time.Time { return time.UnixMicro(us).UTC() }

func limitClause(driver string, offset, limit int) string {
	switch {
	case limit >= 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case offset == 0:
		return ""
	case driver == DriverSQLite:
		// SQLite не принимает OFFSET без LIMIT
		return " LIMIT -1 OFFSET " + strconv.Itoa(offset)
	}
	return " OFFSET " + strconv.Itoa(offset)
}
