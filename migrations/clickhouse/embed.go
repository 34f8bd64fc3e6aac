// Пакет clickhouse содержит миграции таблицы журнала событий resource_events
package clickhouse

import "embed"

//go:embed *.sql
var FS embed.FS
