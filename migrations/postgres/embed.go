// Пакет postgres содержит SQL миграции схемы resources, встроенные в бинарник
package postgres

import "embed"

// FS содержит файлы миграций в формате golang-migrate (NNNNNN_name.up.sql / .down.sql)
//
//go:embed *.sql
var FS embed.FS
