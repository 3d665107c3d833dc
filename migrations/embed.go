// Package migrations 内嵌 SQL schema，供 apply-migration 与集成测试使用
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
