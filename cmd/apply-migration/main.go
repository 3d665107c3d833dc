package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"residence-data/common/database"
	"residence-data/common/logger"
	"residence-data/internal/config"
	"residence-data/migrations"

	"go.uber.org/zap"
)

// 用法：apply-migration [file.sql]
// 不带参数时按文件名顺序执行内嵌的全部迁移
func main() {
	cfg := config.Load()
	cfg.Database.ApplicationName = "apply-migration"
	log := logger.NewLogger(cfg.Log.Level, "console", "apply-migration")
	defer log.Sync()

	scripts, err := loadScripts(os.Args[1:])
	if err != nil {
		log.Fatal("read migrations failed", zap.Error(err))
	}

	db, err := database.NewPostgresDB(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatal("cannot connect to database", zap.Error(err))
	}
	defer database.Close(db)
	log.Info("connected to database", zap.String("database", cfg.Database.Database))

	for _, s := range scripts {
		statements := splitStatements(s.content)
		for i, stmt := range statements {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, err := db.ExecContext(ctx, stmt)
			cancel()
			if err != nil {
				log.Fatal("statement failed",
					zap.String("file", s.name),
					zap.Int("statement", i+1),
					zap.String("sql", stmt[:min(100, len(stmt))]),
					zap.Error(err),
				)
			}
		}
		log.Info("migration applied", zap.String("file", s.name), zap.Int("statements", len(statements)))
	}
	fmt.Println("Migration completed successfully")
}

type script struct {
	name    string
	content string
}

func loadScripts(args []string) ([]script, error) {
	if len(args) > 0 {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return nil, err
		}
		return []script{{name: args[0], content: string(b)}}, nil
	}
	names, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]script, 0, len(names))
	for _, name := range names {
		b, err := migrations.FS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		out = append(out, script{name: name, content: string(b)})
	}
	return out, nil
}

// splitStatements 去掉整行注释后按 ; 切分（schema 中没有函数体）
func splitStatements(sqlContent string) []string {
	var b strings.Builder
	for _, line := range strings.Split(sqlContent, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
