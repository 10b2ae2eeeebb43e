package mysql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	createVersionTableSQL = `CREATE TABLE IF NOT EXISTS contracthub_schema_version (
        version INT NOT NULL PRIMARY KEY,
        name VARCHAR(128) NOT NULL,
        applied_at BIGINT NOT NULL
)`
	currentVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM contracthub_schema_version`
	recordVersionSQL  = `INSERT INTO contracthub_schema_version (version, name, applied_at) VALUES (?, ?, ?)`
)

// schemaStep 是 schema/ 目录下的一个迁移文件，文件名前缀为版本号。
type schemaStep struct {
	version    int
	name       string
	statements []string
}

// runMigrations 将库结构升级到最新版本。每个版本在独立事务中执行。
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createVersionTableSQL); err != nil {
		return fmt.Errorf("创建版本表失败: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, currentVersionSQL).Scan(&current); err != nil {
		return fmt.Errorf("读取当前结构版本失败: %w", err)
	}

	steps, err := loadSchemaSteps()
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if err := applyStep(ctx, db, step); err != nil {
			return err
		}
	}
	return nil
}

func applyStep(ctx context.Context, db *sql.DB, step schemaStep) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range step.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 失败: %w", step.name, err)
		}
	}
	if _, err = tx.ExecContext(ctx, recordVersionSQL, step.version, step.name, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录结构版本 %d 失败: %w", step.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", step.name, err)
	}
	return nil
}

func loadSchemaSteps() ([]schemaStep, error) {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, err
	}

	steps := make([]schemaStep, 0, len(files))
	for _, file := range files {
		name := path.Base(file)
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("迁移文件 %s 缺少版本前缀", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("迁移文件 %s 版本号无效: %w", name, err)
		}
		content, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", name, err)
		}
		steps = append(steps, schemaStep{version: version, name: name, statements: splitStatements(string(content))})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// splitStatements 按分号切分语句。迁移文件中不允许出现带分号的字面量。
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
