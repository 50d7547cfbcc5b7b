// Package sqltest 提供按脚本回放的 database/sql 驱动，用于在没有数据库的情况下
// 校验存储层发出的 SQL 语句顺序与参数。
package sqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type kind int

const (
	kindExec kind = iota
	kindQuery
	kindBegin
	kindCommit
	kindRollback
)

func (k kind) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[k]
}

// Step 是脚本中的一条预期操作。
type Step struct {
	kind         kind
	query        string
	rowsAffected int64
	columns      []string
	rows         [][]driver.Value
	err          error
	args         []driver.Value
}

// Exec 期望一条写语句。query 为空时不校验语句文本。
func Exec(query string, rowsAffected int64) Step {
	return Step{kind: kindExec, query: query, rowsAffected: rowsAffected}
}

// Query 期望一条查询，并返回给定的列与行。
func Query(query string, columns []string, rows ...[]driver.Value) Step {
	return Step{kind: kindQuery, query: query, columns: columns, rows: rows}
}

// Begin 期望开启事务。
func Begin() Step { return Step{kind: kindBegin} }

// Commit 期望提交事务。
func Commit() Step { return Step{kind: kindCommit} }

// Rollback 期望回滚事务。
func Rollback() Step { return Step{kind: kindRollback} }

// Fail 让该步骤返回 err。
func (s Step) Fail(err error) Step {
	s.err = err
	return s
}

// Script 记录回放进度以及每一步收到的参数。
type Script struct {
	mu    sync.Mutex
	steps []Step
	idx   int
}

var seq atomic.Int32

// Open 注册一个只服务于当前测试的驱动并返回连接。
func Open(t *testing.T, steps ...Step) (*sql.DB, *Script) {
	t.Helper()
	script := &Script{steps: steps}
	name := fmt.Sprintf("sqltest-%d", seq.Add(1))
	sql.Register(name, &scriptDriver{script: script})
	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { db.Close() })
	return db, script
}

// AssertConsumed 检查所有步骤都已执行。
func (s *Script) AssertConsumed(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx != len(s.steps) {
		t.Fatalf("not all operations consumed: %d/%d", s.idx, len(s.steps))
	}
}

// Args 返回第 i 步收到的参数。
func (s *Script) Args(i int) []driver.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.steps) {
		return nil
	}
	return s.steps[i].args
}

func (s *Script) next(expected kind, query string, args []driver.NamedValue) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.steps) {
		return nil, fmt.Errorf("unexpected %s: %s", expected, Normalize(query))
	}
	step := &s.steps[s.idx]
	if step.kind != expected {
		return nil, fmt.Errorf("expected %s, got %s", step.kind, expected)
	}
	s.idx++
	if step.query != "" && Normalize(step.query) != Normalize(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", Normalize(step.query), Normalize(query))
	}
	for _, arg := range args {
		step.args = append(step.args, arg.Value)
	}
	return step, nil
}

// Normalize 折叠空白，便于比较多行 SQL。
func Normalize(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

type scriptDriver struct {
	script *Script
}

func (d *scriptDriver) Open(string) (driver.Conn, error) {
	return &conn{script: d.script}, nil
}

type conn struct {
	script *Script
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	step, err := c.script.next(kindBegin, "", nil)
	if err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}
	return &tx{script: c.script}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	step, err := c.script.next(kindExec, query, args)
	if err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}
	return driver.RowsAffected(step.rowsAffected), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	step, err := c.script.next(kindQuery, query, args)
	if err != nil {
		return nil, err
	}
	if step.err != nil {
		return nil, step.err
	}
	return &rows{columns: step.columns, values: step.rows}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

// CheckNamedValue 接受任意参数类型，交由脚本记录。
func (c *conn) CheckNamedValue(*driver.NamedValue) error { return nil }

type tx struct {
	script *Script
}

func (t *tx) Commit() error {
	step, err := t.script.next(kindCommit, "", nil)
	if err != nil {
		return err
	}
	return step.err
}

func (t *tx) Rollback() error {
	step, err := t.script.next(kindRollback, "", nil)
	if err != nil {
		return err
	}
	return step.err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}
