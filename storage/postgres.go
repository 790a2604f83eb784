package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

// Postgres reads and writes the relational schema directly. Rows travel as
// JSON in both directions so the column set is never spelled out here.
type Postgres struct {
	db *sqlx.DB
}

var columnName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OpenPostgres opens a pool for dsn. The connection is checked lazily; the
// connectivity probe reports an unreachable database.
func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	return NewPostgres(db), nil
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func selectQuery(q Query) (string, []any) {
	var b strings.Builder
	var args []any
	table := pq.QuoteIdentifier(string(q.Collection))
	b.WriteString("SELECT row_to_json(t)::text FROM " + table + " AS t")
	if q.Scope != nil {
		args = append(args, q.Scope.Value)
		b.WriteString(" WHERE t." + pq.QuoteIdentifier(q.Scope.Field) + " = $1")
	}
	if q.OrderDesc != "" {
		b.WriteString(" ORDER BY t." + pq.QuoteIdentifier(q.OrderDesc) + " DESC")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String(), args
}

func columns(keys []string) ([]string, error) {
	cols := make([]string, 0, len(keys))
	for _, k := range keys {
		if !columnName.MatchString(k) {
			return nil, fmt.Errorf("invalid column name %q", k)
		}
		cols = append(cols, pq.QuoteIdentifier(k))
	}
	sort.Strings(cols)
	return cols, nil
}

// insertQuery lets json_populate_record convert the row into the table's
// column types. Columns missing from the row keep their defaults.
func insertQuery(c domain.Collection, keys []string) (string, error) {
	cols, err := columns(keys)
	if err != nil {
		return "", err
	}
	table := pq.QuoteIdentifier(string(c))
	if len(cols) == 0 {
		return "INSERT INTO " + table + " AS t DEFAULT VALUES RETURNING row_to_json(t)::text", nil
	}
	list := strings.Join(cols, ", ")
	return "INSERT INTO " + table + " AS t (" + list + ") SELECT " + list +
		" FROM json_populate_record(NULL::" + table + ", $1) RETURNING row_to_json(t)::text", nil
}

func updateQuery(c domain.Collection, keys []string) (string, error) {
	cols, err := columns(keys)
	if err != nil {
		return "", err
	}
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		sets = append(sets, col+" = src."+col)
	}
	table := pq.QuoteIdentifier(string(c))
	return "UPDATE " + table + " AS dst SET " + strings.Join(sets, ", ") +
		" FROM json_populate_record(NULL::" + table + ", $1) AS src WHERE dst.id = $2", nil
}

func (p *Postgres) Fetch(ctx context.Context, q Query) Result[[]wire.Row] {
	if err := validQuery(q); err != nil {
		return Err[[]wire.Row](err)
	}
	query, args := selectQuery(q)
	var raw []string
	if err := p.db.SelectContext(ctx, &raw, query, args...); err != nil {
		return Err[[]wire.Row](fmt.Errorf("fetch %s: %w", q.Collection, err))
	}
	rows := make([]wire.Row, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, wire.Row(r))
	}
	return Ok(rows)
}

func (p *Postgres) Insert(ctx context.Context, c domain.Collection, row wire.Row) Result[[]wire.Row] {
	if err := validCollection(c); err != nil {
		return Err[[]wire.Row](err)
	}
	fields, err := wire.Fields(row)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	query, err := insertQuery(c, keys)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	var stored string
	if err := p.db.GetContext(ctx, &stored, query, string(row)); err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	return Ok([]wire.Row{wire.Row(stored)})
}

// Update reports ErrNotFound when no row has the id.
func (p *Postgres) Update(ctx context.Context, c domain.Collection, id string, patch map[string]any) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		if k != wire.FieldID {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return Ok(struct{}{})
	}
	query, err := updateQuery(c, keys)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	body, err := sonic.Marshal(patch)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	res, err := p.db.ExecContext(ctx, query, string(body), id)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Err[struct{}](fmt.Errorf("update %s %s: %w", c, id, ErrNotFound))
	}
	return Ok(struct{}{})
}

func (p *Postgres) Delete(ctx context.Context, c domain.Collection, id string) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	query := "DELETE FROM " + pq.QuoteIdentifier(string(c)) + " WHERE id = $1"
	if _, err := p.db.ExecContext(ctx, query, id); err != nil {
		return Err[struct{}](fmt.Errorf("delete %s: %w", c, err))
	}
	return Ok(struct{}{})
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
