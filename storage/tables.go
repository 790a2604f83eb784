package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"nexus-gateway/domain"
	"nexus-gateway/wire"
)

// Tables stores each collection in its own Azure table. Rows keep their wire
// JSON in a single property; scope fields are copied into columns so list
// filters can use them.
type Tables struct {
	svc    *aztables.ServiceClient
	tables map[domain.Collection]*aztables.Client
	now    func() time.Time
}

type rowEntity struct {
	aztables.Entity
	Row       string `json:"Row"`
	CreatedAt string `json:"CreatedAt"`
	ProjectID string `json:"ProjectID,omitempty"`
	TaskID    string `json:"TaskID,omitempty"`
}

var scopeColumns = map[string]string{
	wire.FieldID:        "RowKey",
	wire.FieldProjectID: "ProjectID",
	wire.FieldTaskID:    "TaskID",
}

// TableName returns the Azure table backing c. Table names are alphanumeric.
func TableName(prefix string, c domain.Collection) string {
	return prefix + strings.ReplaceAll(string(c), "_", "")
}

// NewTables connects to the storage account in connStr.
func NewTables(connStr, prefix string) (*Tables, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: -1,
				TryTimeout: 30 * time.Second,
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	t := &Tables{svc: svc, tables: map[domain.Collection]*aztables.Client{}, now: time.Now}
	for _, c := range domain.Collections() {
		t.tables[c] = svc.NewClient(TableName(prefix, c))
	}
	return t, nil
}

func quoteODataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func listFilter(q Query) string {
	filter := "PartitionKey eq " + quoteODataString(string(q.Collection))
	if q.Scope != nil {
		filter += " and " + scopeColumns[q.Scope.Field] + " eq " + quoteODataString(q.Scope.Value)
	}
	return filter
}

func encodeEntity(c domain.Collection, row wire.Row) ([]byte, error) {
	fields, err := wire.Fields(row)
	if err != nil {
		return nil, err
	}
	id, _ := wire.StringField(row, wire.FieldID)
	if id == "" {
		return nil, errors.New("row has no id")
	}
	ent := rowEntity{
		Entity: aztables.Entity{PartitionKey: string(c), RowKey: id},
		Row:    string(row),
	}
	ent.CreatedAt, _ = wire.StringField(row, wire.FieldCreatedAt)
	if _, ok := fields[wire.FieldProjectID]; ok {
		ent.ProjectID, _ = wire.StringField(row, wire.FieldProjectID)
	}
	if _, ok := fields[wire.FieldTaskID]; ok {
		ent.TaskID, _ = wire.StringField(row, wire.FieldTaskID)
	}
	return sonic.Marshal(ent)
}

func decodeEntity(data []byte) (rowEntity, error) {
	var ent rowEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return rowEntity{}, err
	}
	if _, err := wire.Fields(wire.Row(ent.Row)); err != nil {
		return rowEntity{}, fmt.Errorf("entity %s: %w", ent.RowKey, err)
	}
	return ent, nil
}

// orderRows sorts entities newest-first when asked and applies the limit.
func orderRows(ents []rowEntity, q Query) []wire.Row {
	if q.OrderDesc != "" {
		slices.SortStableFunc(ents, func(a, b rowEntity) int {
			return wire.ParseTime(b.CreatedAt).Compare(wire.ParseTime(a.CreatedAt))
		})
	}
	if q.Limit > 0 && len(ents) > q.Limit {
		ents = ents[:q.Limit]
	}
	rows := make([]wire.Row, 0, len(ents))
	for _, e := range ents {
		rows = append(rows, wire.Row(e.Row))
	}
	return rows
}

func isStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func (t *Tables) Fetch(ctx context.Context, q Query) Result[[]wire.Row] {
	if err := validQuery(q); err != nil {
		return Err[[]wire.Row](err)
	}
	filter := listFilter(q)
	pager := t.tables[q.Collection].NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	ents := []rowEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return Err[[]wire.Row](fmt.Errorf("fetch %s: %w", q.Collection, err))
		}
		for _, e := range resp.Entities {
			ent, err := decodeEntity(e)
			if err != nil {
				return Err[[]wire.Row](fmt.Errorf("fetch %s: %w", q.Collection, err))
			}
			ents = append(ents, ent)
		}
	}
	return Ok(orderRows(ents, q))
}

// Insert assigns id and created_at when the row lacks them, as the hosted
// service's column defaults would.
func (t *Tables) Insert(ctx context.Context, c domain.Collection, row wire.Row) Result[[]wire.Row] {
	if err := validCollection(c); err != nil {
		return Err[[]wire.Row](err)
	}
	defaults := map[string]any{}
	if id, _ := wire.StringField(row, wire.FieldID); id == "" {
		defaults[wire.FieldID] = uuid.NewString()
	}
	if at, _ := wire.StringField(row, wire.FieldCreatedAt); at == "" {
		defaults[wire.FieldCreatedAt] = wire.FormatTime(t.now())
	}
	stored, err := wire.Merge(row, defaults)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	data, err := encodeEntity(c, stored)
	if err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	if _, err := t.tables[c].AddEntity(ctx, data, nil); err != nil {
		return Err[[]wire.Row](fmt.Errorf("insert %s: %w", c, err))
	}
	return Ok([]wire.Row{stored})
}

// Update merges patch into the stored row. A concurrent writer makes the
// ETag check fail and the update is reported as an error.
func (t *Tables) Update(ctx context.Context, c domain.Collection, id string, patch map[string]any) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	client := t.tables[c]
	resp, err := client.GetEntity(ctx, string(c), id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return Err[struct{}](fmt.Errorf("update %s %s: %w", c, id, ErrNotFound))
		}
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	ent, err := decodeEntity(resp.Value)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	// The row key is the identity; a patch cannot move the row.
	delete(patch, wire.FieldID)
	merged, err := wire.Merge(wire.Row(ent.Row), patch)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	data, err := encodeEntity(c, merged)
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	etag := resp.ETag
	_, err = client.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return Err[struct{}](fmt.Errorf("update %s: %w", c, err))
	}
	return Ok(struct{}{})
}

// Delete removes the row. Deleting a missing row succeeds.
func (t *Tables) Delete(ctx context.Context, c domain.Collection, id string) Result[struct{}] {
	if err := validCollection(c); err != nil {
		return Err[struct{}](err)
	}
	if _, err := t.tables[c].DeleteEntity(ctx, string(c), id, nil); err != nil && !isStatus(err, http.StatusNotFound) {
		return Err[struct{}](fmt.Errorf("delete %s: %w", c, err))
	}
	return Ok(struct{}{})
}

func (t *Tables) Ping(ctx context.Context) error {
	top := int32(1)
	pager := t.svc.NewListTablesPager(&aztables.ListTablesOptions{Top: &top})
	_, err := pager.NextPage(ctx)
	return err
}
