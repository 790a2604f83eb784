// Command storage-init provisions the Azure tables and the change queue used
// by the tables backend. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"nexus-gateway/domain"
	"nexus-gateway/storage"
)

const queueAlreadyExists = "QueueAlreadyExists"

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	ctx := context.Background()

	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		log.Fatalf("tables client: %v", err)
	}
	for _, name := range tableNames(os.Getenv("TABLE_PREFIX")) {
		created, err := ensureTable(ctx, svc.NewClient(name))
		if err != nil {
			log.Fatalf("create table %s: %v", name, err)
		}
		log.WithFields(log.Fields{"table": name, "created": created}).Info("table ready")
	}

	if queue := os.Getenv("CHANGE_QUEUE"); queue != "" {
		q, err := azqueue.NewQueueClientFromConnectionString(connStr, queue, nil)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		created, err := ensureQueue(ctx, q)
		if err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
		log.WithFields(log.Fields{"queue": queue, "created": created}).Info("queue ready")
	}

	log.Info("storage init complete")
}

func tableNames(prefix string) []string {
	cols := domain.Collections()
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, storage.TableName(prefix, c))
	}
	return names
}

type tableCreator interface {
	CreateTable(ctx context.Context, o *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// ensureTable reports whether the table was created by this call.
func ensureTable(ctx context.Context, c tableCreator) (bool, error) {
	if _, err := c.CreateTable(ctx, nil); err != nil {
		if hasErrorCode(err, string(aztables.TableAlreadyExists)) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func ensureQueue(ctx context.Context, q queueCreator) (bool, error) {
	if _, err := q.Create(ctx, nil); err != nil {
		if hasErrorCode(err, queueAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
