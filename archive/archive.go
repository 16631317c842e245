package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/askanium/gcleaner-backend/collect"
	"github.com/askanium/gcleaner-backend/db"
	"google.golang.org/api/iterator"
)

const ledgerPrefix = "ledger"

// Record is the archived form of a modification ledger entry.
type Record struct {
	BatchID   int64     `json:"batch_id"`
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Count     int       `json:"count"`
	Action    string    `json:"action"`
	CreatedOn time.Time `json:"created_on"`
}

type ObjectInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated"`
}

type objectStore interface {
	NewWriter(ctx context.Context, name string) io.WriteCloser
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Exporter writes ledger records as JSON objects into a bucket, one object
// per record under ledger/<user id>/.
type Exporter struct {
	objects objectStore
	close   func() error
}

func NewExporter(ctx context.Context, bucket string) (*Exporter, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	slog.Info("Archiving modification ledger", "bucket", bucket)
	return &Exporter{objects: &gcsObjects{bucket: client.Bucket(bucket)}, close: client.Close}, nil
}

func (e *Exporter) Close() error {
	if e.close == nil {
		return nil
	}
	return e.close()
}

func (e *Exporter) Archive(ctx context.Context, principal collect.Principal, batch db.ModificationBatch) error {
	record := Record{
		BatchID:   batch.ID,
		UserID:    principal.ID,
		Email:     principal.Email,
		Count:     batch.Count,
		Action:    batch.Action,
		CreatedOn: batch.CreatedOn.UTC(),
	}
	name := objectName(record)
	w := e.objects.NewWriter(ctx, name)
	if err := json.NewEncoder(w).Encode(record); err != nil {
		w.Close()
		return fmt.Errorf("failed to write archive object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close archive object %s: %w", name, err)
	}
	return nil
}

// List returns the archived objects of a user.
func (e *Exporter) List(ctx context.Context, userID int64) ([]ObjectInfo, error) {
	objects, err := e.objects.List(ctx, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to list archive for user %d: %w", userID, err)
	}
	return objects, nil
}

func userPrefix(userID int64) string {
	return path.Join(ledgerPrefix, strconv.FormatInt(userID, 10)) + "/"
}

func objectName(r Record) string {
	return userPrefix(r.UserID) + fmt.Sprintf("%s-%d.json", r.CreatedOn.Format("20060102T150405Z"), r.BatchID)
}

type gcsObjects struct {
	bucket *storage.BucketHandle
}

func (g *gcsObjects) NewWriter(ctx context.Context, name string) io.WriteCloser {
	w := g.bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

func (g *gcsObjects) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	objects := []ObjectInfo{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, ObjectInfo{Name: attrs.Name, Size: attrs.Size, Updated: attrs.Updated})
	}
	return objects, nil
}
