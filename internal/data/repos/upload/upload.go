// Package upload resolves an Upload row's stored bytes for stage 1,
// implementing stages.UploadFetcher by pairing a Persistence Gateway
// lookup (content_ref) with a Downloader over object storage. Grounded on
// the teacher's internal/data/repos/jobs repo shape for the DB half and
// internal/clients/gcp/bucket.go for the download half.
package upload

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/northboundcommerce/po-ingest-engine/internal/domain"
	"github.com/northboundcommerce/po-ingest-engine/internal/platform/pgw"
)

// Downloader fetches the raw bytes stored at key. Implemented by
// internal/clients/gcp.BucketClient.
type Downloader interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Repo implements stages.UploadFetcher.
type Repo struct {
	gw   *pgw.Gateway
	blob Downloader
}

func New(gw *pgw.Gateway, blob Downloader) *Repo {
	return &Repo{gw: gw, blob: blob}
}

// Fetch looks up the Upload row, then downloads its content_ref bytes.
func (r *Repo) Fetch(ctx context.Context, uploadID string) ([]byte, string, error) {
	id, err := uuid.Parse(uploadID)
	if err != nil {
		return nil, "", fmt.Errorf("parse upload id: %w", err)
	}

	db, err := r.gw.Client(ctx)
	if err != nil {
		return nil, "", err
	}

	var up domain.Upload
	if err := db.WithContext(ctx).First(&up, "id = ?", id).Error; err != nil {
		return nil, "", fmt.Errorf("fetch upload %s: %w", uploadID, err)
	}

	data, err := r.blob.Download(ctx, up.ContentRef)
	if err != nil {
		return nil, "", fmt.Errorf("download upload content %s: %w", up.ContentRef, err)
	}
	return data, up.OriginalName, nil
}
