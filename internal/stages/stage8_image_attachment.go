package stages

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	imageCandidateLimit     = 3
	imageMinConfidence      = 0.50
	imageAttachmentBudgetMs = 5000
	imageAttachmentMaxConc  = 4
)

// ImageAttachment is stage 8: for each draft, query the image source
// with a single "Brand Model" query, attach the top-3 candidates by
// confidence. Per-query failures are tolerated; an empty image set is
// an acceptable terminal state, never a stage failure (spec.md §4.6).
// Drafts are independent of each other, so the searches run concurrently,
// bounded the same way the teacher bounds its embedding fan-out.
func ImageAttachment(ctx context.Context, d Deps, in ProductDraftCreationOutput) (ImageAttachmentOutput, error) {
	if d.ImageSearch == nil || d.Drafts == nil {
		return ImageAttachmentOutput(in), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageAttachmentMaxConc)

	for _, li := range in.LineItems {
		li := li
		if li.DraftID == uuid.Nil {
			continue
		}
		g.Go(func() error {
			query := imageQueryFor(li)
			candidates, err := d.ImageSearch.Search(gctx, query)
			if err != nil {
				return nil
			}
			top := topImageCandidates(candidates, imageCandidateLimit, imageMinConfidence)
			if len(top) == 0 {
				return nil
			}
			_ = d.Drafts.AttachImages(gctx, li.DraftID.String(), top)
			return nil
		})
	}
	_ = g.Wait()

	return ImageAttachmentOutput(in), nil
}

// imageQueryFor builds the "Brand Model" query from a line item's
// product name, taking the first two tokens as a brand/model
// approximation when no richer metadata is available.
func imageQueryFor(li LineItem) string {
	fields := strings.Fields(li.ProductName)
	if len(fields) <= 2 {
		return strings.TrimSpace(li.ProductName)
	}
	return fmt.Sprintf("%s %s", fields[0], fields[1])
}

func topImageCandidates(candidates []ImageCandidate, limit int, minConfidence float64) []ImageCandidate {
	filtered := make([]ImageCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= minConfidence {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Confidence > filtered[j].Confidence })
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}
