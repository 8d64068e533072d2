package biz

import (
	"context"
	"fmt"
	"time"

	"postguard/internal/pkg/moderator"

	"github.com/go-kratos/kratos/v2/log"
)

// MediaKind selects the pipeline for a standalone check.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// KindForFilename infers the pipeline from a file extension.
func KindForFilename(filename string) (MediaKind, bool) {
	switch {
	case moderator.IsImageFile(filename):
		return MediaKindImage, true
	case moderator.IsVideoFile(filename):
		return MediaKindVideo, true
	default:
		return "", false
	}
}

// ModerationUsecase exposes the pipelines outside of post creation and
// maintains the known-bad image index.
type ModerationUsecase struct {
	images    moderator.ImageModerator
	videos    moderator.VideoModerator
	badImages *moderator.BadImageIndex
	repo      BadImageRepo
	log       *log.Helper
}

// NewModerationUsecase creates a new ModerationUsecase.
func NewModerationUsecase(
	images moderator.ImageModerator,
	videos moderator.VideoModerator,
	badImages *moderator.BadImageIndex,
	repo BadImageRepo,
	logger log.Logger,
) *ModerationUsecase {
	return &ModerationUsecase{
		images:    images,
		videos:    videos,
		badImages: badImages,
		repo:      repo,
		log:       log.NewHelper(logger),
	}
}

// Check runs one file through the pipeline for its kind.
func (uc *ModerationUsecase) Check(ctx context.Context, kind MediaKind, item *moderator.MediaItem) (*moderator.Verdict, error) {
	switch kind {
	case MediaKindImage:
		return uc.images.CheckImage(ctx, item), nil
	case MediaKindVideo:
		return uc.videos.CheckVideo(ctx, item, 0), nil
	default:
		return nil, fmt.Errorf("unsupported media kind %q", kind)
	}
}

// RebuildBadImageIndex re-adds every stored pHash to the bloom filter.
func (uc *ModerationUsecase) RebuildBadImageIndex(ctx context.Context) (int, error) {
	start := time.Now()
	phashes, err := uc.repo.ListPHashes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list bad images: %w", err)
	}
	values := make([]uint64, len(phashes))
	for i, p := range phashes {
		values[i] = uint64(p)
	}
	added := uc.badImages.Rebuild(ctx, values)
	uc.log.Infof("bad image index rebuild took %s", time.Since(start))
	if added < len(phashes) {
		return added, fmt.Errorf("bloom rebuild incomplete: %d of %d added", added, len(phashes))
	}
	return added, nil
}

// BadImageCount returns how many known-bad images are stored.
func (uc *ModerationUsecase) BadImageCount(ctx context.Context) (int64, error) {
	return uc.repo.Count(ctx)
}
