package data

import (
	"context"
	"strings"

	"postguard/internal/biz"
	"postguard/internal/conf"
	"postguard/internal/pkg/bloom"
	"postguard/internal/pkg/moderator"
	"postguard/internal/pkg/nsfw"
	pkgredis "postguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	transportHTTP = "http"

	onUnavailableDisable = "disable"
)

// detectorClient is satisfied by both the gRPC and the HTTP detector clients.
type detectorClient interface {
	DetectFile(ctx context.Context, path string) (*nsfw.DetectResponse, error)
	Ping(ctx context.Context) error
}

// nsfwDetector adapts a detector client to moderator.Detector.
type nsfwDetector struct {
	client detectorClient
}

func (d *nsfwDetector) Detect(ctx context.Context, imagePath string) ([]moderator.Detection, error) {
	resp, err := d.client.DetectFile(ctx, imagePath)
	if err != nil {
		return nil, err
	}
	return toDetections(resp), nil
}

func toDetections(resp *nsfw.DetectResponse) []moderator.Detection {
	if resp == nil {
		return nil
	}
	out := make([]moderator.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		det := moderator.Detection{Label: d.Name(), Score: d.Score}
		if len(d.Box) >= 4 {
			det.Box = &moderator.Box{
				X:      int(d.Box[0]),
				Y:      int(d.Box[1]),
				Width:  int(d.Box[2]),
				Height: int(d.Box[3]),
			}
		}
		out = append(out, det)
	}
	return out
}

// NewClassifier connects to the body-part detector.
//
// When the detector does not answer at startup and on_unavailable is
// "disable", moderation is switched off for this process by clearing
// mc.Enabled, which the pipelines built afterwards read. Otherwise the
// classifier is kept and every check fails closed until the detector is back.
func NewClassifier(mc *conf.Moderation, logger log.Logger) (*moderator.Classifier, func(), error) {
	helper := log.NewHelper(logger)
	if !mc.IsEnabled() {
		helper.Warn("content moderation disabled, skipping detector client")
		return nil, func() {}, nil
	}

	cfg := nsfw.DefaultConfig(mc.Detector.Addr)
	if mc.Detector.Timeout > 0 {
		cfg.Timeout = mc.Detector.Timeout.AsDuration()
	}

	var (
		client  detectorClient
		cleanup = func() {}
	)
	if strings.EqualFold(mc.Detector.Transport, transportHTTP) {
		client = nsfw.NewClient(cfg)
	} else {
		grpcClient, err := nsfw.NewImageClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		client = grpcClient
		cleanup = func() {
			helper.Info("closing detector gRPC connection")
			grpcClient.Close()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		if mc.OnUnavailable == onUnavailableDisable {
			helper.Warnf("detector at %s unavailable, content moderation disabled: %v", cfg.Address, err)
			disabled := false
			mc.Enabled = &disabled
			cleanup()
			return nil, func() {}, nil
		}
		helper.Errorf("detector at %s unavailable, uploads will be rejected until it recovers: %v", cfg.Address, err)
	} else {
		helper.Infof("detector connected at %s via %s", cfg.Address, strings.ToLower(mc.Detector.Transport))
	}

	return moderator.NewClassifier(&nsfwDetector{client: client}), cleanup, nil
}

// NewBloomFilter creates the Redis-backed Bloom filter of bad image pHashes.
func NewBloomFilter(store pkgredis.Cache, mc *conf.Moderation) *bloom.Filter {
	b := mc.Bloom
	return bloom.NewBloomFilter(store, b.Key, b.Bits, b.HashFuncs)
}

// badImageChecker adapts BadImageRepo to moderator.BadImageChecker.
type badImageChecker struct {
	repo biz.BadImageRepo
}

func (a *badImageChecker) FindByPHash(ctx context.Context, phash int64) (bool, error) {
	img, err := a.repo.FindByPHash(ctx, phash)
	if err != nil {
		return false, err
	}
	return img != nil, nil
}

func (a *badImageChecker) SaveBadImage(ctx context.Context, phash int64, label string, score float64, filename string) error {
	return a.repo.Save(ctx, &biz.BadImage{
		PHash:    phash,
		Label:    label,
		Score:    score,
		Filename: filename,
		AddedBy:  "auto",
	})
}

// NewBadImageIndex creates the known-bad image index.
func NewBadImageIndex(filter *bloom.Filter, repo biz.BadImageRepo, logger log.Logger) *moderator.BadImageIndex {
	return moderator.NewBadImageIndex(filter, &badImageChecker{repo: repo}, logger)
}

// NewVerdictCache returns nil when caching is turned off.
func NewVerdictCache(mc *conf.Moderation) *moderator.VerdictCache {
	if mc.Cache == nil || mc.Cache.Size <= 0 {
		return nil
	}
	return moderator.NewVerdictCache(mc.Cache.Size, mc.Cache.TTL.AsDuration())
}

// NewImageModerator creates a new LocalImageModerator.
func NewImageModerator(
	mc *conf.Moderation,
	classifier *moderator.Classifier,
	badImages *moderator.BadImageIndex,
	cache *moderator.VerdictCache,
	logger log.Logger,
) *moderator.LocalImageModerator {
	config := moderator.DefaultImageModeratorConfig()
	config.Enabled = mc.IsEnabled()
	config.TempDir = mc.TempDir
	if mc.Workers > 0 {
		config.Workers = mc.Workers
	}
	if mc.Threshold > 0 {
		config.Threshold = mc.Threshold
	}
	if len(mc.UnsafeLabels) > 0 {
		config.UnsafeLabels = mc.UnsafeLabels
	}
	if mc.MaxUploadMB > 0 {
		config.MaxFileSize = megabytes(mc.MaxUploadMB)
	}
	if mc.MaxDimension > 0 {
		config.MaxDimension = mc.MaxDimension
	}
	if mc.ImageTimeout > 0 {
		config.Timeout = mc.ImageTimeout.AsDuration()
	}
	return moderator.NewLocalImageModerator(config, classifier, badImages, cache, logger)
}

// NewVideoModerator creates a new LocalVideoModerator backed by ffprobe/ffmpeg.
func NewVideoModerator(mc *conf.Moderation, classifier *moderator.Classifier, logger log.Logger) *moderator.LocalVideoModerator {
	config := moderator.DefaultVideoModeratorConfig()
	config.Enabled = mc.IsEnabled()
	config.TempDir = mc.TempDir
	if mc.Threshold > 0 {
		config.Threshold = mc.Threshold
	}
	if len(mc.UnsafeLabels) > 0 {
		config.UnsafeLabels = mc.UnsafeLabels
	}
	if mc.MaxUploadMB > 0 {
		config.MaxFileSize = megabytes(mc.MaxUploadMB)
	}
	if mc.FrameInterval > 0 {
		config.FrameInterval = mc.FrameInterval.AsDuration()
	}
	if mc.MaxFrames > 0 {
		config.MaxFrames = mc.MaxFrames
	}
	if mc.MinFrames > 0 {
		config.MinFrames = mc.MinFrames
	}
	if mc.VideoTimeout > 0 {
		config.Timeout = mc.VideoTimeout.AsDuration()
	}

	var ffprobe, ffmpeg string
	if mc.Video != nil {
		ffprobe, ffmpeg = mc.Video.FFprobe, mc.Video.FFmpeg
	}
	decoder := moderator.NewFFmpegDecoder(ffprobe, ffmpeg)
	return moderator.NewLocalVideoModerator(config, decoder, classifier, logger)
}

func megabytes(mb int) int64 {
	return int64(mb) << 20
}
