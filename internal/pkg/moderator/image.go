package moderator

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

const maxUploadBytes = 20 << 20

var (
	imageMIMETypes = map[string][]string{
		".jpg":  {"image/jpeg", "image/jpg"},
		".jpeg": {"image/jpeg", "image/jpg"},
		".png":  {"image/png"},
	}
	videoMIMETypes = map[string][]string{
		".mp4":  {"video/mp4"},
		".avi":  {"video/avi", "video/x-msvideo"},
		".mov":  {"video/quicktime"},
		".mkv":  {"video/x-matroska"},
		".webm": {"video/webm"},
	}
)

// IsImageFile reports whether filename has an accepted image extension.
func IsImageFile(filename string) bool {
	_, ok := imageMIMETypes[(&MediaItem{Filename: filename}).Ext()]
	return ok
}

// IsVideoFile reports whether filename has an accepted video extension.
func IsVideoFile(filename string) bool {
	_, ok := videoMIMETypes[(&MediaItem{Filename: filename}).Ext()]
	return ok
}

// ImageModerator checks uploaded images.
type ImageModerator interface {
	CheckImage(ctx context.Context, item *MediaItem) *Verdict
	CheckImages(ctx context.Context, items []*MediaItem) []*Verdict
}

// ImageModeratorConfig holds configuration for image moderation.
type ImageModeratorConfig struct {
	Enabled      bool          // false approves every valid image without detection
	Workers      int           // Number of workers for parallel processing
	Threshold    float64       // Minimum unsafe label score (0-1)
	UnsafeLabels []string      // Detector labels treated as unsafe
	MaxFileSize  int64         // Bytes
	MaxDimension int           // Pixels, applies to width and height
	Timeout      time.Duration // Per image detection budget
	TempDir      string        // Staging directory, os.TempDir when empty
}

// DefaultImageModeratorConfig returns default configuration.
func DefaultImageModeratorConfig() ImageModeratorConfig {
	return ImageModeratorConfig{
		Enabled:      true,
		Workers:      1,
		Threshold:    DefaultThreshold,
		UnsafeLabels: DefaultUnsafeLabels,
		MaxFileSize:  maxUploadBytes,
		MaxDimension: 10000,
		Timeout:      5 * time.Second,
	}
}

// LocalImageModerator validates, stages and classifies images.
type LocalImageModerator struct {
	config     ImageModeratorConfig
	labels     LabelSet
	stager     *Stager
	classifier *Classifier
	badImages  *BadImageIndex
	cache      *VerdictCache
	log        *log.Helper
}

// NewLocalImageModerator creates a LocalImageModerator. A nil classifier makes
// every enabled check fail closed. badImages and cache are optional.
func NewLocalImageModerator(
	config ImageModeratorConfig,
	classifier *Classifier,
	badImages *BadImageIndex,
	cache *VerdictCache,
	logger log.Logger,
) *LocalImageModerator {
	if len(config.UnsafeLabels) == 0 {
		config.UnsafeLabels = DefaultUnsafeLabels
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	return &LocalImageModerator{
		config:     config,
		labels:     NewLabelSet(config.UnsafeLabels...),
		stager:     NewStager(config.TempDir),
		classifier: classifier,
		badImages:  badImages,
		cache:      cache,
		log:        log.NewHelper(logger),
	}
}

// CheckImage runs one image through validation and detection.
// It never returns an error: every failure is a rejecting verdict.
func (m *LocalImageModerator) CheckImage(ctx context.Context, item *MediaItem) *Verdict {
	start := time.Now()
	v := m.checkImage(ctx, item)
	observeVerdict(mediaImage, v, time.Since(start))
	return v
}

type imageMeta struct {
	img    image.Image
	width  int
	height int
	format string
}

func (m *LocalImageModerator) checkImage(ctx context.Context, item *MediaItem) *Verdict {
	meta, rejected := m.validate(item)
	if rejected != nil {
		return rejected
	}

	if !m.config.Enabled {
		m.log.Warnf("content moderation disabled, approving %q without detection", item.Filename)
		bypassedTotal.WithLabelValues(mediaImage).Inc()
		return &Verdict{
			IsSafe:  true,
			Message: "Content moderation disabled",
			Stage:   StageCompleted,
			Reason:  ReasonModerationDisabled,
			Details: Details{Decision: DecisionApproved, Width: meta.width, Height: meta.height, Format: meta.format},
		}
	}
	if m.classifier == nil {
		m.log.Error("image detector not initialized, rejecting")
		return rejectVerdict(StageModeration, ReasonDetectorUnavailable, "Content moderation not available")
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	var phash uint64
	if m.badImages != nil {
		if h, err := m.badImages.PHash(meta.img); err != nil {
			m.log.Warnf("Failed to compute pHash: %v, using direct detection", err)
		} else {
			phash = h
			if m.badImages.Contains(ctx, phash) {
				m.log.Infof("known bad image detected: pHash=%016x", phash)
				v := rejectVerdict(StageModeration, ReasonKnownBadImage, "Image contains inappropriate content")
				v.Confidence = confidenceFor(1)
				return v
			}
		}
	}

	key := contentKey(mediaImage, item)
	if cached, ok := m.cache.Get(key); ok {
		return cached
	}

	staged, err := m.stager.Stage(item, ".jpg")
	if err != nil {
		m.log.Errorf("staging %q: %v", item.Filename, err)
		return rejectVerdict(StageModeration, ReasonStagingFailed, "Content moderation failed")
	}
	defer staged.Release()

	detections, err := m.classifier.Detect(ctx, staged.Path)
	if err != nil {
		return m.detectFailure(ctx, item.Filename, err)
	}

	ev := Evaluate(detections, m.labels, m.config.Threshold)
	v := m.imageVerdict(ev, meta, len(detections))

	if !v.IsSafe && phash != 0 && len(ev.Matched) > 0 {
		top := ev.Matched[0]
		for _, d := range ev.Matched {
			if d.Score > top.Score {
				top = d
			}
		}
		if err := m.badImages.Remember(context.WithoutCancel(ctx), phash, top.Label, top.Score, item.Filename); err != nil {
			m.log.Warnf("Failed to save bad image: %v", err)
		}
	}
	m.cache.Add(key, v)
	return v
}

func (m *LocalImageModerator) detectFailure(ctx context.Context, filename string, err error) *Verdict {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		m.log.Errorf("detection timed out for %q after %s", filename, m.config.Timeout)
		return rejectVerdict(StageModeration, ReasonTimeout, "Content moderation timed out")
	}
	m.log.Errorf("detection failed for %q: %v", filename, err)
	return rejectVerdict(StageModeration, ReasonDetectorUnavailable, "Content moderation not available")
}

func (m *LocalImageModerator) imageVerdict(ev Evaluation, meta imageMeta, total int) *Verdict {
	threshold := m.config.Threshold
	v := &Verdict{
		IsSafe:     ev.IsSafe,
		Confidence: confidenceFor(ev.UnsafeScore),
		Details: Details{
			Decision:        decisionFor(ev.IsSafe),
			Width:           meta.width,
			Height:          meta.height,
			Format:          meta.format,
			TotalDetections: total,
			AllLabels:       ev.AllLabels,
			UnsafeParts:     ev.Matched,
			Threshold:       threshold,
		},
	}
	if ev.IsSafe {
		v.Stage = StageCompleted
		v.Message = "Image passed content moderation"
		return v
	}
	v.Stage = StageModeration
	v.Reason = ReasonUnsafeContent
	v.Message = fmt.Sprintf("Image contains inappropriate content (max unsafe score %.2f >= threshold %.2f)", ev.UnsafeScore, threshold)
	return v
}

// validate performs the structural checks in order and decodes the image.
func (m *LocalImageModerator) validate(item *MediaItem) (imageMeta, *Verdict) {
	var meta imageMeta
	if v := validateFile(item, imageMIMETypes, m.config.MaxFileSize, "JPG and PNG"); v != nil {
		return meta, v
	}

	if err := item.Rewind(); err != nil {
		return meta, rejectVerdict(StageValidation, ReasonInvalidImage, "Invalid image: unreadable upload")
	}
	cfg, format, err := image.DecodeConfig(item.Content)
	if err != nil {
		return meta, rejectVerdict(StageValidation, ReasonInvalidImage, "Invalid image: "+err.Error())
	}
	if cfg.Width > m.config.MaxDimension || cfg.Height > m.config.MaxDimension {
		return meta, rejectVerdict(StageValidation, ReasonImageTooLarge,
			fmt.Sprintf("Image too large: %dx%d (max %dx%d)", cfg.Width, cfg.Height, m.config.MaxDimension, m.config.MaxDimension))
	}

	if err := item.Rewind(); err != nil {
		return meta, rejectVerdict(StageValidation, ReasonInvalidImage, "Invalid image: unreadable upload")
	}
	img, _, err := image.Decode(item.Content)
	item.Rewind()
	if err != nil {
		return meta, rejectVerdict(StageValidation, ReasonInvalidImage, "Invalid image: "+err.Error())
	}
	meta = imageMeta{img: img, width: cfg.Width, height: cfg.Height, format: format}
	return meta, nil
}

// validateFile checks extension, declared MIME type and byte size.
func validateFile(item *MediaItem, allowed map[string][]string, maxSize int64, kinds string) *Verdict {
	ext := item.Ext()
	mimes, ok := allowed[ext]
	if !ok {
		shown := ext
		if shown == "" {
			shown = "none"
		}
		return rejectVerdict(StageValidation, ReasonInvalidFormat,
			fmt.Sprintf("Invalid file format: %s. Only %s allowed.", shown, kinds))
	}

	if item.ContentType != "" {
		mt, _, err := mime.ParseMediaType(item.ContentType)
		if err != nil || !containsFold(mimes, mt) {
			return rejectVerdict(StageValidation, ReasonInvalidContentType,
				fmt.Sprintf("Invalid content type: %s", item.ContentType))
		}
	}

	size, err := item.ByteSize()
	if err != nil {
		return rejectVerdict(StageValidation, ReasonInvalidFormat, "Invalid file: unreadable upload")
	}
	if size == 0 {
		return rejectVerdict(StageValidation, ReasonInvalidFormat, "Invalid file: empty upload")
	}
	if maxSize > 0 && size > maxSize {
		return rejectVerdict(StageValidation, ReasonFileTooLarge,
			fmt.Sprintf("File too large: %.2fMB (max %dMB)", float64(size)/(1<<20), maxSize>>20))
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// CheckImages checks every item with a bounded worker pool. Results are index
// aligned with items and never nil.
func (m *LocalImageModerator) CheckImages(ctx context.Context, items []*MediaItem) []*Verdict {
	workerCount := m.config.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	workerCount = min(workerCount, len(items))
	type job struct {
		index int
		item  *MediaItem
	}
	jobs := make(chan job)
	results := make([]*Verdict, len(items))
	var wg sync.WaitGroup
	worker := func() {
		defer wg.Done()
		for j := range jobs {
			results[j.index] = m.CheckImage(ctx, j.item)
		}
	}
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go worker()
	}
	for i, item := range items {
		jobs <- job{index: i, item: item}
	}
	close(jobs)
	wg.Wait()
	return results
}
