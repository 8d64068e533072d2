package moderator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memBloom struct {
	mu   sync.Mutex
	set  map[string]bool
	fail bool
}

func (b *memBloom) AddWithCtx(_ context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.set == nil {
		b.set = map[string]bool{}
	}
	b.set[string(data)] = true
	return nil
}

func (b *memBloom) ExistsWithCtx(_ context.Context, data []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return false, errors.New("redis down")
	}
	return b.set[string(data)], nil
}

type memChecker struct {
	mu    sync.Mutex
	saved map[int64]string
}

func (c *memChecker) FindByPHash(_ context.Context, phash int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.saved[phash]
	return ok, nil
}

func (c *memChecker) SaveBadImage(_ context.Context, phash int64, label string, _ float64, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		c.saved = map[int64]string{}
	}
	c.saved[phash] = label
	return nil
}

func TestBadImageIndex_RejectsReupload(t *testing.T) {
	bloom := &memBloom{}
	checker := &memChecker{}
	det := &fakeDetector{fn: func(string) ([]Detection, error) {
		return []Detection{{Label: "EXPOSED_GENITALIA_M", Score: 0.93}}, nil
	}}
	cfg := DefaultImageModeratorConfig()
	cfg.TempDir = t.TempDir()
	m := NewLocalImageModerator(cfg, NewClassifier(det), NewBadImageIndex(bloom, checker, testLogger), nil, testLogger)

	data := pngBytes(t, 64, 64)
	first := m.CheckImage(context.Background(), newItem("a.png", "image/png", data))
	if first.IsSafe || first.Reason != ReasonUnsafeContent {
		t.Fatalf("Expected unsafe verdict, got %+v", first)
	}
	if len(checker.saved) != 1 {
		t.Fatalf("Expected bad image to be saved, got %d", len(checker.saved))
	}
	for _, label := range checker.saved {
		if label != "EXPOSED_GENITALIA_M" {
			t.Errorf("Unexpected saved label %s", label)
		}
	}

	second := m.CheckImage(context.Background(), newItem("b.png", "image/png", data))
	if second.IsSafe || second.Reason != ReasonKnownBadImage {
		t.Errorf("Expected known bad rejection, got %+v", second)
	}
	if det.Calls() != 1 {
		t.Errorf("Expected detector to run once, got %d", det.Calls())
	}
}

func TestBadImageIndex_BloomErrorFallsThrough(t *testing.T) {
	idx := NewBadImageIndex(&memBloom{fail: true}, &memChecker{}, testLogger)
	if idx.Contains(context.Background(), 42) {
		t.Error("Expected miss on bloom error")
	}
}

func TestBadImageIndex_BloomHitNotConfirmed(t *testing.T) {
	bloom := &memBloom{}
	bloom.AddWithCtx(context.Background(), phashToBytes(7))
	idx := NewBadImageIndex(bloom, &memChecker{}, testLogger)
	if idx.Contains(context.Background(), 7) {
		t.Error("Expected bloom false positive to be filtered by DB")
	}
}

func TestBadImageIndex_Rebuild(t *testing.T) {
	bloom := &memBloom{}
	idx := NewBadImageIndex(bloom, &memChecker{}, testLogger)
	if n := idx.Rebuild(context.Background(), []uint64{1, 2, 3}); n != 3 {
		t.Errorf("Expected 3 added, got %d", n)
	}
	if ok, _ := bloom.ExistsWithCtx(context.Background(), phashToBytes(2)); !ok {
		t.Error("Expected pHash 2 in bloom")
	}
}

func TestVerdictCache_Disabled(t *testing.T) {
	c := NewVerdictCache(0, time.Minute)
	c.Add("k", &Verdict{})
	if _, ok := c.Get("k"); ok {
		t.Error("Expected disabled cache to miss")
	}
}

func TestVerdictCache_OnlyRejections(t *testing.T) {
	c := NewVerdictCache(8, time.Minute)
	c.Add("safe", &Verdict{IsSafe: true, Stage: StageCompleted})
	c.Add("down", rejectVerdict(StageModeration, ReasonDetectorUnavailable, "Content moderation not available"))
	c.Add("unsafe", &Verdict{Stage: StageModeration, Reason: ReasonUnsafeContent})

	if _, ok := c.Get("safe"); ok {
		t.Error("Expected approvals not to be cached")
	}
	if _, ok := c.Get("down"); ok {
		t.Error("Expected detector failures not to be cached")
	}
	if v, ok := c.Get("unsafe"); !ok || v.IsSafe {
		t.Error("Expected unsafe_content rejection to be cached")
	}
}
