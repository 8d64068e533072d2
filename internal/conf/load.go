package conf

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
)

// EnvModerationEnabled overrides moderation.enabled when set.
const EnvModerationEnabled = "CONTENT_MODERATION_ENABLED"

// Load reads the YAML file at path. Values may reference environment
// variables as ${NAME:default}.
func Load(path string, logger log.Logger) (*Bootstrap, error) {
	c := config.New(
		config.WithSource(
			env.NewSource(),
			file.NewSource(path),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		return nil, fmt.Errorf("conf: load %s: %w", path, err)
	}
	var bc Bootstrap
	if err := c.Scan(&bc); err != nil {
		return nil, fmt.Errorf("conf: scan %s: %w", path, err)
	}
	bc.ApplyDefaults()
	if err := bc.applyEnv(logger); err != nil {
		return nil, err
	}
	return &bc, nil
}

func (bc *Bootstrap) applyEnv(logger log.Logger) error {
	raw, ok := os.LookupEnv(EnvModerationEnabled)
	if !ok || raw == "" {
		return nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("conf: %s=%q: %w", EnvModerationEnabled, raw, err)
	}
	bc.Moderation.Enabled = &enabled
	if !enabled {
		log.NewHelper(logger).Warnf("content moderation DISABLED by %s; every upload will be approved without checks", EnvModerationEnabled)
	}
	return nil
}

// ApplyDefaults fills missing sections. Moderation tunables left at zero keep
// the pipeline defaults.
func (bc *Bootstrap) ApplyDefaults() {
	if bc.Server == nil {
		bc.Server = &Server{}
	}
	if bc.Server.HTTP == nil {
		bc.Server.HTTP = &HTTP{}
	}
	if bc.Server.HTTP.Addr == "" {
		bc.Server.HTTP.Addr = "0.0.0.0:8000"
	}
	if bc.Server.HTTP.Timeout == 0 {
		bc.Server.HTTP.Timeout = Duration(90 * time.Second)
	}

	if bc.Data == nil {
		bc.Data = &Data{}
	}
	if bc.Data.Database == nil {
		bc.Data.Database = &Database{}
	}
	if bc.Data.Database.Driver == "" {
		bc.Data.Database.Driver = "postgres"
	}
	if bc.Data.Redis == nil {
		bc.Data.Redis = &Redis{}
	}
	if bc.Data.Redis.Addr == "" {
		bc.Data.Redis.Addr = "127.0.0.1:6379"
	}

	if bc.Moderation == nil {
		bc.Moderation = &Moderation{}
	}
	m := bc.Moderation
	if m.OnUnavailable == "" {
		m.OnUnavailable = "reject"
	}
	if m.MaxImages == 0 {
		m.MaxImages = 5
	}
	if m.Detector == nil {
		m.Detector = &Detector{}
	}
	if m.Detector.Transport == "" {
		m.Detector.Transport = "grpc"
	}
	if m.Video == nil {
		m.Video = &Video{}
	}
	if m.Cache == nil {
		m.Cache = &Cache{}
	}
	if m.Bloom == nil {
		m.Bloom = &Bloom{}
	}
	if m.Bloom.Key == "" {
		m.Bloom.Key = "postguard:bad_images:bloom"
	}
	if m.Bloom.Bits == 0 {
		m.Bloom.Bits = 1 << 24
	}
	if m.Bloom.HashFuncs == 0 {
		m.Bloom.HashFuncs = 7
	}

	if bc.Storage == nil {
		bc.Storage = &Storage{}
	}
	if bc.Storage.Bucket == "" {
		bc.Storage.Bucket = "postguard-media"
	}
	if bc.Storage.URLTTL == 0 {
		bc.Storage.URLTTL = Duration(time.Hour)
	}

	if bc.Queue == nil {
		bc.Queue = &Queue{}
	}
	if bc.Queue.Concurrency == 0 {
		bc.Queue.Concurrency = 10
	}
	if bc.Queue.MaxRetry == 0 {
		bc.Queue.MaxRetry = 3
	}
	if bc.Queue.Timeout == 0 {
		bc.Queue.Timeout = Duration(30 * time.Second)
	}

	if bc.Auth == nil {
		bc.Auth = &Auth{}
	}
}
