package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap is the root of configs/config.yaml.
type Bootstrap struct {
	Server     *Server     `json:"server"`
	Data       *Data       `json:"data"`
	Moderation *Moderation `json:"moderation"`
	Storage    *Storage    `json:"storage"`
	Queue      *Queue      `json:"queue"`
	Auth       *Auth       `json:"auth"`
}

type Server struct {
	HTTP *HTTP `json:"http"`
}

type HTTP struct {
	Network string   `json:"network"`
	Addr    string   `json:"addr"`
	Timeout Duration `json:"timeout"`
}

type Data struct {
	Database *Database `json:"database"`
	Redis    *Redis    `json:"redis"`
}

type Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	AutoMigrate bool   `json:"auto_migrate"`
	Pool        Pool   `json:"pool"`
}

// Pool lifetimes are in minutes.
type Pool struct {
	MaxOpenConns    int32 `json:"max_open_conns"`
	MinIdleConns    int32 `json:"min_idle_conns"`
	MaxConnLifetime int64 `json:"max_conn_lifetime"`
	MaxConnIdleTime int64 `json:"max_conn_idle_time"`
}

type Redis struct {
	Network      string   `json:"network"`
	Addr         string   `json:"addr"`
	Password     string   `json:"password"`
	DB           int      `json:"db"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
}

// Moderation configures the image and video pipelines.
type Moderation struct {
	Enabled       *bool    `json:"enabled"`
	OnUnavailable string   `json:"on_unavailable"` // reject or disable, when the detector is down at startup
	Threshold     float64  `json:"threshold"`
	UnsafeLabels  []string `json:"unsafe_labels"`
	Workers       int      `json:"workers"`
	MaxUploadMB   int      `json:"max_upload_mb"`
	MaxImages     int      `json:"max_images"`
	MaxDimension  int      `json:"max_dimension"`
	ImageTimeout  Duration `json:"image_timeout"`
	VideoTimeout  Duration `json:"video_timeout"`
	FrameInterval Duration `json:"frame_interval"`
	MaxFrames     int      `json:"max_frames"`
	MinFrames     int      `json:"min_frames"`
	TempDir       string   `json:"temp_dir"`

	Detector *Detector `json:"detector"`
	Video    *Video    `json:"video"`
	Cache    *Cache    `json:"cache"`
	Bloom    *Bloom    `json:"bloom"`
}

// IsEnabled reports whether moderation runs. Unset means enabled.
func (m *Moderation) IsEnabled() bool {
	return m == nil || m.Enabled == nil || *m.Enabled
}

type Detector struct {
	Transport string   `json:"transport"` // grpc or http
	Addr      string   `json:"addr"`
	Timeout   Duration `json:"timeout"`
}

type Video struct {
	FFprobe string `json:"ffprobe"`
	FFmpeg  string `json:"ffmpeg"`
}

type Cache struct {
	Size int      `json:"size"`
	TTL  Duration `json:"ttl"`
}

type Bloom struct {
	Key       string `json:"key"`
	Bits      uint   `json:"bits"`
	HashFuncs uint   `json:"hash_funcs"`
}

type Storage struct {
	Endpoint  string   `json:"endpoint"`
	AccessKey string   `json:"access_key"`
	SecretKey string   `json:"secret_key"`
	Region    string   `json:"region"`
	Bucket    string   `json:"bucket"`
	UseSSL    bool     `json:"use_ssl"`
	URLTTL    Duration `json:"url_ttl"`
}

type Queue struct {
	Concurrency int      `json:"concurrency"`
	MaxRetry    int      `json:"max_retry"`
	Timeout     Duration `json:"timeout"`
}

type Auth struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
}

// Duration accepts "5s" style strings or a number of seconds.
type Duration time.Duration

// AsDuration returns d as a time.Duration.
func (d Duration) AsDuration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(val * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("conf: invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("conf: invalid duration %v", v)
	}
	return nil
}
