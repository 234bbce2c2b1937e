package config

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/viper"
	"recording-pipeline/constant"
	"recording-pipeline/pkg/blobstore"
)

type Config struct {
	App     App             `yaml:"app"`
	DB      *sql.DB         `yaml:"db"`
	Queue   *RabbitMQ       `yaml:"rabbitmq"`
	Jobs    Jobs            `yaml:"jobs"`
	Redis   Redis           `yaml:"redis"`
	Storage blobstore.Store `yaml:"storage"`
	Bucket  string          `yaml:"bucket"`
	Server  Server          `yaml:"server"`
	Upload  Upload          `yaml:"upload"`
	Encoder Encoder         `yaml:"encoder"`
	ASR     ASR             `yaml:"asr"`
	Archive Archive         `yaml:"archive"`
	Log     Log             `yaml:"log"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
	Name        string `yaml:"name"`
}

type Server struct {
	HttpPort   string        `yaml:"http_port"`
	Workers    int           `yaml:"workers"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Jobs struct {
	Driver             constant.QueueDriver `yaml:"driver"`
	TranscodeMaxTries  uint                 `yaml:"transcode_max_tries"`
	TranscribeMaxTries uint                 `yaml:"transcribe_max_tries"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Upload struct {
	TempDir         string               `yaml:"temp_dir"`
	ChunkSizeLimit  int64                `yaml:"chunk_size_limit"`
	MaxVideoSize    int64                `yaml:"max_video_size"`
	LockWait        time.Duration        `yaml:"lock_wait"`
	LockBackend     constant.LockBackend `yaml:"lock_backend"`
	SizeTolerance   float64              `yaml:"size_tolerance"`
	StrictSizeCheck bool                 `yaml:"strict_size_check"`
}

type Encoder struct {
	Binary   string        `yaml:"binary"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts uint          `yaml:"attempts"`
}

type ASR struct {
	BaseURL        string        `yaml:"base_url"`
	Language       string        `yaml:"language"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Archive struct {
	SegmentSeconds int    `yaml:"segment_seconds"`
	MaxPartSize    string `yaml:"max_part_size"`
	Title          string `yaml:"title"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("app.name", "recording-pipeline")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.presign_ttl", 60*time.Minute)

	v.SetDefault("jobs.driver", string(constant.QueueDriverRabbitMQ))
	v.SetDefault("jobs.transcode_max_tries", 3)
	v.SetDefault("jobs.transcribe_max_tries", 1)
	v.SetDefault("rabbitmq_kind", "direct")
	v.SetDefault("rabbitmq_exchange", "recordings")
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("storage.driver", string(constant.StorageDriverMinIO))
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("upload.temp_dir", "temp")
	v.SetDefault("upload.chunk_size_limit", 50*1024*1024)
	v.SetDefault("upload.max_video_size", 2*1024*1024*1024)
	v.SetDefault("upload.lock_wait", 5*time.Second)
	v.SetDefault("upload.lock_backend", string(constant.LockBackendFile))
	v.SetDefault("upload.size_tolerance", 0.01)
	v.SetDefault("upload.strict_size_check", true)

	v.SetDefault("encoder.binary", "ffmpeg")
	v.SetDefault("encoder.timeout", 20*time.Minute)
	v.SetDefault("encoder.attempts", 2)

	v.SetDefault("asr.language", "pt")
	v.SetDefault("asr.connect_timeout", 30*time.Second)
	v.SetDefault("asr.request_timeout", 5*time.Minute)

	v.SetDefault("archive.segment_seconds", 60)
	v.SetDefault("archive.max_part_size", "15M")
	v.SetDefault("archive.title", "SISTEMA VERBO - Arquivo de Verificação de Integridade")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", v.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host: v.GetString("rabbitmq_host"),
		Port: v.GetInt("rabbitmq_port"),
		User: v.GetString("rabbitmq_user"),
		Pass: v.GetString("rabbitmq_pass"),
		Kind: v.GetString("rabbitmq_kind"),

		ExchangeName: v.GetString("rabbitmq_exchange"),
	}

	bucket := v.GetString("storage.bucket")
	store, err := blobstore.New(context.Background(), blobstore.Options{
		Driver:    constant.StorageDriver(v.GetString("storage.driver")),
		Endpoint:  v.GetString("storage.url"),
		AccessKey: v.GetString("storage.access_id"),
		SecretKey: v.GetString("storage.secret_access_key"),
		Bucket:    bucket,
		Region:    v.GetString("storage.region"),
		Secure:    v.GetBool("storage.secure"),
		Root:      v.GetString("storage.root"),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
			Name:        v.GetString("app.name"),
		},
		Server: Server{
			HttpPort:   v.GetString("server.port"),
			Workers:    v.GetInt("server.workers"),
			PresignTTL: v.GetDuration("server.presign_ttl"),
		},
		Jobs: Jobs{
			Driver:             constant.QueueDriver(v.GetString("jobs.driver")),
			TranscodeMaxTries:  v.GetUint("jobs.transcode_max_tries"),
			TranscribeMaxTries: v.GetUint("jobs.transcribe_max_tries"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Upload: Upload{
			TempDir:         v.GetString("upload.temp_dir"),
			ChunkSizeLimit:  v.GetInt64("upload.chunk_size_limit"),
			MaxVideoSize:    v.GetInt64("upload.max_video_size"),
			LockWait:        v.GetDuration("upload.lock_wait"),
			LockBackend:     constant.LockBackend(v.GetString("upload.lock_backend")),
			SizeTolerance:   v.GetFloat64("upload.size_tolerance"),
			StrictSizeCheck: v.GetBool("upload.strict_size_check"),
		},
		Encoder: Encoder{
			Binary:   v.GetString("encoder.binary"),
			Timeout:  v.GetDuration("encoder.timeout"),
			Attempts: v.GetUint("encoder.attempts"),
		},
		ASR: ASR{
			BaseURL:        v.GetString("asr.base_url"),
			Language:       v.GetString("asr.language"),
			ConnectTimeout: v.GetDuration("asr.connect_timeout"),
			RequestTimeout: v.GetDuration("asr.request_timeout"),
		},
		Archive: Archive{
			SegmentSeconds: v.GetInt("archive.segment_seconds"),
			MaxPartSize:    v.GetString("archive.max_part_size"),
			Title:          v.GetString("archive.title"),
		},
		Log: Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Bucket:  bucket,
		DB:      db,
		Queue:   rabbitmq,
		Storage: store,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Upload.ChunkSizeLimit <= 0 || c.Upload.MaxVideoSize <= 0 {
		return fmt.Errorf("upload limits must be positive")
	}
	if c.Upload.ChunkSizeLimit > c.Upload.MaxVideoSize {
		return fmt.Errorf("upload.chunk_size_limit exceeds upload.max_video_size")
	}
	if c.Upload.SizeTolerance < 0 || c.Upload.SizeTolerance >= 1 {
		return fmt.Errorf("upload.size_tolerance must be in [0, 1)")
	}
	switch c.Jobs.Driver {
	case constant.QueueDriverRabbitMQ, constant.QueueDriverAsynq:
	default:
		return fmt.Errorf("unknown jobs.driver %q", c.Jobs.Driver)
	}
	switch c.Upload.LockBackend {
	case constant.LockBackendFile, constant.LockBackendRedis:
	default:
		return fmt.Errorf("unknown upload.lock_backend %q", c.Upload.LockBackend)
	}
	if c.Encoder.Timeout <= 0 {
		return fmt.Errorf("encoder.timeout must be positive")
	}
	return nil
}
