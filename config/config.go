package config

import (
	"database/sql"
	"errors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	App      App           `yaml:"app"`
	Server   Server        `yaml:"server"`
	Database Database      `yaml:"database"`
	DB       *sql.DB       `yaml:"db"`
	Queue    *RabbitMQ     `yaml:"rabbitmq"`
	MinIO    MinIO         `yaml:"minio"`
	Storage  *minio.Client `yaml:"storage"`
	Upload   Upload        `yaml:"upload"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort string `yaml:"port"`
	Workers  int    `yaml:"workers"`
}

type Database struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RabbitMQ struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	User   string `json:"user"`
	Pass   string `json:"pass"`
	Queues Queues `json:"queues"`
}

// Queues are the logical channels of the onboarding flow.
type Queues struct {
	UploadNotifications    string `json:"upload_notifications"`
	UploadRetry            string `json:"upload_retry"`
	UploadDLQ              string `json:"upload_dlq"`
	BeginUnboxing          string `json:"begin_unboxing"`
	UnboxingCompleted      string `json:"unboxing_completed"`
	UnboxingCompletedRetry string `json:"unboxing_completed_retry"`
	UnboxingCompletedDLQ   string `json:"unboxing_completed_dlq"`
}

type MinIO struct {
	URL             string `yaml:"url"`
	AccessID        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Secure          bool   `yaml:"secure"`
}

// Upload configures presigned upload links. The bucket is fixed to
// constant.RawBucket so upload targets and unboxing sources always agree.
type Upload struct {
	URLValidity time.Duration `yaml:"url_validity"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "develop")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 4)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)
	v.SetDefault("rabbitmq_port", 5672)
	v.SetDefault("messaging.queues.upload_notifications", "upload-notifications")
	v.SetDefault("messaging.queues.upload_retry", "upload-retry")
	v.SetDefault("messaging.queues.upload_dlq", "upload-dlq")
	v.SetDefault("messaging.queues.begin_unboxing", "begin-unboxing")
	v.SetDefault("messaging.queues.unboxing_completed", "unboxing-completed")
	v.SetDefault("messaging.queues.unboxing_completed_retry", "unboxing-completed-retry")
	v.SetDefault("messaging.queues.unboxing_completed_dlq", "unboxing-completed-dlq")
	v.SetDefault("upload.url_validity", 30*time.Minute)
}

// Load reads config.yaml from path. Every key can be overridden from the
// environment with dots replaced by underscores, e.g. DATABASE_DSN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	database := Database{
		DSN:             v.GetString("database.dsn"),
		MaxOpenConns:    v.GetInt("database.max_open_conns"),
		MaxIdleConns:    v.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		AutoMigrate:     v.GetBool("database.auto_migrate"),
	}
	if database.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}

	db, err := sql.Open("postgres", database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(database.MaxOpenConns)
	db.SetMaxIdleConns(database.MaxIdleConns)
	db.SetConnMaxLifetime(database.ConnMaxLifetime)

	rabbitmq := &RabbitMQ{
		Host: v.GetString("rabbitmq_host"),
		Port: v.GetInt("rabbitmq_port"),
		User: v.GetString("rabbitmq_user"),
		Pass: v.GetString("rabbitmq_pass"),
		Queues: Queues{
			UploadNotifications:    v.GetString("messaging.queues.upload_notifications"),
			UploadRetry:            v.GetString("messaging.queues.upload_retry"),
			UploadDLQ:              v.GetString("messaging.queues.upload_dlq"),
			BeginUnboxing:          v.GetString("messaging.queues.begin_unboxing"),
			UnboxingCompleted:      v.GetString("messaging.queues.unboxing_completed"),
			UnboxingCompletedRetry: v.GetString("messaging.queues.unboxing_completed_retry"),
			UnboxingCompletedDLQ:   v.GetString("messaging.queues.unboxing_completed_dlq"),
		},
	}

	minioCfg := MinIO{
		URL:             v.GetString("minio.url"),
		AccessID:        v.GetString("minio.access_id"),
		SecretAccessKey: v.GetString("minio.secret_access_key"),
		Secure:          v.GetBool("minio.secure"),
	}
	minioClient, err := minio.New(minioCfg.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(minioCfg.AccessID, minioCfg.SecretAccessKey, ""),
		Secure: minioCfg.Secure,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Workers:  v.GetInt("server.workers"),
		},
		Database: database,
		DB:       db,
		Queue:    rabbitmq,
		MinIO:    minioCfg,
		Storage:  minioClient,
		Upload: Upload{
			URLValidity: v.GetDuration("upload.url_validity"),
		},
	}, nil
}
