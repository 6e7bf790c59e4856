// Package service wires the database, the file store, the gateway, the query client and the
// HTTP API into a runnable backend.
package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/api"
	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/query"
	"github.com/emprius/emprius-social-backend/storage"
)

// Storage backends.
const (
	StorageMongo = "mongo"
	StorageS3    = "s3"
)

// Config holds the settings of the service.
type Config struct {
	Debug  bool
	Host   string
	Port   int
	Secret string

	MongoURI      string
	MongoDatabase string

	// PublicURL is the base URL clients reach the API at, used in preview and avatar URLs.
	PublicURL string
	Storage   string
	S3Bucket  string
	S3Region  string

	FeedTimeout        time.Duration
	CacheSize          int64
	SessionTTL         time.Duration
	MutationsPerMinute int
	Metrics            bool
}

// Service is the main service struct for the API backend.
type Service struct {
	Database *db.Database
	Files    storage.Store
	Gateway  *gateway.Gateway
	Query    *query.Client
	API      *api.API
	conf     Config
}

// SetupLogging sets the global logger. The level is debug if debug is true, info otherwise.
func SetupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).With().Caller().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// New creates a new API service. It connects to the database, creates the indexes and runs
// the migrations, and selects the file store.
// The service must be started with Service.Start() and closed with Service.Close().
func New(ctx context.Context, conf Config) (*Service, error) {
	log.Info().Msg("starting social backend")
	if conf.PublicURL == "" {
		conf.PublicURL = fmt.Sprintf("http://localhost:%d", conf.Port)
		log.Warn().Msgf("no public URL provided, using %s", conf.PublicURL)
	}
	conf.PublicURL = strings.TrimSuffix(conf.PublicURL, "/")

	log.Info().Msgf("connecting to database at %s", conf.MongoURI)
	database, err := db.New(conf.MongoURI, conf.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the database: %w", err)
	}
	if err := database.CreateTables(); err != nil {
		closeDatabase(database)
		return nil, fmt.Errorf("failed to initialize the database: %w", err)
	}

	files, err := newStore(ctx, conf, database)
	if err != nil {
		closeDatabase(database)
		return nil, err
	}

	gw := gateway.NewFromDatabase(database, gateway.Options{
		Files:        files,
		PublicURL:    conf.PublicURL,
		SessionTTL:   conf.SessionTTL,
		LocationSalt: conf.Secret,
	})
	client, err := query.NewClient(query.Options{
		Gateway:     gw,
		CacheSize:   conf.CacheSize,
		FeedTimeout: conf.FeedTimeout,
	})
	if err != nil {
		closeDatabase(database)
		return nil, err
	}
	a, err := api.New(&api.APIConfig{
		Query:              client,
		JwtSecret:          conf.Secret,
		MutationsPerMinute: conf.MutationsPerMinute,
		Metrics:            conf.Metrics,
	})
	if err != nil {
		client.Close()
		closeDatabase(database)
		return nil, err
	}
	return &Service{
		Database: database,
		Files:    files,
		Gateway:  gw,
		Query:    client,
		API:      a,
		conf:     conf,
	}, nil
}

func newStore(ctx context.Context, conf Config, database *db.Database) (storage.Store, error) {
	switch conf.Storage {
	case "", StorageMongo:
		log.Info().Msg("storing files in the database")
		return storage.NewMongoStore(database.FileService), nil
	case StorageS3:
		if conf.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage needs a bucket")
		}
		store, err := storage.NewS3Store(ctx, conf.S3Region, conf.S3Bucket)
		if err != nil {
			return nil, fmt.Errorf("could not create the s3 store: %w", err)
		}
		if err := store.CheckBucketAccess(ctx); err != nil {
			return nil, fmt.Errorf("could not access bucket %s: %w", conf.S3Bucket, err)
		}
		log.Info().Str("bucket", conf.S3Bucket).Msg("storing files in s3")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage %q, use %s or %s", conf.Storage, StorageMongo, StorageS3)
	}
}

// Start starts the API service.
func (s *Service) Start() {
	s.API.Start(s.conf.Host, s.conf.Port)
}

// Close stops the API and closes the database.
func (s *Service) Close(ctx context.Context) {
	if err := s.API.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to stop the api")
	}
	s.Query.Close()
	closeDatabase(s.Database)
}

func closeDatabase(database *db.Database) {
	if err := database.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
