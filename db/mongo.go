package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// connectTimeout bounds the whole connection attempt, retries included.
	connectTimeout = 30 * time.Second
)

// Database struct encapsulates MongoDB client and database.
type Database struct {
	Client         *mongo.Client
	Database       *mongo.Database
	AccountService *AccountService
	SessionService *SessionService
	UserService    *UserService
	PostService    *PostService
	SaveService    *SaveService
	FileService    *FileService
}

// New initializes a new MongoDB connection. If name is empty a random database name is used,
// which keeps tests isolated from each other.
func New(uri, name string) (*Database, error) {
	if uri == ":memory:" {
		uri = "mongodb://localhost:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// the server may still be starting (docker compose, test containers), retry the ping
	ping := func() error {
		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		defer pcancel()
		return client.Ping(pctx, readpref.Primary())
	}
	notify := func(err error, d time.Duration) {
		log.Warn().Err(err).Msgf("mongo not ready, retrying in %s", d)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(backoff.NewExponentialBackOff(), ctx), notify); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("could not reach mongo: %w", err)
	}

	if name == "" {
		name = RandomDatabaseName()
	}
	return NewWithClient(client, name), nil
}

// NewWithClient builds a Database on top of an already connected client.
func NewWithClient(client *mongo.Client, name string) *Database {
	database := &Database{
		Client:   client,
		Database: client.Database(name),
	}
	database.AccountService = NewAccountService(database)
	database.SessionService = NewSessionService(database)
	database.UserService = NewUserService(database)
	database.PostService = NewPostService(database)
	database.SaveService = NewSaveService(database)
	database.FileService = NewFileService(database)
	return database
}

// Close disconnects the MongoDB client.
func (db *Database) Close(ctx context.Context) error {
	return db.Client.Disconnect(ctx)
}

// CreateTables initializes all collections and indexes.
func (db *Database) CreateTables() error {
	return InitializeDatabase(db)
}
