package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/api"
	"github.com/emprius/emprius-social-backend/feed"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/query"
	"github.com/emprius/emprius-social-backend/service"
)

func main() {
	flag.Bool("debug", false, "sets log level to debug")
	flag.Int("port", 3333, "sets the port to listen on")
	flag.String("host", "0.0.0.0", "sets the host to listen on")
	flag.String("secret", "", "sets the secret for JWT")
	flag.String("mongo", "mongodb://localhost:27017", "sets the mongo URI")
	flag.String("mongoDatabase", "emprius-social", "sets the mongo database name")
	flag.String("publicURL", "", "base URL the API is reachable at, used to build image URLs")
	flag.String("storage", service.StorageMongo, "file storage backend: mongo or s3")
	flag.String("s3Bucket", "", "S3 bucket for the s3 storage")
	flag.String("s3Region", "", "S3 region for the s3 storage, defaults to the AWS configuration")
	flag.Duration("feedTimeout", feed.DefaultTimeout, "maximum time to fetch a feed batch")
	flag.Int64("cacheSize", query.DefaultCacheSize, "maximum number of cached read results")
	flag.Duration("sessionTTL", gateway.DefaultSessionTTL, "lifetime of a session")
	flag.Int("mutationsPerMinute", api.DefaultMutationsPerMinute, "write operations allowed per user and minute")
	flag.Bool("metrics", true, "serve prometheus metrics on /metrics")

	flag.Parse()

	// Initialize Viper
	viper.SetEnvPrefix("EMPRIUS")
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()
	conf := service.Config{
		Debug:              viper.GetBool("debug"),
		Host:               viper.GetString("host"),
		Port:               viper.GetInt("port"),
		Secret:             viper.GetString("secret"),
		MongoURI:           viper.GetString("mongo"),
		MongoDatabase:      viper.GetString("mongoDatabase"),
		PublicURL:          viper.GetString("publicURL"),
		Storage:            viper.GetString("storage"),
		S3Bucket:           viper.GetString("s3Bucket"),
		S3Region:           viper.GetString("s3Region"),
		FeedTimeout:        viper.GetDuration("feedTimeout"),
		CacheSize:          viper.GetInt64("cacheSize"),
		SessionTTL:         viper.GetDuration("sessionTTL"),
		MutationsPerMinute: viper.GetInt("mutationsPerMinute"),
		Metrics:            viper.GetBool("metrics"),
	}
	service.SetupLogging(conf.Debug)

	// if no secret is provided, generate a random one
	if conf.Secret == "" {
		sb := make([]byte, 32)
		if _, err := rand.Read(sb); err != nil {
			log.Fatal().Err(err).Msg("failed to generate random secret")
		}
		conf.Secret = fmt.Sprintf("%x", sb)
		log.Warn().Msg("no secret provided, using a random one: sessions will not survive a restart")
	}

	s, err := service.New(context.Background(), conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create service")
	}
	s.Start()

	log.Info().Msg("startup complete")

	// close if interrupt received
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Warn().Msgf("received SIGTERM, exiting at %s", time.Now().Format(time.RFC850))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Close(ctx)
}
