package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evote-api/internal/application/otp"
	"github.com/evote-api/internal/config"
	"github.com/evote-api/internal/facematch"
	"github.com/evote-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/evote-api/internal/infrastructure/jwt"
	s3infra "github.com/evote-api/internal/infrastructure/s3"
	"github.com/evote-api/internal/infrastructure/sns"
	transporthttp "github.com/evote-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider. Required: every authenticated call carries a bearer.
	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatalf("JWT provider: %v", err)
	}

	// S3 store for face embeddings and enrollment portraits.
	s3Client := s3infra.NewClient(cfg)
	s3Store := s3infra.NewStore(s3Client, cfg.S3BucketName)

	// SNS SMS sender (optional — OTP codes fall back to the log).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		log.Printf("WARN: SNS sender not available: %v", err)
	}

	challenges := otp.NewManager(smsSender, otp.WithTTL(cfg.OTPTTL))

	deps := &transporthttp.Deps{
		VoterRepo:     dynamo.NewVoterRepo(dynamoClient, cfg.DynamoTables.Voters),
		SessionRepo:   dynamo.NewSessionRepo(dynamoClient, cfg.DynamoTables.Sessions),
		ElectionRepo:  dynamo.NewElectionRepo(dynamoClient, cfg.DynamoTables.Elections),
		CandidateRepo: dynamo.NewCandidateRepo(dynamoClient, cfg.DynamoTables.Candidates),
		VoteRepo:      dynamo.NewVoteRepo(dynamoClient, cfg.DynamoTables.Votes),
		Blobs:         s3Store,
		Challenges:    challenges,
		Matcher:       facematch.New(),
		JWTProvider:   jwtProvider,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
