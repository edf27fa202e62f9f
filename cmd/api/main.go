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

	"github.com/calvin/shopsearch/internal/api"
	"github.com/calvin/shopsearch/internal/api/middleware"
	"github.com/calvin/shopsearch/internal/config"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
	"github.com/calvin/shopsearch/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()
	appLog := logger.GetDefault()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	productRepo := repository.NewProductRepository(db, cfg.Search.UntrackedInStock)
	categoryRepo := repository.NewCategoryRepository(db)

	textIndex, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.TextCollection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize text vector index")
	}
	defer textIndex.Close()

	imageIndex, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.ImageCollection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize image vector index")
	}
	defer imageIndex.Close()

	ctx := context.Background()
	if err := textIndex.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure text collection")
	}
	if err := imageIndex.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure image collection")
	}

	// Initialize storage (supports R2, S3, MinIO-style endpoints)
	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Initialize services
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	})
	imageEmbedding := service.NewImageEmbeddingService(&service.VisionConfig{
		Model:   cfg.Vision.Model,
		APIKey:  cfg.Vision.APIKey,
		BaseURL: cfg.Vision.BaseURL,
	}, embeddingService)

	searchService := service.NewSearchService(
		productRepo,
		textIndex,
		imageIndex,
		embeddingService,
		imageEmbedding,
		appLog,
		&service.SearchServiceConfig{
			ScoreThreshold:   cfg.Search.ScoreThreshold,
			RetrievalTimeout: cfg.Search.RetrievalTimeout,
			VectorTopK:       cfg.Search.VectorTopK,
			KeywordLimit:     cfg.Search.KeywordLimit,
			MaxPageSize:      cfg.Search.MaxPageSize,
		},
	)
	facetService := service.NewFacetService(productRepo, categoryRepo, appLog)
	indexerService := service.NewIndexerService(
		productRepo,
		textIndex,
		imageIndex,
		embeddingService,
		imageEmbedding,
		appLog,
		&service.IndexerConfig{
			Workers:   cfg.Indexer.Workers,
			BatchSize: cfg.Indexer.BatchSize,
		},
	)
	productService := service.NewProductService(productRepo, objectStorage, indexerService, appLog)

	router := api.SetupRouter(&api.RouterDeps{
		SearchService:  searchService,
		FacetService:   facetService,
		ProductService: productService,
		IndexerService: indexerService,
		CategoryRepo:   categoryRepo,
		Logger:         appLog,
		Mode:           cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("Forced server shutdown")
	}
	appLog.Info("Server stopped")
}
