package main

import (
	"context"
	"log"
	"os"

	"github.com/calvin/shopsearch/internal/config"
	"github.com/calvin/shopsearch/internal/logger"
	"github.com/calvin/shopsearch/internal/repository"
	"github.com/calvin/shopsearch/internal/service"
)

// Rebuilds both vector collections from the catalog. Run after bulk
// imports or an embedding model change.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetDefaultLogger(logger.NewDefault())
	defer logger.Sync()
	appLog := logger.GetDefault()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}
	productRepo := repository.NewProductRepository(db, cfg.Search.UntrackedInStock)

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

	indexer := service.NewIndexerService(
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

	report, err := indexer.Reindex(ctx)
	if err != nil {
		appLog.WithError(err).Fatal("Reindex failed")
	}
	appLog.WithFields(logger.Fields{
		"products": report.Products,
		"indexed":  report.Indexed,
		"failed":   report.Failed,
	}).Info("Reindex finished")
}
