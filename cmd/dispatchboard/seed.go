package main

import (
	"context"
	"fmt"
	"os"

	"github.com/devrev/dispatchboard/internal/metrics"
	"github.com/devrev/dispatchboard/internal/model"
	"github.com/devrev/dispatchboard/internal/service"
	"github.com/devrev/dispatchboard/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var seedPath string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load technicians and requests from a YAML file through the assignment engine",
	RunE:  seed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedPath, "file", "f", "", "YAML board file")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

// SeedFile is the YAML layout accepted by the seed command
type SeedFile struct {
	Technicians []SeedTechnician `yaml:"technicians"`
}

// SeedTechnician is one technician with the requests assigned to it
type SeedTechnician struct {
	ID       string        `yaml:"id"`
	FullName string        `yaml:"full_name"`
	Requests []SeedRequest `yaml:"requests"`
}

// SeedRequest is one request inside a SeedTechnician
type SeedRequest struct {
	ID         string `yaml:"id"`
	Address    string `yaml:"address"`
	Complexity int    `yaml:"complexity"`
}

// SeedSummary counts what a seed run created
type SeedSummary struct {
	Technicians int
	Requests    int
}

func loadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &file, nil
}

// Apply creates every technician, then its requests, stopping at the first
// rejection. Capacity rules apply exactly as they do over HTTP.
func (f *SeedFile) Apply(ctx context.Context, engine *service.AssignmentService) (SeedSummary, error) {
	var summary SeedSummary
	for _, t := range f.Technicians {
		if err := engine.CreateTechnician(ctx, t.ID, t.FullName); err != nil {
			return summary, fmt.Errorf("technician %q: %w", t.ID, err)
		}
		summary.Technicians++

		for _, r := range t.Requests {
			err := engine.CreateRequest(ctx, model.Request{
				ID:           r.ID,
				Address:      r.Address,
				Complexity:   r.Complexity,
				TechnicianID: t.ID,
			})
			if err != nil {
				return summary, fmt.Errorf("request %q for technician %q: %w", r.ID, t.ID, err)
			}
			summary.Requests++
		}
	}
	return summary, nil
}

func seed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	file, err := loadSeedFile(seedPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	boardStore, err := store.NewBoardStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open board store: %w", err)
	}
	defer boardStore.Close()

	// Any running server caches the board, so invalidate through the shared
	// cache backend.
	cache, err := store.NewBoardCache(cfg.Cache, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("open board cache: %w", err)
	}
	defer cache.Close()

	engine := service.NewAssignmentService(boardStore, cache,
		metrics.NewMetrics(prometheus.NewRegistry()),
		service.Options{CacheTTL: cfg.Cache.TTL, EnforceCapacityOnEdit: cfg.Board.EnforceCapacityOnEdit},
		logger)

	summary, err := file.Apply(ctx, engine)
	logger.Info("seed finished",
		zap.String("file", seedPath),
		zap.Int("technicians", summary.Technicians),
		zap.Int("requests", summary.Requests),
	)
	return err
}
