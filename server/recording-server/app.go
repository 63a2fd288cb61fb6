package main

import (
	"database/sql"
	"fmt"

	"github.com/legendsaurav/scramer/server/core/ccc/db"
	"github.com/legendsaurav/scramer/server/core/ccc/logging"
	"github.com/legendsaurav/scramer/server/core/config"
	"github.com/legendsaurav/scramer/server/core/encoding"
	"github.com/legendsaurav/scramer/server/core/merging"
	"github.com/legendsaurav/scramer/server/core/segments"
	"github.com/legendsaurav/scramer/server/core/sessions"
)

const serviceName = "recording-server"

// application wires the storage, merge and listing components from a config
type application struct {
	cfg      *config.Config
	logger   logging.Logger
	database *sql.DB
	store    *segments.FileStore
	merger   *merging.Service
	lister   *sessions.Lister
}

func newApplication(cfg *config.Config, logger logging.Logger) (*application, error) {
	if logger == nil {
		logger = logging.NopLogger
	}

	store, err := segments.NewFileStore(logger, cfg.StorageRoot, segments.StoreOptions{
		RecognizedExtensions: cfg.RecognizedExtensions,
		DiscriminatorWidth:   cfg.DiscriminatorWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create segment store: %w", err)
	}

	database, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	history, err := merging.NewSQLiteHistoryRepository(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to create merge history repository: %w", err)
	}

	encoder := encoding.NewFFmpegEncoder(logger, cfg.FFmpegPath, cfg.EncodeTimeout())

	var prober encoding.Prober
	if cfg.ValidateFastPath {
		prober = encoding.NewFFprobeProber(logger)
	}

	profile := encoding.Profile{
		VideoCodec:   cfg.Reencode.VideoCodec,
		Preset:       cfg.Reencode.Preset,
		CRF:          cfg.Reencode.CRF,
		PixelFormat:  cfg.Reencode.PixelFormat,
		AudioCodec:   cfg.Reencode.AudioCodec,
		AudioBitrate: cfg.Reencode.AudioBitrate,
	}

	concatenator := merging.NewConcatenator(logger, encoder, prober, profile)
	variants := merging.NewVariantGenerator(logger, encoder, prober, profile, cfg.TempoLimit, cfg.VariantWorkers)
	merger := merging.NewService(logger, store, concatenator, variants, merging.NewBucketLocker(), history,
		merging.ServiceOptions{
			Multipliers:  cfg.SpeedMultipliers,
			PublicPrefix: cfg.PublicPrefix,
		})

	return &application{
		cfg:      cfg,
		logger:   logger,
		database: database,
		store:    store,
		merger:   merger,
		lister:   sessions.NewLister(logger, store.Root(), cfg.PublicPrefix),
	}, nil
}

func (a *application) Close() error {
	return a.database.Close()
}
