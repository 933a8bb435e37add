package cmd

import (
	"fmt"
	"os"

	"musiclib/config"
	"musiclib/db"
	"musiclib/logger"
	"musiclib/repository"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "musiclib",
	Short: "Music library track catalogue over a Nextcloud style schema.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// library bundles the database handle and the repositories built on it.
type library struct {
	db     *gorm.DB
	tracks repository.TrackRepository
	files  repository.FileCacheRepository
}

func openLibrary() (*library, error) {
	dialect, err := repository.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return &library{
		db:     gdb,
		tracks: repository.NewTrackRepository(gdb, dialect, cfg.DBTablePrefix, repository.NewNaturalOrder(cfg.CollationLocale)),
		files:  repository.NewFileCacheRepository(gdb, cfg.DBTablePrefix),
	}, nil
}

func (l *library) Close() {
	if err := db.Close(l.db); err != nil {
		logger.Warn("Failed to close database", logger.ErrorField(err))
	}
}
