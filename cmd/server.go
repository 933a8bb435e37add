package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"musiclib/core/auth"
	"musiclib/logger"
	"musiclib/server"
	"musiclib/watcher"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API",
	Long:  `Start the track catalogue HTTP API. With WATCH_DIR set, file changes below it are mirrored into the filecache and the affected tracks are reported.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET must be set")
		}

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.WatchDir != "" {
			storage, err := lib.files.EnsureStorage(ctx, cfg.WatchStorage)
			if err != nil {
				return err
			}
			w := watcher.New(cfg.WatchDir, storage, lib.files, lib.tracks, logChange)
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("Watcher stopped", logger.ErrorField(err))
				}
			}()
		}

		tokens := auth.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpireHours)*time.Hour)
		router := server.NewRouter(server.NewAPIHandler(lib.tracks, tokens, cfg.HomeStorage))
		return server.Run(ctx, cfg.HTTPAddr, router)
	},
}

// logChange records which users' tracks a file event touched, so their
// libraries can be rescanned.
func logChange(_ context.Context, change watcher.Change) {
	users := make(map[string][]int64)
	for _, t := range change.Tracks {
		users[t.UserID] = append(users[t.UserID], t.ID)
	}
	for user, ids := range users {
		logger.Info("Tracks affected by file change",
			logger.String("path", change.Path),
			logger.Bool("removed", change.Removed),
			logger.String("userId", user),
			logger.Int64s("trackIds", ids))
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
