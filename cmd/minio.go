package cmd

import (
	"context"
	"fmt"

	"musiclib/storage"

	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Sync a MinIO bucket listing into the filecache",
	Long:  `List the objects of the configured bucket and upsert a filecache node for each one, so tracks can reference bucket objects by file id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close()

		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return err
		}
		storageID, err := lib.files.EnsureStorage(ctx, cfg.MinioStorage)
		if err != nil {
			return err
		}

		stats, err := storage.NewBucketSync(client, cfg.MinioBucket, storageID, lib.files).Sync(ctx, minioPrefix)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %s: %s\n", cfg.MinioBucket, stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "only sync objects below this prefix")

	minioCmd.Example = `  # sync the whole bucket
  musiclib minio

  # sync one directory
  musiclib minio -p "rock/"`
}
