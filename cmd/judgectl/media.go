package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/judging-portal/internal/config"
	"github.com/noah-isme/judging-portal/internal/models"
	"github.com/noah-isme/judging-portal/internal/store"
	"github.com/noah-isme/judging-portal/pkg/cloudinary"
	"github.com/noah-isme/judging-portal/pkg/objectstore"
	"github.com/noah-isme/judging-portal/pkg/thumbnail"
)

var errNoUploader = errors.New("no thumbnail uploader: set JUDGE_UPLOADER to cloudinary or s3")

// newUploader builds the configured thumbnail uploader.
func newUploader(ctx context.Context, cfg config.Client, logger zerolog.Logger) (thumbnail.Uploader, error) {
	switch cfg.Uploader {
	case config.UploaderCloudinary:
		return cloudinary.New(cloudinary.Config{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		}, logger)
	case config.UploaderS3:
		return objectstore.New(ctx, objectstore.Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
			PathStyle:       cfg.S3.PathStyle,
		}, logger)
	default:
		return nil, errNoUploader
	}
}

func newUploadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "upload <entry-id> <image>",
		GroupID: "event",
		Short:   "Upload an entry thumbnail and link it to the entry",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			if _, _, err := thumbnail.Detect(data); err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				entry, err := findEntry(w, args[0])
				if err != nil {
					return err
				}
				uploader, err := newUploader(ctx, a.cfg, a.logger)
				if err != nil {
					return err
				}
				url, err := uploader.UploadThumbnail(ctx, w.orch.Key(), entry.ID, data)
				if err != nil {
					return err
				}
				entry.Thumbnail = url
				if err := w.orch.UpdateEntry(ctx, entry); err != nil {
					return err
				}
				a.printf("%s\n", url)
				return nil
			})
		},
	}
}

func newInspectCommand(a *app) *cobra.Command {
	var externalize bool

	cmd := &cobra.Command{
		Use:     "inspect",
		GroupID: "sync",
		Short:   "Find inline images that make the event too large to save",
		Long: `List inline data: images carried in entries, largest first. The store
rejects documents above its size limit; with --externalize inline thumbnails
are uploaded and replaced by their URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, w *workspace) error {
				snapshot := w.orch.Snapshot()
				doc := models.Document{Teams: snapshot.Entries, Ratings: snapshot.Ratings, Judges: snapshot.Judges}
				images := store.InspectPayload(doc)

				if a.asJSON && !externalize {
					return a.printJSON(struct {
						Bytes  int                 `json:"bytes"`
						Images []store.InlineImage `json:"images"`
					}{store.PayloadSize(doc), images})
				}
				a.printf("document size: %d bytes\n", store.PayloadSize(doc))
				if len(images) == 0 {
					a.printf("no inline images\n")
					return nil
				}
				rows := make([][]string, 0, len(images))
				for _, image := range images {
					rows = append(rows, []string{image.EntryID, image.Field, image.MIME, strconv.Itoa(image.Bytes)})
				}
				a.printTable([]string{"ENTRY", "FIELD", "TYPE", "BYTES"}, rows)

				if !externalize {
					return nil
				}
				uploader, err := newUploader(ctx, a.cfg, a.logger)
				if err != nil {
					return err
				}
				return a.externalize(ctx, w, uploader, images)
			})
		},
	}
	cmd.Flags().BoolVar(&externalize, "externalize", false, "upload inline thumbnails and replace them with URLs")
	return cmd
}

// externalize uploads inline thumbnails and links the uploaded copies.
// Inline images in descriptions are left for the author to edit.
func (a *app) externalize(ctx context.Context, w *workspace, uploader thumbnail.Uploader, images []store.InlineImage) error {
	moved := 0
	for _, image := range images {
		if image.Field != "thumbnail" {
			continue
		}
		entry, err := findEntry(w, image.EntryID)
		if err != nil {
			return err
		}
		data, ok := store.DecodeDataURI(entry.Thumbnail)
		if !ok {
			continue
		}
		url, err := uploader.UploadThumbnail(ctx, w.orch.Key(), entry.ID, data)
		if err != nil {
			return fmt.Errorf("upload %s: %w", entry.ID, err)
		}
		entry.Thumbnail = url
		if err := w.orch.UpdateEntry(ctx, entry); err != nil {
			return fmt.Errorf("update %s: %w", entry.ID, err)
		}
		moved++
		a.printf("%s -> %s\n", entry.ID, url)
	}
	a.printf("externalized %d thumbnail(s)\n", moved)
	return nil
}
