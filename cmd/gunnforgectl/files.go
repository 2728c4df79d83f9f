package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"gunnforge/internal/bootstrap"
	"gunnforge/internal/domain"
	"gunnforge/internal/gateway"
	"gunnforge/internal/repository/jsonfile"
	"gunnforge/internal/storage"
)

func filesCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "files",
		Usage: "Inspect and maintain the member file manifest",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List manifest records",
				Action: func(c *cli.Context) error {
					files, err := e.repos.Files.List(c.Context)
					if err != nil {
						return err
					}
					for _, f := range files {
						fmt.Fprintf(c.App.Writer, "%s\t%s/%s\t%s\t%s\n", f.ID, f.Category, f.Filename, f.Size, f.Name)
					}
					fmt.Fprintf(c.App.Writer, "total files: %d\n", len(files))
					return nil
				},
			},
			{
				Name:      "import",
				Usage:     "Replace the configured manifest with the records of a JSON manifest",
				ArgsUsage: "<member-files.json>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: gunnforgectl files import <member-files.json>", 1)
					}
					files, err := jsonfile.NewManifestStore(c.Args().First()).List(c.Context)
					if err != nil {
						return err
					}
					if err := validateManifest(files); err != nil {
						return err
					}
					if err := e.repos.Files.ReplaceAll(c.Context, files); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "imported %d files\n", len(files))
					return nil
				},
			},
			{
				Name:  "check",
				Usage: "Report manifest records whose file is missing from storage",
				Action: func(c *cli.Context) error {
					store, err := bootstrap.BuildStorage(c.Context, e.cfg, e.logger)
					if err != nil {
						return err
					}
					files, err := e.repos.Files.List(c.Context)
					if err != nil {
						return err
					}
					missing := 0
					for _, f := range files {
						if _, err := store.Stat(c.Context, f.Category, f.Filename); err != nil {
							missing++
							fmt.Fprintf(c.App.Writer, "%s/%s: %s\n", f.Category, f.Filename, describeStorageError(err))
						}
					}
					if missing > 0 {
						return cli.Exit(fmt.Sprintf("%d of %d files unavailable", missing, len(files)), 1)
					}
					fmt.Fprintf(c.App.Writer, "all %d files available\n", len(files))
					return nil
				},
			},
			{
				Name:      "sync",
				Usage:     "Upload a local storage root into the configured S3 bucket",
				ArgsUsage: "[dir]",
				Action: func(c *cli.Context) error {
					dir := e.cfg.Storage.Root
					if c.NArg() > 0 {
						dir = c.Args().First()
					}
					s3svc, err := bootstrap.BuildS3(c.Context, e.cfg, e.logger)
					if err != nil {
						return err
					}
					res, err := s3svc.SyncDirectory(c.Context, dir, func(done, total int64) {
						e.logger.Infof("uploaded %d/%d bytes", done, total)
					})
					for _, rel := range res.Skipped {
						e.logger.WithField("path", rel).Warn("skipped file that downloads cannot reach")
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "uploaded %d files, skipped %d\n", res.Uploaded, len(res.Skipped))
					return nil
				},
			},
		},
	}
}

// validateManifest rejects records the download gateway could never serve.
func validateManifest(files []domain.MemberFile) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if !domain.IsCategory(f.Category) {
			return fmt.Errorf("file %q: invalid category %q", f.ID, f.Category)
		}
		if !gateway.SafeFilename(f.Filename) {
			return fmt.Errorf("file %q: invalid filename %q", f.ID, f.Filename)
		}
		key := f.Category + "/" + f.Filename
		if _, ok := seen[key]; ok {
			return fmt.Errorf("file %q: duplicate entry %s", f.ID, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func describeStorageError(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "missing"
	case errors.Is(err, storage.ErrNotRegularFile):
		return "not a regular file"
	case errors.Is(err, storage.ErrOutsideRoot):
		return "outside storage root"
	}
	return err.Error()
}
