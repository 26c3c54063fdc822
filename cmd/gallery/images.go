package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gallery-go/internal/app"
	"gallery-go/internal/gallery"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Browse and manage images",
}

// imageFilter builds a filter from the list flags.
func imageFilter(cmd *cobra.Command) (gallery.ImageFilter, error) {
	var f gallery.ImageFilter
	flags := cmd.Flags()
	f.Search, _ = flags.GetString("search")
	f.Model, _ = flags.GetString("model")
	f.AspectRatio, _ = flags.GetString("aspect")
	f.Tags, _ = flags.GetStringSlice("tag")

	if flags.Changed("favorites") {
		v, _ := flags.GetBool("favorites")
		f.Favorite = &v
	}
	if flags.Changed("issues") {
		v, _ := flags.GetBool("issues")
		f.HasQualityIssues = &v
	}
	if flags.Changed("min-quality") {
		v, _ := flags.GetFloat64("min-quality")
		f.MinQualityScore = &v
	}
	if flags.Changed("max-quality") {
		v, _ := flags.GetFloat64("max-quality")
		f.MaxQualityScore = &v
	}
	if s, _ := flags.GetString("from"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return f, fmt.Errorf("parsing --from: %w", err)
		}
		f.StartDate = &t
	}
	if s, _ := flags.GetString("to"); s != "" {
		t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return f, fmt.Errorf("parsing --to: %w", err)
		}
		// the whole end day is included
		t = t.Add(24*time.Hour - time.Millisecond)
		f.EndDate = &t
	}
	return f, nil
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List images, one page at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := imageFilter(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		return run(cmd, "ListImages", func(a *app.App) error {
			ctx := cmd.Context()
			c := a.Images()

			if flags.Changed("page-size") {
				size, _ := flags.GetInt("page-size")
				if _, err := c.SetPageSize(ctx, size); err != nil {
					return err
				}
			}
			if flags.Changed("view") {
				mode, _ := flags.GetString("view")
				if err := c.SetViewMode(mode); err != nil {
					return err
				}
			}
			if flags.Changed("sort") || flags.Changed("order") {
				sortBy, _ := flags.GetString("sort")
				order, _ := flags.GetString("order")
				if _, err := c.SetSort(ctx, sortBy, order); err != nil {
					return err
				}
			}
			page, err := c.SetFilters(ctx, filter)
			if err != nil {
				return err
			}
			if n, _ := flags.GetInt("page"); n > 1 {
				if page, err = c.SetPage(ctx, n); err != nil {
					return err
				}
			}

			if page.Total == 0 {
				fmt.Println("No images.")
				return nil
			}
			for i := range page.Images {
				if c.ViewMode() == gallery.ViewGrid {
					printImageLine(&page.Images[i])
				} else {
					printImage(&page.Images[i])
				}
			}
			_, _ = dimColor.Printf("page %d of %d, %d image(s)\n", page.Page, page.TotalPages, page.Total)
			return nil
		})
	},
}

var imagesShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one image's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ShowImage", func(a *app.App) error {
			rec, err := a.Images().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printImage(rec)
			return nil
		})
	},
}

var imagesTagCmd = &cobra.Command{
	Use:   "tag ID TAG",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "AddTag", func(a *app.App) error {
			tags, err := a.Images().AddTag(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSuccess("Tags: %s", strings.Join(tags, ", "))
			return nil
		})
	},
}

var imagesUntagCmd = &cobra.Command{
	Use:   "untag ID TAG",
	Short: "Remove a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "RemoveTag", func(a *app.App) error {
			tags, err := a.Images().RemoveTag(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printSuccess("Tags: %s", strings.Join(tags, ", "))
			return nil
		})
	},
}

var imagesFavoriteCmd = &cobra.Command{
	Use:   "favorite ID",
	Short: "Toggle the favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ToggleFavorite", func(a *app.App) error {
			fav, err := a.Images().ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if fav {
				printSuccess("%s is a favorite", args[0])
			} else {
				printSuccess("%s is no longer a favorite", args[0])
			}
			return nil
		})
	},
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete images and their files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes && !confirm(fmt.Sprintf("Delete %d image(s)?", len(args))) {
			return nil
		}
		return run(cmd, "DeleteImages", func(a *app.App) error {
			res, err := a.Images().Delete(cmd.Context(), args)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d of %d", res.Deleted, res.Total)
			if res.Failed > 0 {
				printWarning("%d failed", res.Failed)
			}
			return nil
		})
	},
}

var imagesExportCmd = &cobra.Command{
	Use:   "export ID...",
	Short: "Write the images to a zip archive",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		encrypt, _ := cmd.Flags().GetBool("encrypt")
		if out == "" {
			out = "gallery-export-" + time.Now().Format("20060102-150405") + ".zip"
			if encrypt {
				out += ".age"
			}
		}

		return run(cmd, "ExportImages", func(a *app.App) error {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			if err := a.Export(cmd.Context(), args, f, encrypt); err != nil {
				f.Close()
				os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("closing %s: %w", out, err)
			}
			printSuccess("Exported %d image(s) to %s", len(args), out)
			return nil
		})
	},
}

var imagesUploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Add image files to the collection",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringSlice("tag")
		return run(cmd, "UploadImages", func(a *app.App) error {
			var errs []error
			for _, path := range args {
				rec, err := uploadFile(cmd, a, path, tags)
				if err != nil {
					printWarning("%s: %v", path, err)
					errs = append(errs, err)
					continue
				}
				printSuccess("%s → %s", path, rec.ID)
			}
			return errors.Join(errs...)
		})
	},
}

func uploadFile(cmd *cobra.Command, a *app.App, path string, tags []string) (*gallery.ImageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.Images().Upload(cmd.Context(), filepath.Base(path), f, tags)
}

var imagesScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Add image files found in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "Scan", func(a *app.App) error {
			res, err := a.Images().Scan(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Scanned %d file(s), added %d", res.Scanned, res.Added)
			return nil
		})
	},
}

var imagesMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Find records whose file is gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		cleanup, _ := cmd.Flags().GetBool("cleanup")
		return run(cmd, "CheckMissing", func(a *app.App) error {
			ctx := cmd.Context()
			report, err := a.Images().CheckMissing(ctx)
			if err != nil {
				return err
			}
			for i := range report.MissingImages {
				printImageLine(&report.MissingImages[i])
			}
			printLabelValue("Total", report.Total)
			printLabelValue("Valid", report.Valid)
			printLabelValue("Missing", report.Missing)

			if !cleanup || report.Missing == 0 {
				return nil
			}
			n, err := a.CleanupMissing(ctx)
			if err != nil {
				return err
			}
			printSuccess("Removed %d record(s)", n)
			return nil
		})
	},
}

var imagesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "Stats", func(a *app.App) error {
			s, err := a.Images().Stats(cmd.Context())
			if err != nil {
				return err
			}
			printHeader("Collection")
			printLabelValue("Images", s.TotalCount)
			printLabelValue("Size", formatSize(s.TotalSize))
			printLabelValue("This month", s.MonthCount)
			for model, n := range s.Models {
				printLabelValue("Model", fmt.Sprintf("%s (%d)", model, n))
			}
			for ratio, n := range s.AspectRatios {
				printLabelValue("Aspect ratio", fmt.Sprintf("%s (%d)", ratio, n))
			}
			for _, tc := range s.TopTags {
				printLabelValue("Tag", fmt.Sprintf("%s (%d)", tc.Tag, tc.Count))
			}
			return nil
		})
	},
}

var imagesAnalyzeCmd = &cobra.Command{
	Use:   "analyze [ID...]",
	Short: "Score image quality",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		return run(cmd, "AnalyzeQuality", func(a *app.App) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req := a.AnalyzeRequest(args, gallery.AnalyzeMode(mode))
			summary, err := a.Images().AnalyzeQuality(ctx, req, func(p gallery.AnalyzeProgress) {
				if p.Err != nil {
					printWarning("%s: %v", p.ID, p.Err)
				}
				fmt.Fprintf(os.Stderr, "\r%d/%d", p.Done, p.Total)
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			if summary.Stopped {
				printWarning("Analysis stopped")
			}
			printSuccess("Analyzed %d of %d, skipped %d, failed %d, %d low quality",
				summary.Analyzed, summary.Total, summary.Skipped, summary.Failed, summary.LowQuality)
			return nil
		})
	},
}

var imagesCatCmd = &cobra.Command{
	Use:   "cat ID",
	Short: "Write an image's bytes to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "CatImage", func(a *app.App) error {
			r, err := a.Store().OpenImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(os.Stdout, r)
			return err
		})
	},
}

func init() {
	list := imagesListCmd.Flags()
	list.IntP("page", "p", 1, "Page number")
	list.IntP("page-size", "n", gallery.DefaultPageSize, "Images per page (saved)")
	list.String("view", gallery.ViewGrid, "grid (one line per image) or list (saved)")
	list.String("sort", gallery.DefaultSortBy, "Sort key: created_at, file_size, quality_score, filename, width or height")
	list.String("order", gallery.DefaultSortOrder, "asc or desc")
	list.StringP("search", "s", "", "Search prompts")
	list.String("model", "", "Only this model")
	list.String("aspect", "", "Only this aspect ratio, e.g. 16:9")
	list.StringSlice("tag", nil, "Any of these tags")
	list.Bool("favorites", false, "Only favorites")
	list.Bool("issues", false, "Only images with quality issues")
	list.Float64("min-quality", 0, "Minimum quality score")
	list.Float64("max-quality", 100, "Maximum quality score")
	list.String("from", "", "Created on or after (YYYY-MM-DD)")
	list.String("to", "", "Created on or before (YYYY-MM-DD)")

	imagesDeleteCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	imagesExportCmd.Flags().StringP("output", "o", "", "Archive path")
	imagesExportCmd.Flags().Bool("encrypt", false, "Encrypt the archive with the configured key")
	imagesUploadCmd.Flags().StringSlice("tag", nil, "Tags for the uploaded images")
	imagesMissingCmd.Flags().Bool("cleanup", false, "Remove the missing records (a backup is taken first)")
	imagesAnalyzeCmd.Flags().String("mode", "", "all or unscored; defaults to analysis.mode")

	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesShowCmd)
	imagesCmd.AddCommand(imagesTagCmd)
	imagesCmd.AddCommand(imagesUntagCmd)
	imagesCmd.AddCommand(imagesFavoriteCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)
	imagesCmd.AddCommand(imagesExportCmd)
	imagesCmd.AddCommand(imagesUploadCmd)
	imagesCmd.AddCommand(imagesScanCmd)
	imagesCmd.AddCommand(imagesMissingCmd)
	imagesCmd.AddCommand(imagesStatsCmd)
	imagesCmd.AddCommand(imagesAnalyzeCmd)
	imagesCmd.AddCommand(imagesCatCmd)
}
