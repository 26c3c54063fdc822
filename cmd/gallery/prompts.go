package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gallery-go/internal/app"
	"gallery-go/internal/gallery"

	"github.com/spf13/cobra"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage the prompt library",
}

// promptFormat returns --format, or guesses it from the file extension.
func promptFormat(cmd *cobra.Command, path string) string {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return f
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return gallery.FormatYAML
	default:
		return gallery.FormatJSON
	}
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		var f gallery.PromptFilter
		f.Search, _ = cmd.Flags().GetString("search")
		f.Category, _ = cmd.Flags().GetString("category")
		f.Tag, _ = cmd.Flags().GetString("tag")
		if cmd.Flags().Changed("favorites") {
			v, _ := cmd.Flags().GetBool("favorites")
			f.Favorite = &v
		}

		return run(cmd, "ListPrompts", func(a *app.App) error {
			list, err := a.Prompts().SetFilter(cmd.Context(), f)
			if err != nil {
				return err
			}
			if list.Total == 0 {
				fmt.Println("No prompts.")
				return nil
			}
			for i := range list.Prompts {
				printPromptLine(&list.Prompts[i])
			}
			_, _ = dimColor.Printf("%d prompt(s); categories: %s\n", list.Total, strings.Join(list.Categories, ", "))
			return nil
		})
	},
}

var promptsAddCmd = &cobra.Command{
	Use:   "add TITLE CONTENT",
	Short: "Create a prompt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := gallery.PromptInput{Title: args[0], Content: args[1]}
		in.Category, _ = cmd.Flags().GetString("category")
		in.Tags, _ = cmd.Flags().GetStringSlice("tag")

		return run(cmd, "CreatePrompt", func(a *app.App) error {
			p, err := a.Prompts().Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			printSuccess("Created %s", p.ID)
			return nil
		})
	},
}

var promptsEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch gallery.PromptPatch
		flags := cmd.Flags()
		for name, dst := range map[string]**string{
			"title":    &patch.Title,
			"content":  &patch.Content,
			"category": &patch.Category,
		} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				*dst = &v
			}
		}
		if flags.Changed("tag") {
			patch.Tags, _ = flags.GetStringSlice("tag")
		}

		return run(cmd, "UpdatePrompt", func(a *app.App) error {
			p, err := a.Prompts().Update(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			printPromptLine(p)
			return nil
		})
	},
}

var promptsFavoriteCmd = &cobra.Command{
	Use:   "favorite ID",
	Short: "Toggle the favorite flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "TogglePromptFavorite", func(a *app.App) error {
			p, err := a.Prompts().ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPromptLine(p)
			return nil
		})
	},
}

var promptsUseCmd = &cobra.Command{
	Use:   "use ID",
	Short: "Print a prompt's content and count the use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "UsePrompt", func(a *app.App) error {
			p, err := a.Prompts().Use(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(p.Content)
			return nil
		})
	},
}

var promptsDeleteCmd = &cobra.Command{
	Use:   "delete ID...",
	Short: "Delete prompts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "DeletePrompts", func(a *app.App) error {
			n, err := a.Prompts().Delete(cmd.Context(), args)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d prompt(s)", n)
			return nil
		})
	},
}

var promptsExportCmd = &cobra.Command{
	Use:   "export [FILE]",
	Short: "Write the library as JSON or YAML (stdout without FILE)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ExportPrompts", func(a *app.App) error {
			if len(args) == 0 {
				return a.Prompts().Export(cmd.Context(), os.Stdout, promptFormat(cmd, ""))
			}
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			if err := a.Prompts().Export(cmd.Context(), f, promptFormat(cmd, args[0])); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			printSuccess("Exported to %s", args[0])
			return nil
		})
	},
}

var promptsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load a library file (\"-\" reads stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merge, _ := cmd.Flags().GetBool("merge")
		return run(cmd, "ImportPrompts", func(a *app.App) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			n, err := a.ImportPrompts(cmd.Context(), r, promptFormat(cmd, args[0]), merge)
			if err != nil {
				return err
			}
			printSuccess("Imported %d prompt(s)", n)
			return nil
		})
	},
}

func init() {
	list := promptsListCmd.Flags()
	list.StringP("search", "s", "", "Search title, content and tags")
	list.String("category", "", "Only this category")
	list.String("tag", "", "Only prompts with this tag")
	list.Bool("favorites", false, "Only favorites")

	promptsAddCmd.Flags().String("category", "", "Category")
	promptsAddCmd.Flags().StringSlice("tag", nil, "Tags")

	edit := promptsEditCmd.Flags()
	edit.String("title", "", "New title")
	edit.String("content", "", "New content")
	edit.String("category", "", "New category")
	edit.StringSlice("tag", nil, "Replace the tags")

	promptsExportCmd.Flags().String("format", "", "json or yaml")
	promptsImportCmd.Flags().String("format", "", "json or yaml")
	promptsImportCmd.Flags().Bool("merge", false, "Add to the library instead of replacing it")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsAddCmd)
	promptsCmd.AddCommand(promptsEditCmd)
	promptsCmd.AddCommand(promptsFavoriteCmd)
	promptsCmd.AddCommand(promptsUseCmd)
	promptsCmd.AddCommand(promptsDeleteCmd)
	promptsCmd.AddCommand(promptsExportCmd)
	promptsCmd.AddCommand(promptsImportCmd)
}
