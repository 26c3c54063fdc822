package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gallery-go/internal/app"
	"gallery-go/internal/config"
	"gallery-go/internal/gallery"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// newApp loads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "ListImages", "Migrate").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// run opens the app, calls fn and records its error on the operation.
func run(cmd *cobra.Command, operation string, fn func(a *app.App) error) error {
	a, err := newApp(cmd, operation)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

// readPassphrase prompts on stderr. Without a terminal the first line of
// stdin is used.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:           "gallery",
	Short:         "Local-first image gallery and prompt library",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if dir, _ := cmd.Flags().GetString("workspace"); dir != "" {
			cfg.Workspace.Path = dir
		}
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		printSuccess("Configuration initialized at %s", defaults["config_path"])
		printLabelValue("Base Dir", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}

		printHeader("Configuration")
		printLabelValue("Base Dir", cfg.BaseDir)
		printLabelValue("Log Dir", cfg.LogDir)
		printLabelValue("Log Level", cfg.LogLevel)
		printLabelValue("Mode", cfg.Mode)
		if cfg.Mode == config.ModeRemote {
			printLabelValue("Server", cfg.Remote.BaseURL)
		}
		if cfg.Workspace.Path != "" {
			printLabelValue("Workspace", cfg.Workspace.Path)
		}
		printLabelValue("Handle Store", cfg.HandleStore.Type)
		printLabelValue("Backup Vault", fmt.Sprintf("%s (%s)", cfg.Backup.Vault.Name, cfg.Backup.Vault.Type))
		printLabelValue("Encrypt", cfg.Backup.Encrypt)
		printLabelValue("Analysis", fmt.Sprintf("%s, %d workers", cfg.Analysis.Mode, cfg.Analysis.MaxWorkers))
		return nil
	},
}

// workspace command
var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage the workspace directory",
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workspace state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "WorkspaceStatus", func(a *app.App) error {
			ws := a.Workspace()
			printLabelValue("State", ws.State())
			if h := ws.StoredHandle(); h != nil {
				printLabelValue("Directory", h.Path)
			}
			if !ws.IsSupported() {
				printWarning("%s", ws.UnsupportedReason())
			}
			if err := ws.CheckReady(); err != nil {
				printWarning("%v", err)
			}
			return nil
		})
	},
}

var workspacePickCmd = &cobra.Command{
	Use:     "pick",
	Aliases: []string{"init"},
	Short:   "Choose the workspace directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "PickWorkspace", func(a *app.App) error {
			h, err := a.Workspace().Request(cmd.Context())
			if errors.Is(err, gallery.ErrUserCancelled) {
				printWarning("No directory selected")
				return nil
			}
			if err != nil {
				return err
			}
			printSuccess("Workspace: %s", h.Path)
			return nil
		})
	},
}

var workspaceResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Grant access to the stored workspace again",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ResumeWorkspace", func(a *app.App) error {
			h, err := a.Workspace().Resume(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Workspace: %s", h.Path)
			return nil
		})
	},
}

var workspaceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the workspace directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ClearWorkspace", func(a *app.App) error {
			if err := a.Workspace().Clear(); err != nil {
				return err
			}
			printSuccess("Workspace cleared; files are untouched")
			return nil
		})
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the key pair for encrypted backups and exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "InitKeys", func(a *app.App) error {
			pass, err := readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
			again, err := readPassphrase("Repeat passphrase: ")
			if err != nil {
				return err
			}
			if pass != again {
				return errors.New("passphrases do not match")
			}
			if err := a.InitKeys(pass); err != nil {
				return err
			}
			printSuccess("Keys written to %s", a.Config().Encryption.PublicKeyPath)
			return nil
		})
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore workspace metadata",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create [REASON]",
	Short: "Snapshot image and prompt metadata",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := "manual"
		if len(args) > 0 {
			reason = args[0]
		}
		return run(cmd, "CreateBackup", func(a *app.App) error {
			svc, err := a.Backups()
			if err != nil {
				return err
			}
			created, err := svc.Create(reason)
			if err != nil {
				return err
			}
			for _, info := range created {
				printSuccess("%s", info.Name)
			}
			return nil
		})
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ListBackups", func(a *app.App) error {
			svc, err := a.Backups()
			if err != nil {
				return err
			}
			list, err := svc.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No backups.")
				return nil
			}
			for _, info := range list {
				lock := " "
				if info.Encrypted {
					lock = "🔒"
				}
				fmt.Printf("%s  %-15s %-8s %s  %s\n",
					info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					info.Reason, info.Document, lock, dimColor.Sprint(info.Name))
			}
			return nil
		})
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore NAME",
	Short: "Restore a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "RestoreBackup", func(a *app.App) error {
			var pass string
			if info, ok := gallery.ParseBackupName(args[0]); ok && info.Encrypted {
				var err error
				if pass, err = readPassphrase("Passphrase: "); err != nil {
					return err
				}
			}
			if err := a.RestoreBackup(args[0], pass); err != nil {
				return err
			}
			printSuccess("Restored %s", args[0])
			return nil
		})
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		return run(cmd, "PruneBackups", func(a *app.App) error {
			svc, err := a.Backups()
			if err != nil {
				return err
			}
			n, err := svc.Prune(keep)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d snapshot(s)", n)
			return nil
		})
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the server collection into the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "Migrate", func(a *app.App) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := a.Migrate(ctx, func(p gallery.MigrateProgress) {
				if p.Err != nil {
					printWarning("%s: %v", p.Filename, p.Err)
				}
				fmt.Fprintf(os.Stderr, "\r%d/%d", p.Processed, p.Total)
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}
			if res.Stopped {
				printWarning("Migration stopped; run again to continue")
			}
			printSuccess("Migrated %d, skipped %d, failed %d of %d", res.Migrated, res.Skipped, res.Failed, res.Total)
			return nil
		})
	},
}

// view command
var viewCmd = &cobra.Command{
	Use:   "view ID",
	Short: "Open an image in the system viewer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "ViewImage", func(a *app.App) error {
			_, err := a.ViewImage(cmd.Context(), args[0])
			return err
		})
	},
}

// random command
var randomCmd = &cobra.Command{
	Use:   "random",
	Short: "Show images in random order without repeats",
	RunE: func(cmd *cobra.Command, args []string) error {
		favorites, _ := cmd.Flags().GetBool("favorites")
		return run(cmd, "RandomImages", func(a *app.App) error {
			ctx := cmd.Context()
			picker := a.NewRandomPicker(favorites)
			in := bufio.NewReader(os.Stdin)
			for {
				rec, err := picker.Next(ctx)
				if err != nil {
					return err
				}
				printImageLine(rec)
				if _, err := a.ViewImage(ctx, rec.ID); err != nil {
					printWarning("%v", err)
				}

				fmt.Fprintf(os.Stderr, "%d left. Enter next, f favorite, d delete, q quit: ", picker.Remaining())
				line, err := in.ReadString('\n')
				if err != nil {
					return nil
				}
				switch strings.TrimSpace(line) {
				case "q":
					return nil
				case "f":
					fav, err := a.Images().ToggleFavorite(ctx, rec.ID)
					if err != nil {
						printWarning("%v", err)
					} else if fav {
						printSuccess("%s is a favorite", rec.ID)
					}
				case "d":
					if _, err := a.Images().Delete(ctx, []string{rec.ID}); err != nil {
						printWarning("%v", err)
						continue
					}
					picker.Forget(rec.ID)
					printSuccess("Deleted %s", rec.ID)
				}
			}
		})
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("workspace", "", "Workspace directory to select without prompting")
	configCmd.AddCommand(configListCmd)

	// workspace subcommands
	workspaceCmd.AddCommand(workspaceStatusCmd)
	workspaceCmd.AddCommand(workspacePickCmd)
	workspaceCmd.AddCommand(workspaceResumeCmd)
	workspaceCmd.AddCommand(workspaceClearCmd)

	keysCmd.AddCommand(keysInitCmd)

	// backup subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupPruneCmd.Flags().IntP("keep", "k", 10, "Snapshots to keep per document")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(randomCmd)
	randomCmd.Flags().BoolP("favorites", "f", false, "Only favorite images")
}
