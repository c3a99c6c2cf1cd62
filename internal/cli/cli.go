// Package cli provides the command-line interface for the ipa download
// pipeline. It wires configuration, the ipatool client, catalog lookups,
// and download history behind urfave/cli commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/ipagrab/ipagrab/internal/download"
	"github.com/ipagrab/ipagrab/internal/history"
	"github.com/ipagrab/ipagrab/internal/toolcheck"
)

// NewApp creates and configures the main CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:     "ipagrab",
		Usage:    "Download and manage iOS app packages through ipatool",
		Version:  "1.0.0",
		Compiled: time.Now(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
				EnvVars: []string{"IPAGRAB_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "log level (debug, info, warn, error)",
				EnvVars: []string{"IPAGRAB_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "log format (text, json)",
				EnvVars: []string{"IPAGRAB_LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "download",
				Usage:     "Download an app package by bundle identifier",
				ArgsUsage: "<bundle-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output-dir",
						Aliases: []string{"o"},
						Usage:   "output directory (overrides config)",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "display name (skips catalog lookup for naming)",
					},
					&cli.StringFlag{
						Name:  "app-version",
						Usage: "version string used in the final filename",
					},
					&cli.StringFlag{
						Name:  "price",
						Usage: "price as a decimal string; above zero marks a paid app",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "overwrite existing files without asking",
					},
					&cli.BoolFlag{
						Name:  "quiet",
						Usage: "suppress progress output",
					},
				},
				Action: downloadCommand,
			},
			{
				Name:      "search",
				Usage:     "Search the App Store catalog",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Value:   10,
						Usage:   "maximum number of results",
					},
				},
				Action: searchCommand,
			},
			{
				Name:      "purchase",
				Usage:     "Obtain a license for a free app without downloading it",
				ArgsUsage: "<bundle-id>",
				Action:    purchaseCommand,
			},
			{
				Name:      "lookup",
				Usage:     "Show catalog metadata for a bundle identifier",
				ArgsUsage: "<bundle-id>",
				Action:    lookupCommand,
			},
			{
				Name:  "history",
				Usage: "Inspect download history",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List recorded downloads",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "bundle-id",
								Usage: "filter by bundle identifier",
							},
							&cli.StringFlag{
								Name:  "status",
								Usage: "filter by status (succeeded, failed)",
							},
						},
						Action: historyListCommand,
					},
					{
						Name:  "export",
						Usage: "Export download history",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "format",
								Value: "csv",
								Usage: "export format (csv, markdown)",
							},
						},
						Action: historyExportCommand,
					},
				},
			},
			{
				Name:  "favorites",
				Usage: "Manage bookmarked apps",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Bookmark an app",
						ArgsUsage: "<bundle-id>",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Usage: "display name"},
							&cli.StringFlag{Name: "note", Usage: "free-form note"},
						},
						Action: favoritesAddCommand,
					},
					{
						Name:      "rm",
						Usage:     "Remove a bookmark",
						ArgsUsage: "<bundle-id>",
						Action:    favoritesRemoveCommand,
					},
					{
						Name:   "list",
						Usage:  "List bookmarks",
						Action: favoritesListCommand,
					},
				},
			},
			{
				Name:   "doctor",
				Usage:  "Check the installed ipatool binary and session",
				Action: doctorCommand,
			},
		},
	}
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := c.Args().First()
	if arg == "" {
		return "", fmt.Errorf("missing required argument: %s", name)
	}
	return arg, nil
}

// downloadCommand implements the download command.
func downloadCommand(c *cli.Context) error {
	bundleID, err := requireArg(c, "bundle-id")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	req := download.Request{
		BundleID:   bundleID,
		AppName:    c.String("name"),
		AppVersion: c.String("app-version"),
		Price:      c.String("price"),
	}
	if req.AppName == "" || req.Price == "" {
		if app, lerr := env.lookup.Lookup(c.Context, bundleID); lerr == nil && app != nil {
			if req.AppName == "" {
				req.AppName = app.TrackName
			}
			if req.AppVersion == "" {
				req.AppVersion = app.Version
			}
			if req.Price == "" {
				req.Price = app.PriceString()
			}
			req.ExpectedSize = app.SizeBytes()
		}
	}

	path, err := env.orchestrator.Download(c.Context, req)
	if err != nil {
		if errors.Is(err, download.ErrAuthRequired) {
			return cli.Exit("Not signed in. Run: ipatool auth login", 2)
		}
		return cli.Exit(err.Error(), 1)
	}
	if path == "" {
		// Deliberate skip; the notifier already explained why.
		return nil
	}
	return nil
}

// searchCommand implements the search command.
func searchCommand(c *cli.Context) error {
	query, err := requireArg(c, "query")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	results, err := env.tool.Search(c.Context, query, c.Int("limit"))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if rerr := env.db.RememberSearch(query); rerr != nil {
		env.logger.Warn("failed to remember search", "error", rerr)
	}

	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "No results.")
		return nil
	}
	for _, r := range results {
		price := "free"
		if r.Price > 0 {
			price = strconv.FormatFloat(r.Price, 'f', 2, 64)
		}
		fmt.Fprintf(c.App.Writer, "%-40s %-12s %-8s %s\n", r.BundleID, r.Version, price, r.Name)
	}
	return nil
}

// purchaseCommand implements the purchase command.
func purchaseCommand(c *cli.Context) error {
	bundleID, err := requireArg(c, "bundle-id")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	name := bundleID
	if app, lerr := env.lookup.Lookup(c.Context, bundleID); lerr == nil && app != nil {
		name = app.TrackName
	}

	outcome := env.tool.Purchase(c.Context, bundleID, name)
	fmt.Fprintln(c.App.Writer, outcome.Message)
	if outcome.AuthRequired {
		return cli.Exit("Not signed in. Run: ipatool auth login", 2)
	}
	if !outcome.Acquired {
		return cli.Exit("", 1)
	}
	return nil
}

// lookupCommand implements the lookup command.
func lookupCommand(c *cli.Context) error {
	bundleID, err := requireArg(c, "bundle-id")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	app, err := env.lookup.Lookup(c.Context, bundleID)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if app == nil {
		fmt.Fprintf(c.App.Writer, "No catalog entry for %s.\n", bundleID)
		return nil
	}

	fmt.Fprintf(c.App.Writer, "Name:     %s\n", app.TrackName)
	fmt.Fprintf(c.App.Writer, "Bundle:   %s\n", app.BundleID)
	fmt.Fprintf(c.App.Writer, "Version:  %s\n", app.Version)
	fmt.Fprintf(c.App.Writer, "Price:    %s\n", app.FormattedPrice)
	fmt.Fprintf(c.App.Writer, "Seller:   %s\n", app.SellerName)
	if size := app.SizeBytes(); size > 0 {
		fmt.Fprintf(c.App.Writer, "Size:     %s\n", humanize.IBytes(uint64(size)))
	}
	if last, lerr := env.db.LastSuccessful(bundleID); lerr == nil {
		fmt.Fprintf(c.App.Writer, "Last downloaded: %s (version %s)\n",
			last.DownloadedAt.Format("2006-01-02 15:04"), last.Version)
		if app.NewerThan(last.Version) {
			fmt.Fprintf(c.App.Writer, "A newer version is available.\n")
		}
	}
	return nil
}

// historyListCommand implements history list.
func historyListCommand(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	var rows []*history.Download
	switch {
	case c.String("bundle-id") != "":
		rows, err = env.db.ListByBundle(c.String("bundle-id"))
	case c.String("status") != "":
		rows, err = env.db.ListByStatus(c.String("status"))
	default:
		rows, err = env.db.ListAll()
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if len(rows) == 0 {
		fmt.Fprintln(c.App.Writer, "No downloads recorded.")
		return nil
	}
	for _, d := range rows {
		name := d.Name
		if name == "" {
			name = d.BundleID
		}
		size := ""
		if d.SizeBytes > 0 {
			size = humanize.IBytes(uint64(d.SizeBytes))
		}
		fmt.Fprintf(c.App.Writer, "%s  %-9s %-30s %-10s %s\n",
			d.DownloadedAt.Format("2006-01-02 15:04"), d.Status, name, d.Version, size)
	}
	return nil
}

// historyExportCommand implements history export.
func historyExportCommand(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	rows, err := env.db.ListAll()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	switch c.String("format") {
	case "csv":
		err = history.ExportCSV(c.App.Writer, rows)
	case "markdown", "md":
		err = history.ExportMarkdown(c.App.Writer, rows)
	default:
		return fmt.Errorf("unknown export format %q", c.String("format"))
	}
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// favoritesAddCommand implements favorites add.
func favoritesAddCommand(c *cli.Context) error {
	bundleID, err := requireArg(c, "bundle-id")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	name := c.String("name")
	if name == "" {
		if app, lerr := env.lookup.Lookup(c.Context, bundleID); lerr == nil && app != nil {
			name = app.TrackName
		}
	}
	if err := env.db.AddFavorite(bundleID, name, c.String("note")); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Bookmarked %s.\n", bundleID)
	return nil
}

// favoritesRemoveCommand implements favorites rm.
func favoritesRemoveCommand(c *cli.Context) error {
	bundleID, err := requireArg(c, "bundle-id")
	if err != nil {
		return err
	}

	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.db.RemoveFavorite(bundleID); err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return cli.Exit(fmt.Sprintf("%s is not bookmarked.", bundleID), 1)
		}
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "Removed %s.\n", bundleID)
	return nil
}

// favoritesListCommand implements favorites list.
func favoritesListCommand(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	favs, err := env.db.ListFavorites()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if len(favs) == 0 {
		fmt.Fprintln(c.App.Writer, "No bookmarks.")
		return nil
	}
	for _, f := range favs {
		line := f.BundleID
		if f.Name != "" {
			line = fmt.Sprintf("%-40s %s", f.BundleID, f.Name)
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	return nil
}

// doctorCommand implements the doctor command.
func doctorCommand(c *cli.Context) error {
	env, err := buildEnv(c)
	if err != nil {
		return err
	}
	defer env.Close()

	var lister toolcheck.ReleaseLister
	if env.cfg.Ipatool.CheckUpdates {
		lister = toolcheck.NewGitHubLister()
	}
	checker := toolcheck.New(env.tool, lister)
	report, err := checker.Check(c.Context)
	if err != nil {
		if errors.Is(err, toolcheck.ErrToolNotFound) {
			return cli.Exit(fmt.Sprintf("ipatool is not installed or not on PATH (looked for %q).", env.cfg.Ipatool.GetPath()), 1)
		}
		return cli.Exit(err.Error(), 1)
	}

	fmt.Fprintf(c.App.Writer, "ipatool %s found at %s\n", report.Installed, env.cfg.Ipatool.GetPath())
	for _, note := range report.Notes {
		fmt.Fprintf(c.App.Writer, "note: %s\n", note)
	}

	if err := env.tool.CheckSession(c.Context); err != nil {
		fmt.Fprintln(c.App.Writer, "App Store session: not signed in. Run: ipatool auth login")
	} else {
		fmt.Fprintln(c.App.Writer, "App Store session: OK")
	}

	dir := env.cfg.Download.GetDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(c.App.Writer, "download directory %s: not writable (%v)\n", dir, err)
	} else {
		fmt.Fprintf(c.App.Writer, "download directory %s: OK\n", dir)
	}
	return nil
}
