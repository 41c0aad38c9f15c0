// submodule cmd contains command definitions
package main

import (
	"github.com/nagiyu/niconico-mylist-assistant/internal/ui"
	"github.com/urfave/cli/v3"
)

// newApp builds the root command. Flags declared here apply to every subcommand.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "nma",
		Usage:   "Manage niconico music bookmarks and register them to mylists",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Work on the configured store directly instead of a running server",
			},
			&cli.StringFlag{
				Name:  "owner",
				Usage: "Owner of the records when --local is set",
				Value: defaultOwner,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print JSON output",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Before:   r.before,
		Commands: r.register(),
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "term",
			Aliases: []string{"q"},
			Usage:   "Match a music id prefix or part of the title",
		},
		&cli.StringFlag{
			Name:  "favorite",
			Usage: "Favorite filter: any, only or exclude",
			Value: "any",
		},
		&cli.StringFlag{
			Name:  "skip",
			Usage: "Skip filter: any, only or exclude",
			Value: "any",
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "File format: csv, json, markdown or txt (default: from the file extension)",
	}
}

// setupCommand handles setup operations for the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config file from the built-in template",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path", Value: "config.toml"},
				},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:  "migrations",
				Usage: "Show applied migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration first",
					},
				},
				Action: r.SetupMigrations,
			},
		},
	}
}

// authCommand handles the Google sign-in of the CLI.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in with Google",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in through the browser and save the token",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the sign-in URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Remove the saved token",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Check the server and the saved token",
				Action: r.AuthStatus,
			},
		},
	}
}

// serveCommand runs the music API server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the music API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// musicCommand handles the bookmark list.
func musicCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "music",
		Aliases: []string{"m"},
		Usage:   "Music bookmark operations",
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List bookmarks, 20 per page",
				Flags: append(queryFlags(),
					&cli.IntFlag{
						Name:    "page",
						Aliases: []string{"p"},
						Usage:   "Page to show",
						Value:   1,
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Show every matching entry",
					},
				),
				Action: r.MusicList,
			},
			{
				Name:  "add",
				Usage: "Bookmark a video; the title is looked up when omitted",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "music_id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "Title to store"},
					&cli.BoolFlag{Name: "favorite", Usage: "Mark as favorite"},
					&cli.BoolFlag{Name: "skip", Usage: "Exclude from auto registration"},
					&cli.StringFlag{Name: "memo", Usage: "Free-form note"},
				},
				Action: r.MusicAdd,
			},
			{
				Name:  "edit",
				Usage: "Change the title or settings of a bookmark",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "music_common_id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Usage: "New title"},
					&cli.BoolFlag{Name: "favorite", Usage: "Favorite flag"},
					&cli.BoolFlag{Name: "skip", Usage: "Skip flag"},
					&cli.StringFlag{Name: "memo", Usage: "New memo"},
				},
				Action: r.MusicEdit,
			},
			{
				Name:    "delete",
				Aliases: []string{"rm"},
				Usage:   "Remove a bookmark",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "music_common_id"},
				},
				Action: r.MusicDelete,
			},
			{
				Name:  "import",
				Usage: "Bulk import bookmarks from a file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					formatFlag(),
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent title lookups",
						Value: 4,
					},
				},
				Action: r.MusicImport,
			},
			{
				Name:  "export",
				Usage: "Export bookmarks to a file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags:  append(queryFlags(), formatFlag()),
				Action: r.MusicExport,
			},
			{
				Name:  "search",
				Usage: "Search niconico for videos",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "keyword"},
				},
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "add",
						Usage: "Bookmark every result that is not in the list yet",
					},
				},
				Action: r.MusicSearch,
			},
			{
				Name:  "info",
				Usage: "Look up the title of a video",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "music_id"},
				},
				Action: r.MusicInfo,
			},
		},
	}
}

// autoCommand registers a random selection of bookmarks to a new mylist.
func autoCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auto",
		Usage: "Register randomly chosen bookmarks to a new niconico mylist",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"n"},
				Usage:   "Number of videos to register",
				Value:   ui.DefaultAutoCount,
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Mylist title (default: dated title)",
			},
			&cli.StringFlag{
				Name:  "email",
				Usage: "niconico account email (default: credentials.niconico.email)",
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "niconico account password (default: credentials.niconico.password)",
			},
		},
		Action: r.Auto,
	}
}

// notificationsCommand shows recent job notifications from the server.
func notificationsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "notifications",
		Usage: "Show recent registration results",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep the connection open and print new notifications",
			},
		},
		Action: r.Notifications,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct calls to the music API",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with a JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "path"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand launches the interactive terminal UI.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Browse and edit bookmarks interactively",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the UI owns the terminal",
				Value: "./tmp/nma-tui.log",
			},
		},
		Action: r.TUI,
	}
}
