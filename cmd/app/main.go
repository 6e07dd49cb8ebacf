package main

import (
	"context"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "nestclient",
		Usage:  "Local frontend, CLI and MCP server for the ThoughtNest blogging platform",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "api-base-url",
				Usage:   "ThoughtNest backend base URL, including the /api prefix",
				Sources: cli.EnvVars("THOUGHTNEST_API_BASE_URL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the local frontend (default)",
				Action: serve,
			},
			loginCommand(),
			{
				Name:   "logout",
				Usage:  "Clear the stored session",
				Action: logout,
			},
			{
				Name:   "whoami",
				Usage:  "Print the logged-in user",
				Action: whoami,
			},
			listCommand("mine", "List your articles", listMine),
			listCommand("public", "List published articles and the built-in catalogue", listPublic),
			{
				Name:      "search",
				Usage:     "Find a catalogue article by its exact title",
				ArgsUsage: "<term>",
				Action:    search,
			},
			{
				Name:      "publish",
				Usage:     "Toggle the publish state of an article",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "current",
						Usage: "The article's current publish state",
					},
				},
				Action: publish,
			},
			{
				Name:      "delete",
				Usage:     "Delete one of your articles",
				ArgsUsage: "<id>",
				Action:    remove,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the article tools over MCP stdio",
				Action: serveMCP,
			},
		},
	}
}
