package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/thoughtnest/nestclient/internal"
	"github.com/thoughtnest/nestclient/internal/apperr"
	"github.com/thoughtnest/nestclient/internal/articles"
	"github.com/thoughtnest/nestclient/internal/collection"
	"github.com/thoughtnest/nestclient/internal/mcpserver"
	pkgconfig "github.com/thoughtnest/nestclient/pkg/config"
)

// loadConfig reads the config file, if present, and applies the base URL
// override from the flag or its environment variable.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if u := strings.TrimSpace(cmd.String("api-base-url")); u != "" {
		cfg.API.BaseURL = u
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid api base url: %w", err)
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// withStack runs fn against a stack whose logs go to stderr, keeping
// stdout for command output.
func withStack(ctx context.Context, cmd *cli.Command, fn func(*internal.Stack, *internal.Config) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level := cfg.App.LogLevel
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	stack, err := internal.NewStack(ctx, cfg, internal.NewLogger(os.Stderr, level))
	if err != nil {
		return err
	}
	defer stack.Close()
	return userError(fn(stack, cfg))
}

// userError keeps the message a user should see and drops the wrapping.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return errors.New(apperr.Message(err, apperr.MsgGeneric))
	}
	return err
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Log in and store the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "identifier",
				Aliases:  []string{"u"},
				Usage:    "Email or username",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "Password",
				Sources:  cli.EnvVars("THOUGHTNEST_PASSWORD"),
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStack(ctx, cmd, func(st *internal.Stack, _ *internal.Config) error {
				id, err := st.Account.Login(ctx, cmd.String("identifier"), cmd.String("password"))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.Root().Writer, "Logged in as %s\n", id.Username)
				return nil
			})
		},
	}
}

func logout(ctx context.Context, cmd *cli.Command) error {
	return withStack(ctx, cmd, func(st *internal.Stack, _ *internal.Config) error {
		if err := st.Account.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.Root().Writer, "Logged out")
		return nil
	})
}

func whoami(ctx context.Context, cmd *cli.Command) error {
	return withStack(ctx, cmd, func(st *internal.Stack, _ *internal.Config) error {
		name, ok := st.Store.Username(ctx)
		if !ok || !st.Store.IsLoggedIn(ctx) {
			return errors.New("not logged in")
		}
		fmt.Fprintln(cmd.Root().Writer, name)
		return nil
	})
}

type listFunc func(ctx context.Context, st *internal.Stack, cfg *internal.Config, page int, w io.Writer) error

func listCommand(name, usage string, fn listFunc) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "page",
				Usage: "1-based page number",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withStack(ctx, cmd, func(st *internal.Stack, cfg *internal.Config) error {
				return fn(ctx, st, cfg, int(cmd.Int("page")), cmd.Root().Writer)
			})
		},
	}
}

func listMine(ctx context.Context, st *internal.Stack, cfg *internal.Config, page int, w io.Writer) error {
	mine, err := st.Articles.ListMine(ctx)
	if err != nil {
		return err
	}
	total, published := articles.Stats(mine)
	entries := collection.FilterMine(mine, "")
	p := collection.Paginate(len(entries), cfg.Articles.PageSize, page)
	if err := printEntries(w, collection.Slice(entries, p)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\npage %d of %d, %d articles, %d published\n", p.Number, p.Total, total, published)
	return err
}

func listPublic(ctx context.Context, st *internal.Stack, cfg *internal.Config, page int, w io.Writer) error {
	public, err := st.Articles.ListPublic(ctx)
	if err != nil {
		return err
	}
	entries := collection.MergePublic(public)
	p := collection.Paginate(len(entries), cfg.Articles.PageSize, page)
	if err := printEntries(w, collection.Slice(entries, p)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\npage %d of %d\n", p.Number, p.Total)
	return err
}

func printEntries(w io.Writer, entries []collection.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPUBLISHED\tDATE\tAUTHOR\tTITLE")
	for _, e := range entries {
		date := "-"
		if !e.Date.IsZero() {
			date = e.Date.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", e.ID, e.Published, date, e.AuthorUsername, e.Title)
	}
	return tw.Flush()
}

func search(_ context.Context, cmd *cli.Command) error {
	term := strings.Join(cmd.Args().Slice(), " ")
	route, ok := collection.ExactMatch(term)
	if !ok {
		return errors.New(collection.MsgNoMatch)
	}
	fmt.Fprintln(cmd.Root().Writer, route)
	return nil
}

func articleArg(cmd *cli.Command) (articles.ID, error) {
	id, err := articles.ParseID(cmd.Args().First())
	if err != nil {
		return "", fmt.Errorf("an article id is required: %w", err)
	}
	return id, nil
}

func publish(ctx context.Context, cmd *cli.Command) error {
	id, err := articleArg(cmd)
	if err != nil {
		return err
	}
	return withStack(ctx, cmd, func(st *internal.Stack, _ *internal.Config) error {
		res, err := st.Articles.TogglePublish(ctx, id, cmd.Bool("current"))
		if err != nil {
			return err
		}
		for _, refetchErr := range []error{res.MineErr, res.PublicErr} {
			if refetchErr != nil {
				st.Logger.Warn("listing refetch after publish failed", slog.String("error", refetchErr.Error()))
			}
		}
		state := "published"
		if !res.Published {
			state = "unpublished"
		}
		fmt.Fprintf(cmd.Root().Writer, "Article %s %s\n", id, state)
		return nil
	})
}

func remove(ctx context.Context, cmd *cli.Command) error {
	id, err := articleArg(cmd)
	if err != nil {
		return err
	}
	return withStack(ctx, cmd, func(st *internal.Stack, _ *internal.Config) error {
		if err := st.Articles.Remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "Article %s deleted\n", id)
		return nil
	})
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	return withStack(ctx, cmd, func(st *internal.Stack, cfg *internal.Config) error {
		return mcpserver.New(st.Articles, cfg.Articles.PageSize).ServeStdio()
	})
}
