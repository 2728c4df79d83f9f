package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"gunnforge/internal/bootstrap"
	"gunnforge/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newApp(os.Stdin, os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs; it is filled in by Before.
type env struct {
	cfg    config.Config
	repos  *bootstrap.Repositories
	logger *logrus.Logger
}

func newApp(in io.Reader, out io.Writer) *cli.App {
	e := &env{}
	return &cli.App{
		Name:      "gunnforgectl",
		Usage:     "Manage GunnForge member accounts and downloadable files",
		Reader:    in,
		Writer:    out,
		ErrWriter: out,
		// main reports errors; cli must not call os.Exit itself
		ExitErrHandler: func(*cli.Context, error) {},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = bootstrap.NewLogger(cfg.Log.Level)
			e.logger.SetOutput(c.App.ErrWriter)
			e.repos, err = bootstrap.OpenRepositories(c.Context, cfg)
			return err
		},
		After: func(c *cli.Context) error {
			if e.repos == nil {
				return nil
			}
			return e.repos.Close()
		},
		Commands: []*cli.Command{
			usersCmd(e),
			filesCmd(e),
		},
	}
}
