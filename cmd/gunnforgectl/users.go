package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"gunnforge/internal/service"
)

func usersCmd(e *env) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Add, list and remove member accounts",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Register a member (password is prompted for when omitted)",
				ArgsUsage: "<username> [password]",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 || c.NArg() > 2 {
						return cli.Exit("usage: gunnforgectl users add <username> [password]", 1)
					}
					username := c.Args().Get(0)
					password := c.Args().Get(1)
					if password == "" {
						var err error
						password, err = readPassword(c)
						if err != nil {
							return err
						}
					}

					user, err := service.NewUserService(e.repos.Users).Add(c.Context, username, password)
					if err != nil {
						if errors.Is(err, service.ErrUserAlreadyExists) {
							return cli.Exit(fmt.Sprintf("user %q already exists", username), 1)
						}
						return err
					}
					fmt.Fprintf(c.App.Writer, "added user %s (id %s)\n", user.Username, user.ID)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List registered members",
				Action: func(c *cli.Context) error {
					users, err := service.NewUserService(e.repos.Users).List(c.Context)
					if err != nil {
						return err
					}
					for _, u := range users {
						fmt.Fprintf(c.App.Writer, "%s\t%s\n", u.ID, u.Username)
					}
					fmt.Fprintf(c.App.Writer, "total users: %d\n", len(users))
					return nil
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a member",
				ArgsUsage: "<username>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("usage: gunnforgectl users remove <username>", 1)
					}
					user, err := service.NewUserService(e.repos.Users).Remove(c.Context, c.Args().First())
					if err != nil {
						if errors.Is(err, service.ErrUserNotFound) {
							return cli.Exit(fmt.Sprintf("user %q not found", c.Args().First()), 1)
						}
						return err
					}
					fmt.Fprintf(c.App.Writer, "removed user %s (id %s)\n", user.Username, user.ID)
					return nil
				},
			},
		},
	}
}

// readPassword prompts without echo on a terminal and otherwise reads one line.
func readPassword(c *cli.Context) (string, error) {
	if f, ok := c.App.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.App.Writer, "Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.App.Writer)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	sc := bufio.NewScanner(c.App.Reader)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("missing password from stdin")
	}
	password := strings.TrimRight(sc.Text(), "\r\n")
	if password == "" {
		return "", errors.New("missing password from stdin")
	}
	return password, nil
}
