package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goSession "github.com/moneysab/goSession"
	"github.com/moneysab/goSession/client"
	"github.com/urfave/cli/v2"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in and keep the session",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "username",
				Aliases:  []string{"u"},
				Usage:    "Account username",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password",
				EnvVars: []string{"GOSESSION_PASSWORD"},
			},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			password := c.String("password")
			if password == "" {
				return errors.New("password is required, use --password or GOSESSION_PASSWORD")
			}
			u, err := rt.session.Login(c.Context, c.String("username"), password)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, u)
			}
			fmt.Fprintf(c.App.Writer, "logged in as %s\n", u.Username)
			return nil
		}),
	}
}

func whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			ctx := c.Context
			if err := rt.restore(ctx); err != nil {
				return err
			}
			s := rt.session
			v := whoami{
				State:       s.State().String(),
				User:        s.User(),
				Roles:       s.Roles(ctx),
				Permissions: s.Permissions(ctx),
				ExpiresIn:   s.Tokens().RemainingSeconds(ctx),
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, v)
			}
			printWhoami(c.App.Writer, v)
			return nil
		}),
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Exchange the current token for a new one",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			ctx := c.Context
			if err := rt.restore(ctx); err != nil {
				return err
			}
			if _, err := rt.session.Refresh(ctx); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "token refreshed, expires in %ds\n", rt.session.Tokens().RemainingSeconds(ctx))
			return nil
		}),
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Revoke the session on the server and forget it locally",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			ctx := c.Context
			if err := rt.session.Init(ctx); err != nil {
				return err
			}
			if err := rt.session.SignOut(ctx); err != nil {
				rt.log.Warn("server sign-out failed, local session cleared", "error", err)
			}
			fmt.Fprintln(c.App.Writer, "logged out")
			return nil
		}),
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Evaluate the navigation gate for a path",
		ArgsUsage: "PATH",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "role",
				Usage: "Required role, repeatable; any one passes",
			},
			&cli.StringFlag{
				Name:  "permission",
				Usage: "Required permission as resource:action",
			},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return errors.New("check takes exactly one PATH")
			}
			ctx := c.Context
			if err := rt.session.Init(ctx); err != nil {
				return err
			}
			d := rt.session.Gate().Check(ctx, goSession.Route{
				Path:               c.Args().First(),
				RequiredRoles:      c.StringSlice("role"),
				RequiredPermission: c.String("permission"),
			})
			if c.Bool("json") {
				return printJSON(c.App.Writer, d)
			}
			if d.Allowed {
				fmt.Fprintln(c.App.Writer, "allowed")
				return nil
			}
			fmt.Fprintf(c.App.Writer, "denied (%s), redirect to %s\n", d.Reason, d.RedirectTo)
			return nil
		}),
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "GET an API path with the session token and print the JSON answer",
		ArgsUsage: "PATH",
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() != 1 {
				return errors.New("get takes exactly one PATH")
			}
			ctx := c.Context
			if err := rt.restore(ctx); err != nil {
				return err
			}
			var body json.RawMessage
			if err := rt.data.Get(ctx, c.Args().First(), nil, &body); err != nil {
				return err
			}
			if len(body) == 0 {
				return nil
			}
			_, err := fmt.Fprintln(c.App.Writer, string(body))
			return err
		}),
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload settlement CSV files for a card network",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Usage:   "visa or mastercard",
				Value:   string(client.NetworkVisa),
			},
		},
		Action: withRuntime(func(c *cli.Context, rt *runtime) error {
			if c.NArg() == 0 {
				return errors.New("upload needs at least one FILE")
			}
			ctx := c.Context
			if err := rt.restore(ctx); err != nil {
				return err
			}

			files := make([]client.File, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				files = append(files, client.File{Name: filepath.Base(path), Data: data})
			}

			up := client.NewUploader(rt.data, rt.log, rt.session.Metrics())
			res, err := up.Upload(ctx, client.Network(c.String("network")), files...)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, map[string]any{
					"strategy":  res.Strategy,
					"files":     len(files),
					"responses": len(res.Responses),
				})
			}
			fmt.Fprintf(c.App.Writer, "uploaded %d file(s) using %s\n", len(files), res.Strategy)
			return nil
		}),
	}
}
