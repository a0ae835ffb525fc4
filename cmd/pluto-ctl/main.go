// Command pluto-ctl is the admin-socket front end: it dials the daemon's
// Unix socket and issues the documented verbs (add, delete, route,
// unroute, up, down, initiate, terminate, status, listen), printing the
// returned RC_* code and message and exiting with a matching process
// exit code.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/PatrisiousHaddad/libreswan/internal/admin"
)

func main() {
	app := &cli.App{
		Name:  "pluto-ctl",
		Usage: "control the pluto-iked daemon over its admin socket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "socket",
				Value: "/var/run/pluto-iked.sock",
				Usage: "path to the daemon's admin socket",
			},
		},
		Commands: []*cli.Command{
			connNameCommand("add", "add a connection"),
			connNameCommand("delete", "remove a connection"),
			connNameCommand("route", "install a connection's routing/shunt policy"),
			connNameCommand("unroute", "remove a connection's routing/shunt policy"),
			connNameCommand("up", "bring a connection's IKE SA up, negotiating if needed"),
			connNameCommand("down", "tear down a connection's IKE and Child SAs"),
			{
				Name:      "initiate",
				Usage:     "initiate a connection, optionally toward an explicit peer address",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "remote-host", Usage: "peer address to initiate toward"},
				},
				Action: func(c *cli.Context) error {
					name, err := requireName(c)
					if err != nil {
						return err
					}
					client, err := dial(c)
					if err != nil {
						return err
					}
					defer client.Close()
					resp, err := client.Initiate(name, c.String("remote-host"))
					return report(c.App.Writer, resp, err)
				},
			},
			connNameCommand("terminate", "terminate a connection's IKE SA"),
			{
				Name:      "status",
				Usage:     "show connection status; omit <name> for all connections",
				ArgsUsage: "[name]",
				Action: func(c *cli.Context) error {
					client, err := dial(c)
					if err != nil {
						return err
					}
					defer client.Close()
					resp, err := client.Status(c.Args().First())
					return report(c.App.Writer, resp, err)
				},
			},
			{
				Name:      "listen",
				Usage:     "stream asynchronous events until interrupted",
				ArgsUsage: "[event ...]",
				Action: func(c *cli.Context) error {
					client, err := dial(c)
					if err != nil {
						return err
					}
					defer client.Close()
					events, err := client.Listen(c.Args().Slice())
					if err != nil {
						return err
					}
					for ev := range events {
						fmt.Fprintf(c.App.Writer, "%s %s: %s\n", ev.Name, ev.ConnName, ev.Message)
					}
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pluto-ctl: %v\n", err)
		os.Exit(int(admin.RC_FATAL))
	}
}

func connNameCommand(verb, usage string) *cli.Command {
	return &cli.Command{
		Name:      verb,
		Usage:     usage,
		ArgsUsage: "<name>",
		Action: func(c *cli.Context) error {
			name, err := requireName(c)
			if err != nil {
				return err
			}
			client, err := dial(c)
			if err != nil {
				return err
			}
			defer client.Close()
			resp, err := doVerb(client, verb, name)
			return report(c.App.Writer, resp, err)
		},
	}
}

func doVerb(client *admin.Client, verb, name string) (admin.Response, error) {
	switch verb {
	case "add":
		return client.Add(name)
	case "delete":
		return client.Delete(name)
	case "route":
		return client.Route(name)
	case "unroute":
		return client.Unroute(name)
	case "up":
		return client.Up(name)
	case "down":
		return client.Down(name)
	case "terminate":
		return client.Terminate(name)
	default:
		return admin.Response{}, fmt.Errorf("pluto-ctl: unknown verb %q", verb)
	}
}

func requireName(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", fmt.Errorf("%s: a connection name is required", c.Command.Name)
	}
	return name, nil
}

func dial(c *cli.Context) (*admin.Client, error) {
	return admin.Dial(c.String("socket"))
}

// report prints resp and translates its return code to a process exit
// code: RC_OK succeeds, everything else exits non-zero with the code's
// ordinal so integration tests can match on it the same way they match
// the return code itself.
func report(w io.Writer, resp admin.Response, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s\n", resp.Code, resp.Message)
	if resp.Code != admin.RC_OK {
		return cli.Exit("", int(resp.Code))
	}
	return nil
}
