package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ruteri/push-relay/api/pushhandler"
	"github.com/ruteri/push-relay/cmd/flags"
	"github.com/ruteri/push-relay/credentials"
	"github.com/ruteri/push-relay/interfaces"
	"github.com/ruteri/push-relay/platform"
	"github.com/ruteri/push-relay/storage"
	"github.com/urfave/cli/v2"
)

var flagRelayAddr *cli.StringFlag = &cli.StringFlag{
	Name:    "relay-addr",
	Value:   "http://127.0.0.1:8080",
	Usage:   "Relay server address to request",
	EnvVars: []string{"RELAY_ADDR"},
}
var flagPhone *cli.StringFlag = &cli.StringFlag{
	Name:     "phone",
	Required: true,
	Usage:    "Phone number the token is registered under",
}
var flagToken *cli.StringFlag = &cli.StringFlag{
	Name:     "token",
	Required: true,
	Usage:    "Device token issued by the messaging SDK",
}
var flagMessage *cli.StringFlag = &cli.StringFlag{
	Name:  "message",
	Usage: "Notification body, the server default when empty",
}
var flagStore *cli.StringSliceFlag = &cli.StringSliceFlag{
	Name:    "store",
	Value:   cli.NewStringSlice(storage.DefaultStoreURI),
	Usage:   "Registration store to read",
	EnvVars: []string{"STORE_URI"},
}
var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "Request timeout",
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	app := &cli.App{
		Name:  "pushctl",
		Usage: "Client and diagnostics for the push relay",
		Flags: flags.LogFlags,
		Commands: []*cli.Command{
			&cli.Command{
				Name:  "register",
				Usage: "Register a device token with the relay",
				Flags: []cli.Flag{flagRelayAddr, flagPhone, flagToken, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := context.WithTimeout(context.Background(), cCtx.Duration(flagTimeout.Name))
					defer cancel()

					client := pushhandler.NewClient(cCtx.String(flagRelayAddr.Name))
					resp, err := client.Register(ctx, cCtx.String(flagPhone.Name), cCtx.String(flagToken.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			&cli.Command{
				Name:  "broadcast",
				Usage: "Send a notification to every registered device",
				Flags: []cli.Flag{flagRelayAddr, flagMessage, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel := context.WithTimeout(context.Background(), cCtx.Duration(flagTimeout.Name))
					defer cancel()

					client := pushhandler.NewClient(cCtx.String(flagRelayAddr.Name))
					resp, err := client.Broadcast(ctx, cCtx.String(flagMessage.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			&cli.Command{
				Name:        "check-credentials",
				Usage:       "Load and validate a service account without starting the server",
				Description: "Prints the service account without its private key.",
				Flags:       []cli.Flag{flags.CredentialsFlag, flags.EnvFileFlag, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					if err := flags.LoadEnvFile(cCtx.String(flags.EnvFileFlag.Name), logger); err != nil {
						return err
					}

					src, err := credentials.SourceFor(cCtx.String(flags.CredentialsFlag.Name), logger)
					if err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(context.Background(), cCtx.Duration(flagTimeout.Name))
					defer cancel()

					sa, err := credentials.Load(ctx, src)
					if err != nil {
						return fmt.Errorf("%s: %w", src.Name(), err)
					}

					return printJSON(map[string]string{
						"source":         src.Name(),
						"type":           sa.Type,
						"project_id":     sa.ProjectID,
						"client_email":   sa.ClientEmail,
						"private_key_id": sa.PrivateKeyID,
						"token_uri":      sa.TokenURI,
					})
				},
			},
			&cli.Command{
				Name:  "list",
				Usage: "List stored registrations, token prefixes only",
				Flags: []cli.Flag{flags.CredentialsFlag, flags.EnvFileFlag, flagStore, flagTimeout},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					if err := flags.LoadEnvFile(cCtx.String(flags.EnvFileFlag.Name), logger); err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(context.Background(), cCtx.Duration(flagTimeout.Name))
					defer cancel()

					handle := platform.NewBootstrapper(platform.Config{
						CredentialSource: cCtx.String(flags.CredentialsFlag.Name),
						StoreURIs:        cCtx.StringSlice(flagStore.Name),
						DryRun:           true,
					}, logger).Handle(ctx)

					client, err := handle.Client()
					if err != nil {
						return err
					}
					defer client.Close()

					registrations, err := client.Store.List(ctx)
					if err != nil {
						return err
					}

					out := make([]interfaces.Registration, len(registrations))
					for i, reg := range registrations {
						out[i] = interfaces.Registration{
							Key:       reg.Key,
							Token:     interfaces.TokenPrefix(reg.Token),
							Timestamp: reg.Timestamp,
						}
					}
					return printJSON(out)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
