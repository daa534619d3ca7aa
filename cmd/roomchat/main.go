package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roomchat/roomchat-go/internal/config"
	"github.com/roomchat/roomchat-go/internal/log"
	"github.com/roomchat/roomchat-go/internal/tui"
	"github.com/roomchat/roomchat-go/roomchat"
	"github.com/roomchat/roomchat-go/roomchat/rest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger zerolog.Logger
	api    *rest.Client
	user   *rest.UserInfo
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		serverURL  string
		username   string
		password   string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Terminal client for roomchat servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&serverURL, "server", "", "REST API base URL")
	root.PersistentFlags().StringVar(&username, "username", "", "login username")
	root.PersistentFlags().StringVar(&password, "password", "", "login password")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	setup := func(ctx context.Context) (*app, error) {
		logger := log.New("info")
		cfg, path, err := config.Load(logger, configPath)
		if err != nil {
			return nil, err
		}
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if username != "" {
			cfg.Username = username
		}
		if password != "" {
			cfg.Password = password
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger = log.New(cfg.LogLevel)
		logger.Debug().Str("config", path).Str("server", cfg.ServerURL).Msg("configured")

		api := rest.NewClient(cfg.ServerURL)
		user, err := api.Login(ctx, rest.LoginRequest{Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return &app{cfg: cfg, logger: logger, api: api, user: user}, nil
	}

	root.AddCommand(newChatCmd(setup), newRoomsCmd(setup), newPresenceCmd(setup))
	return root
}

type setupFunc func(ctx context.Context) (*app, error)

func newChatCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <room-id>",
		Short: "Join a room and chat interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() {
				logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.api.Logout(logoutCtx)
			}()

			clientCfg := roomchat.DefaultConfig()
			clientCfg.BaseURL = a.cfg.ResolveStreamURL()
			clientCfg.Logger = a.logger
			client := roomchat.NewClient(clientCfg)
			defer client.Close()

			return tui.Run(ctx, tui.Deps{
				Client: client,
				API:    a.api,
				Log:    a.logger,
				RoomID: args[0],
				Self:   a.user,
			})
		},
	}
}

func newRoomsCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			rooms, err := a.api.Rooms(ctx)
			if err != nil {
				return err
			}
			for _, r := range rooms {
				visibility := "private"
				if r.IsPublic {
					visibility = "public"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.ID, visibility, r.Name)
			}
			return nil
		},
	}
}

func newPresenceCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "presence <room-id>",
		Short: "Show who is connected to a room right now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			ids, err := a.api.ActiveUsers(ctx, args[0])
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
