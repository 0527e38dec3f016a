package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/korou13456/mahjong-mini-backend-sub000/internal/bootstrap"
	gormpersistence "github.com/korou13456/mahjong-mini-backend-sub000/internal/infra/persistence/gorm"
	"github.com/korou13456/mahjong-mini-backend-sub000/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:          "mahjong-server",
		Short:        "Mahjong table booking backend",
		SilenceUsage: true,
		RunE:         serve.RunE, // 不带子命令时启动服务
	}
	root.AddCommand(serve, newMigrateCmd(), newSeedRobotsCmd(), newCreateAdminCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket hub and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			app, err := bootstrap.NewApp(cfg)
			if err != nil {
				logrus.Errorf("Failed to initialize application: %v", err)
				return err
			}
			app.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			logrus.Info("Shutdown signal received...")

			app.Shutdown()
			return nil
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadMySQLConfig()
			if err != nil {
				return err
			}
			bootstrap.NewLogger(cfg)
			_, err = bootstrap.OpenDatabase(cfg)
			return err
		},
	}
}

func newSeedRobotsCmd() *cobra.Command {
	var (
		count int
		start int64
	)
	cmd := &cobra.Command{
		Use:   "seed-robots",
		Short: "Provision robot users and pool rows (idempotent)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start >= 0 {
				return errors.New("--start must be negative")
			}
			cfg, err := loadMySQLConfig()
			if err != nil {
				return err
			}
			bootstrap.NewLogger(cfg)
			db, err := bootstrap.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			robots := service.NewRobotService(gormpersistence.NewUnitOfWork(db), nil, cfg.Robot, nil, nil, nil)
			added, err := robots.SeedRobots(cmd.Context(), count, start)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d robots (%d requested)\n", added, count)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 20, "number of robots")
	cmd.Flags().Int64Var(&start, "start", -1000, "first robot id, later ids count down")
	return cmd
}

func newCreateAdminCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account or reset its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadMySQLConfig()
			if err != nil {
				return err
			}
			bootstrap.NewLogger(cfg)
			db, err := bootstrap.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			auth, err := service.NewAuthService(gormpersistence.NewUnitOfWork(db), nil, cfg.JWTSecret, cfg.JWTExpiryHours)
			if err != nil {
				return err
			}
			if err := auth.UpsertAdmin(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %q saved\n", username)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// loadMySQLConfig 维护命令只对 MySQL 有意义
func loadMySQLConfig() (*bootstrap.Config, error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != bootstrap.StoreDriverMySQL {
		return nil, fmt.Errorf("this command requires STORE_DRIVER=mysql, got %q", cfg.StoreDriver)
	}
	return cfg, nil
}
