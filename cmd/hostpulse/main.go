package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dushixiang/hostpulse/internal/app"
	"github.com/dushixiang/hostpulse/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	port       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hostpulse",
		Short: "Host metrics collection and exposition service",
		Long:  `Collects host CPU, memory, network, uptime and load metrics, exposes them as JSON and Prometheus text, and aggregates snapshots from peer instances.`,
		RunE:  runServe,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "Listen port, overrides config and PORT")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the metrics server in the foreground or under the service manager",
		RunE:  runServe,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd, serviceCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.AppConfig{}, err
	}
	if port != 0 {
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			return config.AppConfig{}, err
		}
	}
	return cfg, nil
}

func newManager() (*app.ServiceManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewServiceManager(cfg, serviceArgs())
}

// serviceArgs 服务管理器拉起进程时使用的参数
func serviceArgs() []string {
	args := []string{"serve"}
	if configPath != "" {
		path, err := filepath.Abs(configPath)
		if err != nil {
			path = configPath
		}
		args = append(args, "--config", path)
	}
	if port != 0 {
		args = append(args, "--port", strconv.Itoa(port))
	}
	return args
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, err := newManager()
	if err != nil {
		return err
	}
	return mgr.Run()
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage hostpulse as a system service",
	}

	for _, action := range app.Actions() {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the system service", action),
			RunE: func(cmd *cobra.Command, args []string) error {
				mgr, err := newManager()
				if err != nil {
					return err
				}
				if err := mgr.Control(action); err != nil {
					return fmt.Errorf("%s failed: %w", action, err)
				}
				fmt.Printf("service %s: ok\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show service status",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			status, err := mgr.Status()
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			fmt.Println(status)
			return nil
		},
	})
	return cmd
}
