package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/bootstrap"
	"github.com/f-sync/listsync/internal/config"
	"github.com/f-sync/listsync/internal/server"
)

const (
	commandUse                  = "server"
	commandShortDescription     = "Serve the friends to list sync trigger over HTTP"
	flagConfigName              = "config"
	flagConfigDescription       = "Path to an optional configuration file"
	flagHostName                = "host"
	flagHostDescription         = "Host interface for the HTTP server"
	flagPortName                = "port"
	flagPortDescription         = "Port for the HTTP server"
	readHeaderTimeout           = 10 * time.Second
	errMessageLoggerCreate      = "create logger"
	errMessageReadConfig        = "read configuration file"
	errMessageLoadConfig        = "load configuration"
	errMessageApplicationCreate = "create application"
	errMessageListenAndServe    = "listen and serve"
	logMessageStartingServer    = "starting HTTP server"
	logMessageServerStopped     = "server stopped"
	logMessageListenError       = "server listen failure"
	logFieldAddress             = "address"
)

func main() {
	cobra.CheckErr(newServerCommand().Execute())
}

func newServerCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   commandUse,
		Short: commandShortDescription,
		RunE:  runServerCommand,
	}

	command.Flags().String(flagConfigName, "", flagConfigDescription)
	command.Flags().String(flagHostName, config.DefaultServerHost, flagHostDescription)
	command.Flags().Int(flagPortName, config.DefaultServerPort, flagPortDescription)

	bindFlagToViper(command, flagConfigName, flagConfigName)
	bindFlagToViper(command, config.KeyServerHost, flagHostName)
	bindFlagToViper(command, config.KeyServerPort, flagPortName)

	cobra.OnInitialize(configureEnvironment)

	return command
}

func bindFlagToViper(command *cobra.Command, key string, flagName string) {
	cobra.CheckErr(viper.BindPFlag(key, command.Flags().Lookup(flagName)))
}

func configureEnvironment() {
	config.SetDefaults(viper.GetViper())
	if configFile := viper.GetString(flagConfigName); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			cobra.CheckErr(fmt.Errorf("%s: %w", errMessageReadConfig, err))
		}
	}
}

func runServerCommand(command *cobra.Command, _ []string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	configuration, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoadConfig, err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	application, err := bootstrap.NewApplication(command.Context(), configuration, logger, bootstrap.Dependencies{Registerer: registry})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageApplicationCreate, err)
	}
	defer func() {
		_ = application.Close()
	}()

	router, err := server.NewRouter(server.RouterConfig{
		Runner:     application.Job,
		Gatherer:   registry,
		RunTimeout: configuration.Run.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	address := configuration.Server.Address()
	logger.Info(logMessageStartingServer, zap.String(logFieldAddress, address))

	httpServer := &http.Server{Addr: address, Handler: router, ReadHeaderTimeout: readHeaderTimeout}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(logMessageListenError, zap.Error(err))
		return fmt.Errorf("%s: %w", errMessageListenAndServe, err)
	}

	logger.Info(logMessageServerStopped)
	return nil
}
