package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/f-sync/listsync/internal/bootstrap"
	"github.com/f-sync/listsync/internal/config"
)

const (
	commandUse                  = "sync"
	commandShortDescription     = "Run one friends to list synchronization and exit"
	flagConfigName              = "config"
	flagConfigDescription       = "Path to an optional configuration file"
	flagListName                = "list-name"
	flagListDescription         = "Name of the list that mirrors the friend set"
	flagArchiveName             = "archive"
	flagArchiveDescription      = "Upload the fetched friend ids as CSV"
	flagTimeoutName             = "timeout"
	flagTimeoutDescription      = "Abort the run after this duration (0 disables)"
	jsonIndent                  = "  "
	errMessageLoggerCreate      = "create logger"
	errMessageReadConfig        = "read configuration file"
	errMessageLoadConfig        = "load configuration"
	errMessageApplicationCreate = "create application"
	errMessageRun               = "sync run"
	errMessageWriteSummary      = "write summary"
)

func main() {
	cobra.CheckErr(newSyncCommand().Execute())
}

func newSyncCommand() *cobra.Command {
	command := &cobra.Command{
		Use:          commandUse,
		Short:        commandShortDescription,
		SilenceUsage: true,
		RunE:         runSyncCommand,
	}

	command.Flags().String(flagConfigName, "", flagConfigDescription)
	command.Flags().String(flagListName, "", flagListDescription)
	command.Flags().Bool(flagArchiveName, true, flagArchiveDescription)
	command.Flags().Duration(flagTimeoutName, 0, flagTimeoutDescription)

	bindFlagToViper(command, flagConfigName, flagConfigName)
	bindFlagToViper(command, config.KeyListName, flagListName)
	bindFlagToViper(command, config.KeyArchiveEnabled, flagArchiveName)
	bindFlagToViper(command, config.KeyRunTimeout, flagTimeoutName)

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

func runSyncCommand(command *cobra.Command, _ []string) error {
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

	runContext, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if configuration.Run.Timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(runContext, configuration.Run.Timeout)
		defer cancel()
	}

	application, err := bootstrap.NewApplication(runContext, configuration, logger, bootstrap.Dependencies{})
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageApplicationCreate, err)
	}
	defer func() {
		_ = application.Close()
	}()

	summary, err := application.Job.Run(runContext)
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageRun, err)
	}

	encoder := json.NewEncoder(command.OutOrStdout())
	encoder.SetIndent("", jsonIndent)
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("%s: %w", errMessageWriteSummary, err)
	}
	return nil
}
