package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	dotenv "github.com/joho/godotenv"
	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orai-bridge/relayer/internal/clients"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orai-relayer",
	Short: "Relayer for OBridge transfers from Oraichain to Solana",
	Long: `Watches Oraichain for bridge send_packet events, confirms them on the OBridge
ledger and pays them out through the Wormhole token bridge on an EVM chain.`,
	SilenceUsage: true,
}

func init() {
	// Tentatively load .env file
	_ = dotenv.Load()

	rootCmd.PersistentFlags().Bool(
		"debug",
		false,
		"Enables debug output.")

	rootCmd.PersistentFlags().String(
		"log-format",
		"console",
		"Log output format (console, json, logfmt).")

	rootCmd.PersistentFlags().String(
		"alert-webhook-url",
		"",
		"Webhook that receives error level log entries (optional)")

	rootCmd.PersistentFlags().String(
		"config",
		"",
		"Path to a YAML config file (optional)")

	// Store configuration (shared by relay and query)
	rootCmd.PersistentFlags().String(
		"db-driver",
		"sqlite",
		"Processed transfer store backend (sqlite, mysql, leveldb)")

	rootCmd.PersistentFlags().String(
		"db-dsn",
		"relayer.db",
		"Database file for sqlite, directory for leveldb or connection string for mysql")

	// Bind flags to viper for env variable support
	_ = viper.BindPFlag("alert-webhook-url", rootCmd.PersistentFlags().Lookup("alert-webhook-url"))
	_ = viper.BindPFlag("db.driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("db.dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))

	cobra.OnInitialize(initConfig)
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("orai_relayer")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func printBanner() {
	colours := []string{
		"\033[38;5;214m", // Orange
		"\033[38;5;208m", // Dark Orange
		"\033[38;5;202m", // Orange Red
		"\033[38;5;196m", // Red
		"\033[38;5;160m", // Dark Red
	}
	banner := `
  ____  ____  ___  _____    ____  ____  __      __   _  _  ____  ____
 / __ \(  _ \/ __)(  _  )  (  _ \( ___)(  )    /__\ ( \/ )( ___)(  _ \
( (__) ))   / (_-. )(_)(    )   / )__)  )(__  /(__)\ \  /  )__)  )   /
 \____/(_)\_)\___/(_____)  (_)\_)(____)(____)(__)(__)(__) (____)(_)\_)
`
	lines := strings.Split(banner, "\n")

	// remove empty lines
	for i := 0; i < len(lines); i++ {
		if lines[i] == "" {
			lines = append(lines[:i], lines[i+1:]...)
			i--
		}
	}

	for i, line := range lines {
		fmt.Printf("%s%s\n", colours[i%len(colours)], line)
	}

	fmt.Println("\033[0m") // Reset
}

func configureLogging(cmd *cobra.Command, _ []string) (*zap.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	format, _ := cmd.Flags().GetString("log-format")

	logger, err := newRootLogger(format, debug, viper.GetString("alert-webhook-url"))
	if err != nil {
		return nil, err
	}

	// Replace the global logger
	zap.ReplaceGlobals(logger)

	return logger, nil
}

func newRootLogger(format string, debug bool, alertWebhookURL string) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format("2006-01-02T15:04:05.000000Z07:00"))
	}

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(config)
	case "console", "":
		if debug {
			config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		enc = zapcore.NewConsoleEncoder(config)
	case "logfmt":
		enc = zaplogfmt.NewEncoder(config)
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)

	if alertWebhookURL != "" {
		core = zapcore.NewTee(core, clients.NewAlertCore(clients.NewAlertClient(alertWebhookURL), zap.ErrorLevel))
	}

	var opts []zap.Option
	if debug {
		opts = append(opts, zap.Development(), zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}
