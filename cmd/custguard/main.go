package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	buildVersion      = "unknown"
	cfgFile           string
	logLevel          string
	envPrefix         = "CUSTGUARD"
	defaultConfigName = ".custguard"
	opts              = defaultOptions()
	v                 *viper.Viper
)

// rootCmd represents the root command
var rootCmd = &cobra.Command{
	Use:     "custguard",
	Short:   "Detect anomalous customers and transactions in sales data",
	Version: buildVersion,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		bindFlags(cmd, v)
		return opts.validate()
	},
	SilenceUsage: true,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Flag customers whose RFM profile is atypical",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd.Context(), "profile", stageProfile)
	},
}

var behavioralCmd = &cobra.Command{
	Use:   "behavioral",
	Short: "Flag customers whose last purchase gap breaks their own cadence",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd.Context(), "behavioral", stageBehavioral)
	},
}

var transactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "Flag individual transactions with unusual quantity, price or amount",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd.Context(), "transactions", stageTransactions)
	},
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Run every detector and print the anomaly summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return execute(cmd.Context(), "all", stageProfile, stageBehavioral, stageTransactions, stageSummary)
	},
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v = viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(defaultConfigName)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfgErr := v.ReadInConfig()

	initLogger()

	if cfgErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(cfgErr, &notFound) {
			log.Errorf("Read config error: %v", cfgErr)
		}
	} else {
		log.WithField("file", v.ConfigFileUsed()).Debug("using config file")
	}
}

func initLogger() {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

// bindFlags applies config file and environment values to every flag the
// user did not set on the command line.
func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	if v == nil {
		return
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			switch val.(type) {
			case bool, uint, string, int32, int16, int8, int, uint32, uint64, int64, float64, float32:
				_ = cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val))
			default:
				var jsonNew = jsoniter.ConfigCompatibleWithStandardLibrary
				b, err := jsonNew.Marshal(&val)
				if err != nil {
					log.Fatalf("can't parse flag %s into json with value %v got error %s", f.Name, val, err)
					return
				}
				_ = cmd.Flags().Set(f.Name, string(b))
			}
		}
	})
}

func initFlags() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $HOME/%s.yaml)", defaultConfigName))
	pf.StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warning, error")
	pf.StringVar(&opts.Input, "input", "", "transactions CSV file")
	pf.StringVar(&opts.DSN, "dsn", "", "transactions database: mysql://, mariadb:// or sqlite:// URL")
	pf.StringVar(&opts.Table, "table", opts.Table, "transactions table when reading from --dsn")
	pf.StringVar(&opts.Format, "format", opts.Format, "report format: json or yaml")
	pf.StringVarP(&opts.Output, "output", "o", opts.Output, "report file (default stdout)")
	pf.StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus textfile metrics to this path")
	pf.BoolVar(&opts.Progress, "progress", opts.Progress, "show stage progress on stderr")

	profileFlags := func(fs *pflag.FlagSet) {
		fs.StringVar(&opts.Method, "method", opts.Method, "profile method: iforest or dbscan")
		fs.Float64Var(&opts.Contamination, "contamination", opts.Contamination, "expected anomalous share of customers, (0, 1)")
		fs.Float64Var(&opts.Eps, "eps", opts.Eps, "DBSCAN neighborhood radius in standardized units")
		fs.IntVar(&opts.MinSamples, "min-samples", opts.MinSamples, "DBSCAN core point neighbor count")
		fs.IntVar(&opts.Groups, "groups", opts.Groups, "group anomalous customers into k clusters (0 disables)")
		fs.IntVar(&opts.Reasons, "reasons", opts.Reasons, "features cited per anomalous customer")
	}
	behavioralFlags := func(fs *pflag.FlagSet) {
		fs.Float64Var(&opts.Sensitivity, "sensitivity", opts.Sensitivity, "gap threshold in standard deviations above the mean")
	}
	nowFlag := func(fs *pflag.FlagSet) {
		fs.StringVar(&opts.Now, "now", "", "reference date, YYYY-MM-DD or RFC3339 (default latest transaction)")
	}
	transactionFlags := func(fs *pflag.FlagSet) {
		fs.Float64Var(&opts.TxContamination, "tx-contamination", opts.TxContamination, "expected anomalous share of transactions, (0, 0.5]")
	}

	profileFlags(profileCmd.Flags())
	nowFlag(profileCmd.Flags())
	behavioralFlags(behavioralCmd.Flags())
	nowFlag(behavioralCmd.Flags())
	transactionFlags(transactionsCmd.Flags())

	profileFlags(allCmd.Flags())
	behavioralFlags(allCmd.Flags())
	nowFlag(allCmd.Flags())
	transactionFlags(allCmd.Flags())

	rootCmd.AddCommand(profileCmd, behavioralCmd, transactionsCmd, allCmd)
}

func main() {
	initFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
