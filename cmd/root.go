package cmd

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options holds the parsed CLI surface, bound via pflag/viper the way the
// teacher's cfg package binds its own flags.
type Options struct {
	Debug                   bool
	RestAPI                 bool
	RestAPIPort             int
	Mount                   bool
	StaticENOSPC            bool
	StaticENOSPCProbability float64
}

var opts Options
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "charybdisfs [flags] source target",
	Short: "Mount a fault-injecting passthrough filesystem over a backing directory",
	Long: `CharybdisFS mirrors a backing source directory onto a target mount
point, injecting artificial latency and errors into filesystem operations
under the control of an HTTP control API.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRoot,
}

// negatableBool registers a --name/--no-name pair sharing one underlying
// viper key, since pflag has no native negated-flag syntax. --no-name wins
// if both are given on the same invocation.
func negatableBool(flags *pflag.FlagSet, name string, def bool, usage string) {
	flags.Bool(name, def, usage)
	flags.Bool("no-"+name, false, "negate --"+name)
	bindPflag(flags, name)
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config-file", "", "path to a YAML config file overriding defaults")
	negatableBool(flags, "debug", false, "enable FUSE debug logging")
	negatableBool(flags, "rest-api", true, "serve the HTTP control API")
	flags.IntVar(&opts.RestAPIPort, "rest-api-port", 8080, "TCP port for the control API")
	negatableBool(flags, "mount", true, "mount the FUSE filesystem")
	negatableBool(flags, "static-enospc", false, "inject an ENOSPC rule on ALL operations at startup")
	flags.Float64Var(&opts.StaticENOSPCProbability, "static-enospc-probability", 0.1, "probability (0..1) for --static-enospc")

	bindPflag(flags, "rest-api-port")
	bindPflag(flags, "static-enospc-probability")
}

// resolveNegatable applies a --no-name override on top of viper's --name
// value for the given flag pair.
func resolveNegatable(flags *pflag.FlagSet, name string) bool {
	if no, _ := flags.GetBool("no-" + name); no {
		return false
	}
	return viper.GetBool(name)
}

func bindPflag(flags *pflag.FlagSet, name string) {
	if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("cmd: binding flag %q: %s", name, err))
	}
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	resolved, err := filepath.Abs(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving config file path: %s\n", err)
		os.Exit(1)
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "reading config file: %s\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command, exiting non-zero on any returned error per
// the CLI contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts.Debug = resolveNegatable(flags, "debug")
	opts.RestAPI = resolveNegatable(flags, "rest-api")
	opts.RestAPIPort = viper.GetInt("rest-api-port")
	opts.Mount = resolveNegatable(flags, "mount")
	opts.StaticENOSPC = resolveNegatable(flags, "static-enospc")
	opts.StaticENOSPCProbability = viper.GetFloat64("static-enospc-probability")

	if !opts.RestAPI && !opts.Mount {
		return fmt.Errorf("--no-rest-api and --no-mount cannot both be set: there would be nothing to do")
	}

	ctx := context.Background()

	if opts.Mount {
		if len(args) != 2 {
			return fmt.Errorf("source and target are both required when mounting; run --help for usage")
		}
		return runMount(ctx, args[0], args[1], opts)
	}

	if len(args) != 0 {
		return fmt.Errorf("unexpected positional arguments with --no-mount: %v", args)
	}
	return runControlAPIOnly(ctx, opts)
}

// clampedPercent converts the 0..1 static-enospc-probability flag into the
// registry's 0..100 integer scale, clamping to the valid range.
func clampedPercent(p float64) int {
	pct := int(math.Round(p * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
