// Command scgid is a pre-forking SCGI front-end: a parent process accepts
// TCP connections and hands each one off to a bounded pool of long-lived
// worker processes over Unix-domain descriptor passing. A graceful
// restart of the whole worker pool is triggered by SIGHUP.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/scgid/admin"
	libctx "github.com/nabbar/scgid/context"
	"github.com/nabbar/scgid/applog"
	"github.com/nabbar/scgid/dispatch"
	"github.com/nabbar/scgid/logger/level"
	"github.com/nabbar/scgid/supervisor"
	"github.com/nabbar/scgid/worker"
)

const (
	keyPort        = "port"
	keyMaxChildren = "max-children"
	keyLogLevel    = "log-level"
	keyAdminAddr   = "admin-addr"
	keyConfigFile  = "config"

	defaultPort        = 4000
	defaultMaxChildren = 5
	defaultLogLevel    = "info"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "scgid [port]",
		Short: "pre-forking SCGI server front-end",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd, v, args)
		},
	}

	root.PersistentFlags().Int(keyMaxChildren, defaultMaxChildren, "maximum number of worker processes")
	root.PersistentFlags().String(keyLogLevel, defaultLogLevel, "log level: critical, fatal, error, warning, info, debug")
	root.PersistentFlags().String(keyAdminAddr, "", "administrative http listen address, empty disables it")
	root.PersistentFlags().String(keyConfigFile, "", "path to a config file overriding the defaults above")

	_ = v.BindPFlag(keyMaxChildren, root.PersistentFlags().Lookup(keyMaxChildren))
	_ = v.BindPFlag(keyLogLevel, root.PersistentFlags().Lookup(keyLogLevel))
	_ = v.BindPFlag(keyAdminAddr, root.PersistentFlags().Lookup(keyAdminAddr))

	root.AddCommand(newWorkerCmd())

	return root
}

// runSupervisor loads configuration, builds the ambient logger, the
// dispatch pool, and the optional admin surface, then runs the
// supervisor's accept loop. Worker processes started by a self re-exec
// do not come through here: they run the hidden worker subcommand.
func runSupervisor(cmd *cobra.Command, v *viper.Viper, args []string) error {
	if cfgFile, _ := cmd.Flags().GetString(keyConfigFile); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	port := defaultPort
	if len(args) == 1 {
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		port = p
	}

	settings := libctx.NewConfig[string](nil)
	settings.Store(keyPort, port)
	settings.Store(keyMaxChildren, v.GetInt(keyMaxChildren))
	settings.Store(keyLogLevel, v.GetString(keyLogLevel))
	settings.Store(keyAdminAddr, v.GetString(keyAdminAddr))

	lvl := level.Parse(mustString(settings, keyLogLevel))
	log := applog.Init(lvl, "supervisor")

	maxChildren := mustInt(settings, keyMaxChildren)

	supervisor.SetReexecArgs([]string{os.Args[0], "worker", "--" + keyLogLevel, mustString(settings, keyLogLevel)})

	pool := dispatch.NewPool(maxChildren, supervisor.Spawner(), log, nil)

	if addr := mustString(settings, keyAdminAddr); addr != "" {
		srv := admin.New(pool, log)
		go func() {
			if err := srv.ListenAndServe(addr); err != nil {
				log.Errorf("admin surface stopped: %v", err)
			}
		}()
	}

	sup := supervisor.New(supervisor.Options{
		Addr:        fmt.Sprintf(":%d", mustInt(settings, keyPort)),
		MaxChildren: maxChildren,
		Log:         log,
		Pool:        pool,
	})

	return sup.Run()
}

func mustString(cfg libctx.Config[string], key string) string {
	v, _ := cfg.Load(key)
	s, _ := v.(string)
	return s
}

func mustInt(cfg libctx.Config[string], key string) int {
	v, _ := cfg.Load(key)
	n, _ := v.(int)
	return n
}

// newWorkerCmd is the hidden re-exec entrypoint: when the supervisor
// starts a new worker process, it re-invokes this same binary with the
// "worker" subcommand, passing the control socket as an inherited file
// descriptor rather than a flag.
func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, _ := cmd.Flags().GetString(keyLogLevel)
			return runWorker(lvl)
		},
	}
	cmd.Flags().String(keyLogLevel, defaultLogLevel, "log level: critical, fatal, error, warning, info, debug")
	return cmd
}

func runWorker(logLevel string) error {
	control, isWorker, err := supervisor.InheritControl()
	if err != nil {
		return err
	}
	if !isWorker {
		return fmt.Errorf("worker subcommand invoked without an inherited control socket")
	}

	log := applog.Init(level.Parse(logLevel), fmt.Sprintf("worker-%d", os.Getpid()))

	w := worker.New(control, nil, log)
	return w.Serve()
}
