package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lychee-technology/assetio"
	"github.com/lychee-technology/assetio/factory"
	"github.com/lychee-technology/assetio/internal/dispatch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds the flag values and the manager shared by all subcommands
type app struct {
	configDir string
	policy    string
	access    string
	jsonOut   bool
	verbose   bool

	manager assetio.Manager
	actx    *assetio.Context
	closeFn func()
}

// newRootCmd builds the command tree over a. The caller closes a after
// Execute returns, whether or not the command failed.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "assetctl",
		Short: "assetctl queries and publishes entities through an asset manager",
		Long: `assetctl is a host for asset manager plugins. It resolves, inspects and
publishes entities through the manager selected in config.yaml.

Every batch command accepts --policy to choose how element failures are
reported: throw stops at the first failure, collect prints one line per
element after the batch completes, stream prints each element as the
manager reports it.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.open,
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.assetio)")
	root.PersistentFlags().StringVar(&a.policy, "policy", dispatch.CollectAsResults.String(), "error policy (throw, collect, stream)")
	root.PersistentFlags().StringVar(&a.access, "access", "", "access mode (default depends on the command)")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log manager activity to stderr")

	root.AddCommand(
		newResolveCmd(a),
		newExistsCmd(a),
		newTraitsCmd(a),
		newRelatedCmd(a),
		newRegisterCmd(a),
		newDefaultsCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, args []string) error {
	if _, err := dispatch.ParseMode(a.policy); err != nil {
		return err
	}

	level := zap.WarnLevel
	if a.verbose {
		level = zap.DebugLevel
	}
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	configDir := a.configDir
	if configDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve config dir: %w", err)
		}
		configDir = filepath.Join(cwd, ".assetio")
	}
	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}

	ctx := cmdContext(cmd)
	host := assetio.NewHost(assetio.StaticHost{ID: "org.assetio.assetctl", Name: "assetctl"})
	manager, closeFn, err := factory.NewManagerWithConfig(ctx, cfg,
		factory.WithHostSession(assetio.NewHostSession(host, logger)))
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}
	actx, err := manager.CreateContext(ctx)
	if err != nil {
		closeFn()
		return fmt.Errorf("create context: %w", err)
	}

	a.manager = manager
	a.actx = actx
	a.closeFn = closeFn
	return nil
}

func (a *app) close() {
	if a.closeFn != nil {
		a.closeFn()
		a.closeFn = nil
	}
	_ = zap.L().Sync()
}

// accessOr returns the --access flag, or fallback when it is unset. A mode
// the operation does not accept is rejected with the list of valid ones.
func (a *app) accessOr(operation string, fallback assetio.Access) (assetio.Access, error) {
	if a.access == "" {
		return fallback, nil
	}
	access, err := assetio.ParseAccess(a.access)
	if err != nil {
		return fallback, err
	}
	permitted := dispatch.PermittedAccess(operation)
	if !slices.Contains(permitted, access) {
		names := make([]string, len(permitted))
		for i, p := range permitted {
			names[i] = p.String()
		}
		return fallback, fmt.Errorf("access %s is not valid for %s (valid: %s)",
			access, operation, strings.Join(names, ", "))
	}
	return access, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
