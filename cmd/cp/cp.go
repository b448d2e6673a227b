package cp

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sidkik/sshcp-v1/cmd/util"
	"github.com/sidkik/sshcp-v1/pkg/client"
	"github.com/sidkik/sshcp-v1/pkg/config"
	"github.com/sidkik/sshcp-v1/pkg/errors"
	"github.com/sidkik/sshcp-v1/pkg/fileserver"
	"github.com/sidkik/sshcp-v1/pkg/shell"
)

// DefaultTargetConfigPath is where the target connection config is looked
// up unless --target points elsewhere.
const DefaultTargetConfigPath = "~/.sshcp/target.yaml"

type flags struct {
	targetConfig string
	saltenv      string
	cachedir     string
	makedirs     bool
	include      string
	exclude      string
	noCache      bool
	toControl    bool
	values       []string
}

// New creates the file transfer command tree.
func New() []*cobra.Command {
	f := &flags{}

	cacheFile := &cobra.Command{
		Use:   "cache-file SOURCE",
		Short: "Cache a single file in the target's cache mirror",
		Args:  cobra.ExactArgs(1),
		Run: run(f, func(c *client.Client, args []string) error {
			controlPath, err := c.CacheFile(args[0], f.saltenv, f.cachedir)
			if err != nil {
				return err
			}
			printTarget(c, controlPath)
			return nil
		}),
	}

	cacheDir := &cobra.Command{
		Use:   "cache-dir SOURCE",
		Short: "Cache everything under a fileserver directory",
		Args:  cobra.ExactArgs(1),
		Run: run(f, func(c *client.Client, args []string) error {
			cached, err := c.CacheDir(args[0], f.saltenv, f.include, f.exclude, f.cachedir)
			if err != nil {
				return err
			}
			for _, controlPath := range cached {
				printTarget(c, controlPath)
			}
			return nil
		}),
	}
	cacheDir.Flags().StringVar(&f.include, "include", "",
		"only cache files matching this glob (or E@-prefixed regex)")
	cacheDir.Flags().StringVar(&f.exclude, "exclude", "",
		"skip files matching this glob (or E@-prefixed regex)")

	cacheMaster := &cobra.Command{
		Use:   "cache-master",
		Short: "Cache every file the fileserver knows for the environment",
		Args:  cobra.NoArgs,
		Run: run(f, func(c *client.Client, _ []string) error {
			cached, err := c.CacheMaster(f.saltenv)
			if err != nil {
				return err
			}
			for _, controlPath := range cached {
				printTarget(c, controlPath)
			}
			return nil
		}),
	}

	getFile := &cobra.Command{
		Use:   "get-file SOURCE DEST",
		Short: "Send a file from the fileserver to a path on the target",
		Args:  cobra.ExactArgs(2),
		Run: run(f, func(c *client.Client, args []string) error {
			controlPath, err := c.GetFile(args[0], args[1], f.saltenv, f.makedirs, f.cachedir)
			if err != nil {
				return err
			}
			printTarget(c, controlPath)
			return nil
		}),
	}
	getFile.Flags().BoolVar(&f.makedirs, "makedirs", false,
		"create the parent directories of DEST on the target")

	getDir := &cobra.Command{
		Use:   "get-dir SOURCE DEST",
		Short: "Recursively send a fileserver directory to the target",
		Args:  cobra.ExactArgs(2),
		Run: run(f, func(c *client.Client, args []string) error {
			transferred, err := c.GetDir(args[0], args[1], f.saltenv, f.cachedir)
			if err != nil {
				return err
			}
			for _, controlPath := range transferred {
				printTarget(c, controlPath)
			}
			return nil
		}),
	}

	getURL := &cobra.Command{
		Use:   "get-url URL [DEST]",
		Short: "Fetch a URL on the control node and send it to the target",
		Args:  cobra.RangeArgs(1, 2),
		Run: run(f, func(c *client.Client, args []string) error {
			if f.noCache {
				contents, err := c.GetURLContents(args[0], f.saltenv)
				if err != nil {
					return err
				}
				fmt.Print(string(contents))
				return nil
			}

			dest := ""
			if len(args) == 2 {
				dest = args[1]
			}
			controlPath, err := c.GetURL(args[0], dest, f.saltenv, f.makedirs, f.cachedir)
			if err != nil {
				return err
			}
			printTarget(c, controlPath)
			return nil
		}),
	}
	getURL.Flags().BoolVar(&f.makedirs, "makedirs", false,
		"create the parent directories of DEST on the target")
	getURL.Flags().BoolVar(&f.noCache, "no-cache", false,
		"print the contents instead of staging them at a destination")

	getTemplate := &cobra.Command{
		Use:   "get-template SOURCE DEST",
		Short: "Render a fileserver source and send the result to the target",
		Args:  cobra.ExactArgs(2),
		Run: run(f, func(c *client.Client, args []string) error {
			data, err := parseValues(f.values)
			if err != nil {
				return err
			}
			controlPath, err := c.GetTemplate(
				args[0], args[1], data, f.saltenv, f.makedirs, f.cachedir)
			if err != nil {
				return err
			}
			printTarget(c, controlPath)
			return nil
		}),
	}
	getTemplate.Flags().BoolVar(&f.makedirs, "makedirs", false,
		"create the parent directories of DEST on the target")
	getTemplate.Flags().StringArrayVar(&f.values, "set", nil,
		"template values as key=value, may be repeated")

	isCached := &cobra.Command{
		Use:   "is-cached SOURCE",
		Short: "Print the cached location of a source, if any",
		Args:  cobra.ExactArgs(1),
		Run: run(f, func(c *client.Client, args []string) error {
			path, err := c.IsCached(args[0], f.saltenv, f.cachedir)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		}),
	}

	convertPath := &cobra.Command{
		Use:   "convert-path PATH",
		Short: "Convert a cache path between its control and target spellings",
		Args:  cobra.ExactArgs(1),
		Run: run(f, func(c *client.Client, args []string) error {
			converted, err := c.ConvertPath(args[0], f.cachedir, f.toControl)
			if err != nil {
				return err
			}
			fmt.Println(converted)
			return nil
		}),
	}
	convertPath.Flags().BoolVar(&f.toControl, "to-control", false,
		"convert to the control-side spelling instead of the target-side one")

	listMaster := &cobra.Command{
		Use:   "list-master [PREFIX]",
		Short: "List the files the fileserver knows for the environment",
		Args:  cobra.MaximumNArgs(1),
		Run: run(f, func(c *client.Client, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			files, err := c.ListMaster(f.saltenv, prefix)
			if err != nil {
				return err
			}
			for _, file := range files {
				fmt.Println(file)
			}
			return nil
		}),
	}

	envs := &cobra.Command{
		Use:   "envs",
		Short: "List the configured fileserver environments",
		Args:  cobra.NoArgs,
		Run: run(f, func(c *client.Client, _ []string) error {
			for _, env := range c.Envs() {
				fmt.Println(env)
			}
			return nil
		}),
	}

	cmds := []*cobra.Command{
		cacheFile, cacheDir, cacheMaster, getFile, getDir,
		getURL, getTemplate, isCached, convertPath, listMaster, envs,
	}
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&f.targetConfig, "target", DefaultTargetConfigPath,
			"path to the target connection config")
		cmd.Flags().StringVar(&f.saltenv, "saltenv", "",
			"fileserver environment to resolve sources against")
		cmd.Flags().StringVar(&f.cachedir, "cachedir", "",
			"cache directory override")
	}
	return cmds
}

// run wires a subcommand body to a connected client.
func run(f *flags, body func(c *client.Client, args []string) error) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, args []string) {
		c, closeShell, err := connect(f)
		if err != nil {
			util.HandleFatalError(err)
		}
		defer closeShell()

		if err := body(c, args); err != nil {
			util.HandleFatalError(err)
		}
	}
}

func connect(f *flags) (*client.Client, func(), error) {
	master, err := config.ParseMaster()
	if err != nil {
		return nil, nil, errors.WithContext(err, "parse master config")
	}

	target, err := config.ParseTarget(f.targetConfig)
	if err != nil {
		return nil, nil, errors.WithContext(err, "parse target config")
	}

	sh, err := shell.Dial(shell.Config{
		Host:           target.Host,
		Port:           target.Port,
		User:           target.User,
		IdentityFile:   target.IdentityFile,
		Password:       target.Password,
		KnownHostsFile: target.KnownHostsFile,
	})
	if err != nil {
		return nil, nil, errors.WithContext(err, "connect to target")
	}

	server := fileserver.New(master.FileRoots)
	c := client.New(sh, server, master.Cachedir, target.ID)
	return c, func() { sh.Close() }, nil
}

// printTarget prints where a cached file landed on the target, which is
// what callers act on. The control-side path is only a fallback for
// transfers that never reached the send.
func printTarget(c *client.Client, controlPath string) {
	if targetPath, ok := c.TargetPath(controlPath); ok {
		fmt.Println(targetPath)
		return
	}
	fmt.Println(controlPath)
}

func parseValues(values []string) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	for _, value := range values {
		parts := strings.SplitN(value, "=", 2)
		if len(parts) != 2 {
			return nil, errors.NewFriendlyError(
				"Invalid --set value %q. Expected key=value.", value)
		}
		data[parts[0]] = parts[1]
	}
	return data, nil
}
