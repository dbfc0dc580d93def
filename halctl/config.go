package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/companyzero/audiohal/halrpc"
	"github.com/jrick/flagfile"
	strduration "github.com/xhit/go-str2duration/v2"
)

var errCmdDone = errors.New("cmd done")

type config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Debug   bool
	Args    []string
}

func expandPath(homeDir, path string) string {
	if len(path) > 0 && path[0] == '~' {
		path = filepath.Join(homeDir, path[1:])
	}

	return path
}

func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(fs.Output(), "Usage: halctl [flags] <command> [args]\n\n")
		fmt.Fprintf(fs.Output(), "Commands:\n")
		for _, cmd := range commands {
			fmt.Fprintf(fs.Output(), "  %-30s %s\n", cmd.name+" "+cmd.usage, cmd.descr)
		}
		fmt.Fprintf(fs.Output(), "\nFlags:\n")
		fs.PrintDefaults()
	}
}

// loadConfig parses the command line. Flags set in the config file are
// overridden by the ones in the command line.
func loadConfig(args []string) (*config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	defaultCfgFile := filepath.Join(homeDir, ".halctl", "halctl.conf")

	fs := flag.NewFlagSet("halctl", flag.ContinueOnError)
	fs.Usage = usage(fs)
	flagCfgFile := fs.String("cfg", defaultCfgFile, "Config file to load")
	flagURL := fs.String("url", "ws://127.0.0.1:7878"+halrpc.Path, "URL of the daemon API")
	flagToken := fs.String("token", "", "Bearer token of the daemon API")
	flagTimeout := fs.String("timeout", "30s", "Timeout of connecting to the daemon")
	flagDebug := fs.Bool("debug", false, "Dump the raw replies")
	flagVersion := fs.Bool("version", false, "Display current version and exit")

	// Parse the command line once to find the config file.
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errCmdDone
		}
		return nil, err
	}
	if *flagVersion {
		return &config{Args: []string{"version"}}, nil
	}

	cfgFile := expandPath(homeDir, *flagCfgFile)
	f, err := os.Open(cfgFile)
	switch {
	case err == nil:
		parser := flagfile.Parser{ParseSections: true}
		err := parser.Parse(f, fs)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to parse %s: %v", cfgFile, err)
		}
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && cfgFile == defaultCfgFile:
	default:
		return nil, err
	}

	timeout, err := strduration.ParseDuration(*flagTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid value for flag 'timeout': %v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, errCmdDone
	}

	return &config{
		URL:     *flagURL,
		Token:   *flagToken,
		Timeout: timeout,
		Debug:   *flagDebug,
		Args:    fs.Args(),
	}, nil
}
