package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/companyzero/audiohal/internal/version"
	"github.com/companyzero/audiohal/server/settings"
)

// writeDefaultConfig creates cfgFile with the default settings.
func writeDefaultConfig(cfgFile string) error {
	tmpl, err := template.New("configfile").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(defaultConfigFileContent)
	if err != nil {
		return err
	}

	var generated bytes.Buffer
	if err := tmpl.Execute(&generated, settings.New()); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfgFile), 0o700); err != nil {
		return fmt.Errorf("unable to create config dir: %v", err)
	}
	return os.WriteFile(cfgFile, generated.Bytes(), 0o600)
}

func ObtainSettings() (*settings.Settings, error) {
	// defaults
	s := settings.New()

	// setup default paths
	usr, err := user.Current()
	if err != nil {
		return nil, err
	}

	// config file
	defaultCfg := filepath.Join(usr.HomeDir, ".audiohald", "audiohald.conf")
	filename := flag.String("cfg", defaultCfg, "config file")
	versionFlag := flag.Bool("version", false, "show version")
	flag.Parse()

	if *versionFlag {
		fmt.Fprintf(os.Stderr, "audiohald %s (%s)\n",
			version.String(), runtime.Version())
		os.Exit(0)
	}

	// The default config file is created on the first run.
	if _, err := os.Stat(*filename); errors.Is(err, os.ErrNotExist) && *filename == defaultCfg {
		if err := writeDefaultConfig(*filename); err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Created config file %s\n", *filename)
	}

	// load file
	err = s.Load(*filename)
	if err != nil {
		return nil, err
	}

	return s, nil
}
