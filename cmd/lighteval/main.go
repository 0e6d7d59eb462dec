package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/martinscooper/lighteval/internal/config"
)

type cliState struct {
	configPath string
	cfg        *config.Config
}

var (
	osExit                 = os.Exit
	stderrWriter io.Writer = os.Stderr
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderrWriter, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	st := &cliState{configPath: config.DefaultPath}

	root := &cobra.Command{
		Use:           "lighteval",
		Short:         "Evaluate language models against benchmark suites",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&st.configPath, "config", st.configPath, "path to config file")

	root.AddCommand(newRunCmd(st))
	root.AddCommand(newAggregateCmd(st))
	root.AddCommand(newTasksCmd())
	root.AddCommand(newHistoryCmd(st))

	return root
}

// loadConfig reads the config file, falling back to built-in defaults when
// the default path does not exist. An explicitly given path must exist.
func loadConfig(st *cliState) error {
	if st.configPath == config.DefaultPath {
		if _, err := os.Stat(st.configPath); errors.Is(err, os.ErrNotExist) {
			st.cfg = config.Default()
			return nil
		}
	}
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return err
	}
	st.cfg = cfg
	return nil
}
