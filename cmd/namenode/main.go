// The namenode command runs the name service and its admin API.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	var (
		listenAddr string
		adminAddr  string
		dataDir    string
		reset      bool
	)

	cmd := &cobra.Command{
		Use:   "namenode [reset]",
		Short: "Run the name service",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if args[0] != "reset" {
					return fmt.Errorf("unknown argument %q", args[0])
				}
				reset = true
			}
			snapshotPath := filepath.Join(dataDir, common.SnapshotFileName)
			if reset {
				if err := os.Remove(snapshotPath); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to delete snapshot: %w", err)
				}
				logrus.Infof("deleted metadata snapshot %s", snapshotPath)
			}

			ns := namenode.NewNameService(snapshotPath)
			server := namenode.NewServer(ns)
			if err := server.Start(listenAddr); err != nil {
				return err
			}
			go func() {
				if err := namenode.ServeAdmin(ns, adminAddr); err != nil {
					logrus.WithError(err).Warn("admin API stopped")
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logrus.Info("shutting down")
			return server.Close()
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", fmt.Sprintf(":%d", common.NameServicePort), "control listen address")
	cmd.Flags().StringVar(&adminAddr, "admin", fmt.Sprintf(":%d", common.AdminPort), "admin API listen address")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory holding the metadata snapshot")

	if err := cmd.Execute(); err != nil {
		logrus.Fatal(err)
	}
}
