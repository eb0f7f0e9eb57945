// The hdfs command is the user CLI for the distributed file store.
//
//	hdfs write {line|kv} <path>
//	hdfs read <hdfsName> <localDest>
//	hdfs delete <hdfsName>
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/hdfs"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	var (
		nsAddr      string
		replication int
		chunkSize   int64
	)

	root := &cobra.Command{
		Use:           "hdfs",
		Short:         "Client for the distributed file store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&nsAddr, "namenode",
		fmt.Sprintf("localhost:%d", common.NameServicePort), "name service address")
	root.PersistentFlags().IntVar(&replication, "replication", common.DefaultReplication, "replication factor for writes")
	root.PersistentFlags().Int64Var(&chunkSize, "chunk-size", common.DefaultChunkSize, "chunk size ceiling in bytes")

	client := func() *hdfs.Client {
		return hdfs.NewClientWithChunkSize(namenode.NewClient(nsAddr), chunkSize)
	}

	root.AddCommand(&cobra.Command{
		Use:   "write {line|kv} <path>",
		Short: "Split a local file into chunks and store it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtType, err := format.ParseType(args[0])
			if err != nil {
				return err
			}
			return client().Write(fmtType, args[1], replication)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "read <hdfsName> <localDest>",
		Short: "Rebuild a stored file locally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Read(args[0], args[1])
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "delete <hdfsName>",
		Short: "Delete a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().Delete(args[0])
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
