// The wordcount command submits the word-count job over a stored
// line-format file and prints where the reduce result landed.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/examples/wordcount"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/hdfs"
	"github.com/vaflag/hidoop/mapred"
	"github.com/vaflag/hidoop/namenode"
)

func main() {
	nsAddr := flag.String("namenode", fmt.Sprintf("localhost:%d", common.NameServicePort), "name service address")
	jmAddr := flag.String("jobmanager", fmt.Sprintf("localhost:%d", common.JobManagerPort), "job manager address")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: wordcount [flags] <hdfsFileName>")
		os.Exit(1)
	}

	mapred.Register(wordcount.Name, wordcount.New())

	ns := namenode.NewClient(*nsAddr)
	jm := mapred.NewJobManagerClient(*jmAddr)
	jc := mapred.NewJobClient(ns, jm, hdfs.NewClient(ns), format.Line, flag.Arg(0))

	result, err := jc.Run(wordcount.Name)
	if err != nil {
		logrus.Fatal(err)
	}
	fmt.Println(result)
}
