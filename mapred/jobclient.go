package mapred

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vaflag/hidoop/common"
	"github.com/vaflag/hidoop/format"
	"github.com/vaflag/hidoop/hdfs"
	"github.com/vaflag/hidoop/namenode"
)

// JobClient orchestrates one job: submission, data-locality dispatch of map
// tasks, the map-completion barrier and the local reduce over the
// concatenated map outputs.
type JobClient struct {
	ns *namenode.Client
	jm *JobManagerClient
	hc *hdfs.Client

	inputFormat   format.Type
	inputFileName string // empty for generator jobs

	outputFileName string
	resultFileName string

	pollInterval time.Duration
	log          *logrus.Entry
}

// NewJobClient prepares a job over an HDFS input file.
func NewJobClient(ns *namenode.Client, jm *JobManagerClient, hc *hdfs.Client, inputFormat format.Type, inputFileName string) *JobClient {
	base, _ := common.SplitFileName(inputFileName)
	return &JobClient{
		ns:             ns,
		jm:             jm,
		hc:             hc,
		inputFormat:    inputFormat,
		inputFileName:  inputFileName,
		outputFileName: base + "-map.kv",
		resultFileName: base + "-resf.kv",
		pollInterval:   common.BarrierPollInterval * time.Millisecond,
		log:            logrus.WithField("component", "jobclient"),
	}
}

// NewGeneratorJobClient prepares a job without an input file; one map runs
// on every live daemon.
func NewGeneratorJobClient(ns *namenode.Client, jm *JobManagerClient, hc *hdfs.Client, name string) *JobClient {
	jc := NewJobClient(ns, jm, hc, "", "")
	jc.outputFileName = name + "-map.kv"
	jc.resultFileName = name + "-resf.kv"
	return jc
}

// ResultFileName returns the local path the reduce output is written to.
func (jc *JobClient) ResultFileName() string { return jc.resultFileName }

// SetResultFileName overrides where the reduce output lands.
func (jc *JobClient) SetResultFileName(path string) { jc.resultFileName = path }

// SetPollInterval overrides the barrier polling cadence.
func (jc *JobClient) SetPollInterval(d time.Duration) { jc.pollInterval = d }

// Run executes the job named fnName end to end and returns the local reduce
// result path.
func (jc *JobClient) Run(fnName string) (string, error) {
	fn, ok := Lookup(fnName)
	if !ok {
		return "", fmt.Errorf("function %s: %w", fnName, common.ErrUnknownFunction)
	}

	jc.log.Infof("submitting job %s", fnName)
	jobID, err := jc.jm.AddJob(fnName, string(jc.inputFormat), jc.inputFileName)
	if err != nil {
		return "", fmt.Errorf("failed to add job: %w", err)
	}
	if err := jc.jm.StartJob(jobID); err != nil {
		return "", fmt.Errorf("failed to start job: %w", err)
	}

	daemons, err := jc.jm.AvailableDaemons()
	if err != nil {
		return "", fmt.Errorf("failed to list daemons: %w", err)
	}

	var chunks []string
	nbMaps := len(daemons)
	if jc.inputFileName != "" {
		chunks, err = jc.ns.ReadFileRequest(jc.inputFileName)
		if err != nil {
			return "", fmt.Errorf("failed to locate input chunks: %w", err)
		}
		nbMaps = len(chunks)
	}
	jc.log.Infof("job %d: launching %d maps", jobID, nbMaps)

	inBase, inExt := common.SplitFileName(jc.inputFileName)
	for i := 0; i < nbMaps; i++ {
		if err := jc.jm.SubmitMap(jobID, i); err != nil {
			return "", fmt.Errorf("failed to submit map %d: %w", i, err)
		}

		req := common.RunMapRequest{
			JobID:          jobID,
			MapIndex:       i,
			FunctionName:   fnName,
			InputFormat:    string(jc.inputFormat),
			OutputFileName: jc.outputFileName,
		}
		var daemonAddr string
		if jc.inputFileName != "" {
			daemonAddr, err = matchDaemon(chunks[i], daemons)
			if err != nil {
				return "", fmt.Errorf("map %d on chunk held by %s: %w", i, chunks[i], err)
			}
			req.InputName = common.ChunkFileName(inBase, i, inExt)
		} else {
			daemonAddr = daemons[i]
		}

		if err := NewDaemonClient(daemonAddr).RunMap(req); err != nil {
			return "", fmt.Errorf("failed to dispatch map %d to %s: %w", i, daemonAddr, err)
		}
	}

	jc.log.Infof("job %d: waiting for %d map completions", jobID, nbMaps)
	if err := jc.awaitMaps(jobID, nbMaps); err != nil {
		return "", err
	}
	jc.log.Infof("job %d: all maps completed", jobID)

	if err := jc.ns.AllChunksWritten(jc.outputFileName); err != nil {
		return "", fmt.Errorf("failed to finalize map output file: %w", err)
	}

	mergedPath := filepath.Join(os.TempDir(), fmt.Sprintf("job-%d-%s", jobID, jc.outputFileName))
	if err := jc.hc.Read(jc.outputFileName, mergedPath); err != nil {
		return "", fmt.Errorf("failed to collect map outputs: %w", err)
	}
	defer os.Remove(mergedPath)

	if err := jc.reduce(fn, mergedPath); err != nil {
		return "", err
	}
	jc.log.Infof("job %d completed, result in %s", jobID, jc.resultFileName)
	return jc.resultFileName, nil
}

// awaitMaps is the completion barrier: poll the job manager until every
// dispatched map has reported in.
func (jc *JobClient) awaitMaps(jobID int64, nbMaps int) error {
	ticker := time.NewTicker(jc.pollInterval)
	defer ticker.Stop()
	for range ticker.C {
		completed, err := jc.jm.CompletedMaps(jobID)
		if err != nil {
			return fmt.Errorf("barrier poll failed: %w", err)
		}
		if completed >= nbMaps {
			return nil
		}
	}
	return nil
}

// reduce runs the user reduce over the concatenated map outputs.
func (jc *JobClient) reduce(fn MapReduce, mergedPath string) error {
	reader, err := format.OpenKVReader(mergedPath)
	if err != nil {
		return fmt.Errorf("failed to open map output concatenation: %w", err)
	}
	defer reader.Close()

	writer, err := format.CreateKVWriter(jc.resultFileName)
	if err != nil {
		return fmt.Errorf("failed to create reduce output: %w", err)
	}
	if err := fn.Reduce(reader, writer); err != nil {
		writer.Close()
		return fmt.Errorf("reduce failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close reduce output: %w", err)
	}
	return nil
}

// matchDaemon selects the daemon co-located with the data node holding a
// chunk. The match is exact on host; there is no fallback to a non-local
// replica.
func matchDaemon(chunkServer string, daemons []string) (string, error) {
	for _, daemon := range daemons {
		if common.SameHost(chunkServer, daemon) {
			return daemon, nil
		}
	}
	return "", common.ErrLocalityUnsatisfied
}
