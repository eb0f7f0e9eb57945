package mapred

import (
	"github.com/vaflag/hidoop/common"
)

// JobManagerClient is the control stub for the job manager.
type JobManagerClient struct {
	addr string
}

// NewJobManagerClient returns a stub for the job manager at addr.
func NewJobManagerClient(addr string) *JobManagerClient {
	return &JobManagerClient{addr: addr}
}

// AddJob registers a job and returns its id.
func (c *JobManagerClient) AddJob(functionName, inputFormat, inputFileName string) (int64, error) {
	var resp common.AddJobResponse
	if err := common.Call(c.addr, common.MsgTypeAddJob, &common.AddJobRequest{
		FunctionName:  functionName,
		InputFormat:   inputFormat,
		InputFileName: inputFileName,
	}, common.MsgTypeAddJobResponse, &resp); err != nil {
		return 0, err
	}
	if err := resp.Status.Err(); err != nil {
		return 0, err
	}
	return resp.JobID, nil
}

// StartJob marks a job started.
func (c *JobManagerClient) StartJob(jobID int64) error {
	var resp common.Ack
	if err := common.Call(c.addr, common.MsgTypeStartJob,
		&common.StartJobRequest{JobID: jobID},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// SubmitMap records that a map task has been dispatched.
func (c *JobManagerClient) SubmitMap(jobID int64, mapIndex int) error {
	var resp common.Ack
	if err := common.Call(c.addr, common.MsgTypeSubmitMap,
		&common.SubmitMapRequest{JobID: jobID, MapIndex: mapIndex},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// MapCompleted reports a finished map task.
func (c *JobManagerClient) MapCompleted(jobID int64, mapIndex int) error {
	var resp common.Ack
	if err := common.Call(c.addr, common.MsgTypeMapCompleted,
		&common.MapCompletedNotice{JobID: jobID, MapIndex: mapIndex},
		common.MsgTypeAck, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}

// CompletedMaps reports the completion tally for a job.
func (c *JobManagerClient) CompletedMaps(jobID int64) (int, error) {
	var resp common.CompletedMapsResponse
	if err := common.Call(c.addr, common.MsgTypeCompletedMapsRequest,
		&common.CompletedMapsRequest{JobID: jobID},
		common.MsgTypeCompletedMapsResponse, &resp); err != nil {
		return 0, err
	}
	if err := resp.Status.Err(); err != nil {
		return 0, err
	}
	return resp.Completed, nil
}

// AvailableDaemons returns the live daemon set known to the name service.
func (c *JobManagerClient) AvailableDaemons() ([]string, error) {
	var resp common.DaemonsResponse
	if err := common.Call(c.addr, common.MsgTypeDaemonsRequest,
		&common.DaemonsRequest{},
		common.MsgTypeDaemonsResponse, &resp); err != nil {
		return nil, err
	}
	if err := resp.Status.Err(); err != nil {
		return nil, err
	}
	return resp.Daemons, nil
}
