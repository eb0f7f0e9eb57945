package mapred

import (
	"github.com/vaflag/hidoop/common"
)

// DaemonClient is the control stub for one daemon.
type DaemonClient struct {
	addr string
}

// NewDaemonClient returns a stub for the daemon at addr.
func NewDaemonClient(addr string) *DaemonClient {
	return &DaemonClient{addr: addr}
}

// RunMap dispatches one map task. The call returns as soon as the daemon
// accepts the task; completion is observed through the job manager.
func (c *DaemonClient) RunMap(req common.RunMapRequest) error {
	var resp common.RunMapResponse
	if err := common.Call(c.addr, common.MsgTypeRunMap, &req,
		common.MsgTypeRunMapResponse, &resp); err != nil {
		return err
	}
	return resp.Status.Err()
}
