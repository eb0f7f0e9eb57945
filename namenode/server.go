package namenode

import (
	"fmt"
	"net"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vaflag/hidoop/common"
)

// Server exposes a NameService over the framed control protocol. Each
// accepted connection carries a single request/response exchange.
type Server struct {
	ns       *NameService
	listener net.Listener
}

// NewServer wraps a name service for network serving.
func NewServer(ns *NameService) *Server {
	return &Server{ns: ns}
}

// Start begins listening on addr and serving connections in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.ns.log.Infof("%s listening on %s", common.NameServiceName, listener.Addr())
	go s.acceptLoop()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener and the underlying service.
func (s *Server) Close() error {
	if s.listener != nil {
		s.listener.Close()
	}
	return s.ns.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	msgType, data, err := common.ReadMessage(conn)
	if err != nil {
		s.ns.log.WithError(err).Error("error reading control message")
		return
	}

	respType, resp, err := s.ns.dispatch(msgType, data)
	if err != nil {
		s.ns.log.WithError(err).Error("error handling control message")
		return
	}
	payload, err := msgpack.Marshal(resp)
	if err != nil {
		s.ns.log.WithError(err).Error("error marshalling response")
		return
	}
	if err := common.WriteMessage(conn, respType, payload); err != nil {
		s.ns.log.WithError(err).Error("error sending response")
	}
}

// dispatch routes one control message to the matching operation and builds
// its response.
func (ns *NameService) dispatch(msgType byte, data []byte) (byte, interface{}, error) {
	switch msgType {
	case common.MsgTypeWriteChunkRequest:
		var req common.WriteChunkRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal write chunk request: %w", err)
		}
		servers, err := ns.WriteChunkRequest(req.ReplicationFactor)
		return common.MsgTypeWriteChunkResponse, &common.WriteChunkResponse{
			Status:  common.StatusOf(err),
			Servers: servers,
		}, nil

	case common.MsgTypeReadFileRequest:
		var req common.ReadFileRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal read file request: %w", err)
		}
		servers, err := ns.ReadFileRequest(req.FileName)
		return common.MsgTypeReadFileResponse, &common.ReadFileResponse{
			Status:  common.StatusOf(err),
			Servers: servers,
		}, nil

	case common.MsgTypeDeleteFileRequest:
		var req common.DeleteFileRequest
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal delete file request: %w", err)
		}
		servers, err := ns.DeleteFileRequest(req.FileName)
		return common.MsgTypeDeleteFileResponse, &common.DeleteFileResponse{
			Status:  common.StatusOf(err),
			Servers: servers,
		}, nil

	case common.MsgTypeChunkWritten:
		var req common.ChunkWrittenNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal chunk written notice: %w", err)
		}
		ns.ChunkWritten(req.FileName, req.FileSize, req.ChunkSize, req.ReplicationFactor, req.ChunkNumber, req.Server)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOK()}, nil

	case common.MsgTypeAllChunksWritten:
		var req common.AllChunksWrittenNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal all chunks written notice: %w", err)
		}
		ns.AllChunksWritten(req.FileName)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOK()}, nil

	case common.MsgTypeChunkDeleted:
		var req common.ChunkDeletedNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal chunk deleted notice: %w", err)
		}
		ns.ChunkDeleted(req.FileName, req.ChunkNumber, req.Server)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOK()}, nil

	case common.MsgTypeDataNodeAvailable:
		var req common.NodeAvailableNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal availability notice: %w", err)
		}
		ns.NotifyDataNodeAvailability(req.Address)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOK()}, nil

	case common.MsgTypeDaemonAvailable:
		var req common.NodeAvailableNotice
		if err := msgpack.Unmarshal(data, &req); err != nil {
			return 0, nil, fmt.Errorf("failed to unmarshal availability notice: %w", err)
		}
		ns.NotifyDaemonAvailability(req.Address)
		return common.MsgTypeAck, &common.Ack{Status: common.StatusOK()}, nil

	case common.MsgTypeDaemonsRequest:
		daemons, err := ns.AvailableDaemons()
		return common.MsgTypeDaemonsResponse, &common.DaemonsResponse{
			Status:  common.StatusOf(err),
			Daemons: daemons,
		}, nil
	}
	return 0, nil, fmt.Errorf("unknown message type: %d", msgType)
}
