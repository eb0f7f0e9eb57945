package namenode

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminRouter builds the read-only inspection API for a name service:
//
//	GET /metadata  - the file catalog
//	GET /nodes     - live data nodes and daemons
func AdminRouter(ns *NameService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/metadata", func(c *gin.Context) {
		type fileInfo struct {
			FileSize          int              `json:"fileSize"`
			ChunkSize         int64            `json:"chunkSize"`
			ReplicationFactor int              `json:"replicationFactor"`
			Complete          bool             `json:"complete"`
			ChunkHandles      map[int][]string `json:"chunkHandles"`
		}
		out := make(map[string]fileInfo)
		for name, fd := range ns.Metadata() {
			out[name] = fileInfo{
				FileSize:          fd.FileSize,
				ChunkSize:         fd.ChunkSize,
				ReplicationFactor: fd.ReplicationFactor,
				Complete:          fd.Complete(),
				ChunkHandles:      fd.ChunkHandles,
			}
		}
		c.JSON(http.StatusOK, out)
	})

	router.GET("/nodes", func(c *gin.Context) {
		daemons, _ := ns.AvailableDaemons()
		c.JSON(http.StatusOK, gin.H{
			"dataNodes": ns.LiveDataNodes(),
			"daemons":   daemons,
		})
	})

	return router
}

// ServeAdmin runs the inspection API on addr, blocking.
func ServeAdmin(ns *NameService, addr string) error {
	return AdminRouter(ns).Run(addr)
}
