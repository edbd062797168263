package daemon

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/batmon/pkg/config"
	"github.com/charlie0129/batmon/pkg/events"
	"github.com/charlie0129/batmon/pkg/snapshot"
	"github.com/charlie0129/batmon/pkg/version"
)

var errNoSnapshot = errors.New("no battery reading yet")

func (d *Daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/snapshot", d.getSnapshot)
	router.GET("/events", d.getEvents)
	router.GET("/alert", d.getAlert)
	router.GET("/config", d.getConfig)
	router.GET("/version", getVersion)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// getSnapshot returns the current snapshot. With ?wait=true it blocks
// until the next publish instead.
func (d *Daemon) getSnapshot(c *gin.Context) {
	wait, err := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	var s snapshot.Snapshot
	if wait {
		cursor := d.monitor.Subscribe()
		s, err = d.monitor.ChangedState(c.Request.Context(), cursor)
		if err != nil {
			c.IndentedJSON(http.StatusServiceUnavailable, err.Error())
			_ = c.AbortWithError(http.StatusServiceUnavailable, err)
			return
		}
	} else {
		var ok bool
		s, ok = d.monitor.Current()
		if !ok {
			c.IndentedJSON(http.StatusServiceUnavailable, errNoSnapshot.Error())
			_ = c.AbortWithError(http.StatusServiceUnavailable, errNoSnapshot)
			return
		}
	}

	line, err := s.Canonical()
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(line))
}

// getEvents streams printed snapshots and alert firings as server-sent
// events, starting with the current snapshot.
func (d *Daemon) getEvents(c *gin.Context) {
	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeaderNow()

	if s, ok := d.monitor.Current(); ok {
		if line, err := s.Canonical(); err == nil {
			c.SSEvent(events.Snapshot, line)
		}
	}
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (d *Daemon) getAlert(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.AlertStatus())
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
