package mockgateway

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voxlane/janusctl/internal/observability"
)

// Engine builds the gin router for the simulator.
func (s *Server) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(s.log))

	r.POST("/", s.handleRoot)
	r.POST("/:session", s.handleSession)
	r.POST("/:session/:handle", s.handleHandle)
	r.GET("/:session", s.handlePoll)
	return r
}

func (s *Server) handleRoot(c *gin.Context) {
	req, ok := readCommand(c)
	if !ok {
		return
	}
	switch req.janus {
	case "create":
		c.JSON(http.StatusOK, gin.H{
			"janus":       "success",
			"transaction": req.transaction,
			"data":        gin.H{"id": s.createSession()},
		})
	case "info":
		c.JSON(http.StatusOK, gin.H{
			"janus":       "server_info",
			"transaction": req.transaction,
			"data": gin.H{
				"name":    "mockgateway",
				"version": 1,
			},
		})
	default:
		gatewayError(c, req.transaction, 457, "unknown request on root")
	}
}

func (s *Server) handleSession(c *gin.Context) {
	req, ok := readCommand(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")
	sess, found := s.session(sessionID)
	if !found {
		gatewayError(c, req.transaction, 458, "no such session")
		return
	}

	switch req.janus {
	case "attach":
		namespace, _ := req.fields["plugin"].(string)
		s.mu.Lock()
		_, known := s.plugins[namespace]
		s.mu.Unlock()
		if !known {
			gatewayError(c, req.transaction, 460, "no such plugin")
			return
		}
		handleID := s.newID()
		s.mu.Lock()
		sess.handles[handleID] = namespace
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"janus":       "success",
			"transaction": req.transaction,
			"data":        gin.H{"id": handleID},
		})
	case "keepalive":
		c.JSON(http.StatusOK, gin.H{
			"janus":       "ack",
			"transaction": req.transaction,
		})
	case "destroy":
		s.destroySession(sessionID)
		c.JSON(http.StatusOK, gin.H{
			"janus":       "success",
			"transaction": req.transaction,
			"data":        gin.H{"id": sessionID},
		})
	default:
		gatewayError(c, req.transaction, 457, "unknown session request")
	}
}

func (s *Server) handleHandle(c *gin.Context) {
	req, ok := readCommand(c)
	if !ok {
		return
	}
	sessionID := c.Param("session")
	handleID := c.Param("handle")
	sess, found := s.session(sessionID)
	if !found {
		gatewayError(c, req.transaction, 458, "no such session")
		return
	}
	s.mu.Lock()
	namespace, attached := sess.handles[handleID]
	plugin := s.plugins[namespace]
	s.mu.Unlock()
	if !attached {
		gatewayError(c, req.transaction, 459, "no such handle")
		return
	}

	switch req.janus {
	case "message":
		body, _ := req.fields["body"].(map[string]any)
		jsep, _ := req.fields["jsep"].(map[string]any)
		plugindata, answer := plugin(body, jsep)

		event := gin.H{
			"janus":       "event",
			"transaction": req.transaction,
			"sender":      handleID,
			"plugindata":  plugindata,
		}
		if answer != nil {
			event["jsep"] = answer
		}
		// Queue before acking so the event is pollable the moment the ack
		// lands.
		select {
		case sess.events <- event:
		default:
			gatewayError(c, req.transaction, 470, "event queue full")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"janus":       "ack",
			"transaction": req.transaction,
		})
	case "detach":
		s.mu.Lock()
		delete(sess.handles, handleID)
		s.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"janus":       "success",
			"transaction": req.transaction,
			"data":        gin.H{"id": handleID},
		})
	default:
		gatewayError(c, req.transaction, 457, "unknown handle request")
	}
}

func (s *Server) handlePoll(c *gin.Context) {
	sessionID := c.Param("session")
	sess, found := s.session(sessionID)
	if !found {
		gatewayError(c, "", 458, "no such session")
		return
	}
	s.mu.Lock()
	wait := s.pollWait
	s.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case event := <-sess.events:
		c.JSON(http.StatusOK, event)
	case <-timer.C:
		c.JSON(http.StatusOK, gin.H{"janus": "keepalive"})
	case <-c.Request.Context().Done():
	}
}

type command struct {
	janus       string
	transaction string
	fields      map[string]any
}

func readCommand(c *gin.Context) (command, bool) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		gatewayError(c, "", 454, "invalid json")
		return command{}, false
	}
	janus, _ := fields["janus"].(string)
	transaction, _ := fields["transaction"].(string)
	if janus == "" || transaction == "" {
		gatewayError(c, transaction, 456, "missing janus or transaction")
		return command{}, false
	}
	return command{janus: janus, transaction: transaction, fields: fields}, true
}

func gatewayError(c *gin.Context, transaction string, code int, reason string) {
	resp := gin.H{
		"janus": "error",
		"error": gin.H{"code": code, "reason": reason},
	}
	if transaction != "" {
		resp["transaction"] = transaction
	}
	c.JSON(http.StatusOK, resp)
}
