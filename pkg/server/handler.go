package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MCPSession represents an MCP session
type MCPSession struct {
	ID      string
	Created int64
}

// MCPRequest represents an MCP JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP JSON-RPC response
type MCPResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *MCPError `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeBadSession     = -32000
)

type Handler struct {
	Service JobService
	Metrics prometheus.Gatherer

	sessions  map[string]*MCPSession
	sessionMu sync.RWMutex
}

// NewHandler serves s over REST and MCP. A nil gatherer disables /metrics.
func NewHandler(s JobService, metrics prometheus.Gatherer) *Handler {
	return &Handler{
		Service:  s,
		Metrics:  metrics,
		sessions: make(map[string]*MCPSession),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/mcp", h.MCPHandler)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.Metrics, promhttp.HandlerOpts{})))
	}
	api := r.Group("/api")
	{
		api.POST("/research", h.createJob)
		api.GET("/research", h.listJobs)
		api.GET("/research/:id", h.getJob)
		api.GET("/research/:id/logs", h.getJobLogs)
	}
}

// MCPHandler handles MCP protocol requests
func (h *Handler) MCPHandler(c *gin.Context) {
	sessionID := c.GetHeader("Mcp-Session-Id")

	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			Error:   &MCPError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}

	if req.Method == "initialize" {
		if sessionID == "" {
			sessionID = uuid.New().String()

			h.sessionMu.Lock()
			h.sessions[sessionID] = &MCPSession{ID: sessionID, Created: time.Now().Unix()}
			h.sessionMu.Unlock()
		}
		c.Header("Mcp-Session-Id", sessionID)

		c.JSON(http.StatusOK, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"protocolVersion": "2024-11-05",
				"serverInfo": map[string]any{
					"name":    "tiny-deep-research-mcp",
					"version": "1.0.0",
				},
				"capabilities": map[string]any{
					"tools": map[string]any{},
				},
			},
		})
		return
	}

	if sessionID == "" {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: codeBadSession, Message: "Bad Request: No valid session ID provided"},
		})
		return
	}

	h.sessionMu.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionMu.RUnlock()

	if !exists {
		c.JSON(http.StatusBadRequest, MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &MCPError{Code: codeBadSession, Message: "Invalid session ID"},
		})
		return
	}

	switch req.Method {
	case "tools/list":
		h.handleToolsList(c, req)
	case "tools/call":
		h.handleToolsCall(c, req)
	case "ping":
		c.JSON(http.StatusOK, MCPResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
	default:
		h.sendError(c, req.ID, codeMethodNotFound, "Method not found")
	}
}

func (h *Handler) handleToolsList(c *gin.Context, req MCPRequest) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"tools": []map[string]any{
				{
					"name":        "deep_research",
					"description": "Start a deep research job on a topic. Returns the job id; poll it with get_research.",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"query": map[string]any{
								"type":        "string",
								"description": "The research topic or question.",
							},
							"breadth": map[string]any{
								"type":        "number",
								"description": "Number of search queries per level.",
								"default":     DefaultBreadth,
							},
							"depth": map[string]any{
								"type":        "number",
								"description": "Number of follow-up levels.",
								"default":     DefaultDepth,
							},
							"concurrency": map[string]any{
								"type":        "number",
								"description": "Maximum branches researched at once.",
								"default":     DefaultConcurrency,
							},
						},
						"required": []string{"query"},
					},
				},
				{
					"name":        "get_research",
					"description": "Get the status of a research job, and its report once completed.",
					"inputSchema": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id": map[string]any{
								"type":        "string",
								"description": "The job id returned by deep_research.",
							},
						},
						"required": []string{"id"},
					},
				},
			},
		},
	})
}

func (h *Handler) handleToolsCall(c *gin.Context, req MCPRequest) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		h.sendError(c, req.ID, codeInvalidParams, "Invalid params")
		return
	}

	switch params.Name {
	case "deep_research":
		var args CreateJobRequest
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		job, err := h.Service.CreateJob(c.Request.Context(), args)
		if errors.Is(err, ErrInvalidRequest) {
			h.sendError(c, req.ID, codeInvalidParams, err.Error())
			return
		}
		if err != nil {
			h.sendError(c, req.ID, codeInternalError, err.Error())
			return
		}
		h.sendText(c, req.ID, fmt.Sprintf("Research job %s started for %q (breadth %d, depth %d).",
			job.ID, job.Query, job.Breadth, job.Depth))

	case "get_research":
		var args struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "Invalid arguments")
			return
		}
		id, err := uuid.Parse(args.ID)
		if err != nil {
			h.sendError(c, req.ID, codeInvalidParams, "invalid uuid")
			return
		}
		job, err := h.Service.GetJob(c.Request.Context(), id)
		if err != nil {
			h.sendError(c, req.ID, codeInternalError, err.Error())
			return
		}
		h.sendText(c, req.ID, jobSummary(job))

	default:
		h.sendError(c, req.ID, codeMethodNotFound, fmt.Sprintf("Tool not found: %s", params.Name))
	}
}

// jobSummary renders a job for MCP clients: the report when done, otherwise
// the status and progress.
func jobSummary(job *Job) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s: %s\n", job.ID, job.Status)
	switch {
	case job.Status == StatusCompleted && job.Report != nil:
		b.WriteString("\n")
		b.WriteString(*job.Report)
	case job.Status == StatusFailed && job.Error != nil:
		fmt.Fprintf(&b, "Error: %s\n", *job.Error)
	case job.Progress != nil:
		p := job.Progress
		fmt.Fprintf(&b, "Progress: %d/%d queries (depth %d, breadth %d)\n",
			p.CompletedQueries, p.TotalQueries, p.Depth, p.Breadth)
		if p.Query != "" {
			fmt.Fprintf(&b, "Current query: %s\n", p.Query)
		}
	}
	return b.String()
}

func (h *Handler) sendError(c *gin.Context, id any, code int, msg string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &MCPError{Code: code, Message: msg},
	})
}

func (h *Handler) sendText(c *gin.Context, id any, text string) {
	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: map[string]any{
			"content": []map[string]any{
				{
					"type": "text",
					"text": text,
				},
			},
		},
	})
}

func (h *Handler) createJob(c *gin.Context) {
	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.CreateJob(c.Request.Context(), req)
	if errors.Is(err, ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	jobs, err := h.Service.ListJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if jobs == nil {
		jobs = []Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) getJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	job, err := h.Service.GetJob(c.Request.Context(), id)
	if errors.Is(err, ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetJobLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
