package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rawblock/empi-engine/internal/audit"
	"github.com/rawblock/empi-engine/internal/idgen"
	"github.com/rawblock/empi-engine/internal/processor"
	"github.com/rawblock/empi-engine/internal/worker"
	"github.com/rawblock/empi-engine/pkg/models"
)

var bodyValidator = validator.New()

// baseRequest is the shape every POST endpoint's body must satisfy beyond
// its own spec.required fields.
type baseRequest struct {
	User string `validate:"required"`
}

// APIHandler wires the processor, id minter, worker pool, and bulletin hub
// into the HTTP surface.
type APIHandler struct {
	proc   *processor.Processor
	store  processor.Store
	minter *idgen.Minter
	pool   *worker.Pool
	wsHub  *Hub
}

// postSpec describes one POST-capable endpoint: its audit action name, the
// payload fields it requires beyond "user", and the work it dispatches to
// the worker pool.
type postSpec struct {
	action   string
	required []string
	dispatch func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error
}

var postSpecs = map[string]postSpec{
	"demographic": {
		action:   "demographic",
		required: []string{"demographics"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			raw, _ := body["demographics"].([]interface{})
			demos := make([]map[string]interface{}, 0, len(raw))
			for _, r := range raw {
				if m, ok := r.(map[string]interface{}); ok {
					demos = append(demos, m)
				}
			}
			_, err := h.proc.Demographic(ctx, auditor, processor.IngestPayload{Demographics: demos})
			return err
		},
	},
	"activate_demographic": {
		action:   "activate_demographic",
		required: []string{"record_id"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			recordID, err := asInt64(body["record_id"])
			if err != nil {
				return err
			}
			return h.proc.ActivateDemographic(ctx, auditor, recordID)
		},
	},
	"deactivate_demographic": {
		action:   "deactivate_demographic",
		required: []string{"record_id"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			recordID, err := asInt64(body["record_id"])
			if err != nil {
				return err
			}
			return h.proc.DeactivateDemographic(ctx, auditor, recordID)
		},
	},
	"delete_demographic": {
		action:   "delete_demographic",
		required: []string{"record_id"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			recordID, err := asInt64(body["record_id"])
			if err != nil {
				return err
			}
			return h.proc.DeleteDemographic(ctx, auditor, recordID)
		},
	},
	"match_affirm": {
		action:   "match_affirm",
		required: []string{"record_id_low", "record_id_high"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			low, err := asInt64(body["record_id_low"])
			if err != nil {
				return err
			}
			high, err := asInt64(body["record_id_high"])
			if err != nil {
				return err
			}
			return h.proc.AffirmMatching(ctx, auditor, low, high)
		},
	},
	"match_deny": {
		action:   "match_deny",
		required: []string{"record_id_low", "record_id_high"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			low, err := asInt64(body["record_id_low"])
			if err != nil {
				return err
			}
			high, err := asInt64(body["record_id_high"])
			if err != nil {
				return err
			}
			return h.proc.DenyMatching(ctx, auditor, low, high)
		},
	},
	"delete_action": {
		action:   "delete_action",
		required: []string{"batch_id", "proc_id", "action"},
		dispatch: func(ctx context.Context, h *APIHandler, auditor *audit.Auditor, body map[string]interface{}) error {
			batchID, err := asInt64(body["batch_id"])
			if err != nil {
				return err
			}
			procID, err := asInt64(body["proc_id"])
			if err != nil {
				return err
			}
			action, _ := body["action"].(string)
			return h.proc.DeleteAction(ctx, auditor, batchID, procID, action)
		},
	},
}

// getEndpoints lists every endpoint served by a GET query: one per entry of
// models.TableNames, archive_demographic included.
var getEndpoints = []models.Endpoint{
	models.EndpointDemographic,
	models.EndpointArchiveDemo,
	models.EndpointMatchAffirm,
	models.EndpointMatchDeny,
	models.EndpointDeleteAction,
	models.EndpointBatch,
	models.EndpointBulletin,
	models.EndpointProcess,
	models.EndpointEnterpriseGroup,
	models.EndpointEnterpriseMatch,
	models.EndpointEtlIDSource,
	models.EndpointTelecom,
	models.EndpointCrosswalk,
	models.EndpointCrosswalkBind,
}

// SetupRouter builds the gin engine: CORS, public health/stream endpoints,
// bearer-auth + rate-limited POST/GET groups for every EMPI operation.
func SetupRouter(proc *processor.Processor, store processor.Store, minter *idgen.Minter, pool *worker.Pool, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)
		c.Next()
	})

	allowedOrigins := os.Getenv("EMPI_ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h := &APIHandler{proc: proc, store: store, minter: minter, pool: pool, wsHub: wsHub}

	pub := r.Group("/api_v1")
	{
		pub.GET("/health", h.handleHealth)
		pub.GET("/bulletin/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api_v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		for name, spec := range postSpecs {
			auth.POST("/"+name, h.handlePost(name, spec))
		}
		for _, ep := range getEndpoints {
			auth.GET("/"+string(ep), h.handleGet(ep))
		}
		auth.POST("/update_status", h.handleUpdateStatus)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "operational", "engine": "empi-engine"})
}

// handlePost returns a Gin handler that opens an audit scope, dispatches the
// row-processing work to the worker pool, and responds with the batch key
// immediately — it never waits for the work to finish.
func (h *APIHandler) handlePost(name string, spec postSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "request body is not valid JSON"})
			return
		}

		user, _ := body["user"].(string)
		if err := bodyValidator.Struct(baseRequest{User: user}); err != nil {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "missing required field \"user\""})
			return
		}
		for _, field := range spec.required {
			if _, ok := body[field]; !ok {
				c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": fmt.Sprintf("missing required field %q", field)})
				return
			}
		}

		auditor, err := audit.New(c.Request.Context(), h.store, h.minter, user, spec.action)
		if err != nil {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": err.Error()})
			return
		}

		submitted := h.pool.Submit(func(jobCtx context.Context) {
			var runErr error
			defer auditor.Close(&runErr)
			runErr = spec.dispatch(jobCtx, h, auditor, body)
		})
		if !submitted {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "dispatch queue is full"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"batch_key": auditor.BatchID, "status": "dispatched"})
	}
}

func (h *APIHandler) handleUpdateStatus(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "request body is not valid JSON"})
		return
	}
	batchID, err := asInt64(body["batch_id"])
	if err != nil {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": err.Error()})
		return
	}
	procID, err := asInt64(body["proc_id"])
	if err != nil {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": err.Error()})
		return
	}
	status, _ := body["status"].(string)
	if status == "" {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": "missing required field \"status\""})
		return
	}
	if err := h.proc.UpdateStatus(c.Request.Context(), batchID, procID, status); err != nil {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_key": batchID, "status": "ok"})
}

// handleGet returns a Gin handler that builds an equality filter from the
// request's query parameters and runs it against endpoint.
func (h *APIHandler) handleGet(endpoint models.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := make(map[string]interface{})
		for key, values := range c.Request.URL.Query() {
			if len(values) > 0 {
				filter[key] = values[0]
			}
		}
		records, err := h.proc.QueryRecords(c.Request.Context(), endpoint, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "response": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "response": records})
	}
}

// asInt64 converts a JSON-decoded numeric field (always float64 after
// encoding/json unmarshals into interface{}) to an int64 record id.
func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", n)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("expected an integer id, got %T", v)
	}
}
