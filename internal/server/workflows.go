package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/kode4food/flume/internal/registry"
	"github.com/kode4food/flume/internal/store"
	"github.com/kode4food/flume/pkg/api"
)

// Registry is the slice of the workflow registry the HTTP layer needs
type Registry interface {
	Define(
		ctx context.Context, name string, steps []api.StepRef,
	) (api.WorkflowID, error)
	List(ctx context.Context) []*api.Workflow
}

var (
	ErrInvalidJSON  = errors.New("invalid JSON payload")
	ErrStartFailed  = errors.New("failed to start workflow")
	ErrQueryCurrent = errors.New("failed to query current data")
)

func (s *Server) defineWorkflow(c *gin.Context) {
	var req api.DefineWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	id, err := s.registry.Define(c.Request.Context(), req.Name, req.Steps)
	if err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusBadRequest,
		})
		return
	}

	c.JSON(http.StatusOK, api.WorkflowDefinedResponse{
		WorkflowID: id,
	})
}

func (s *Server) startWorkflow(c *gin.Context) {
	var req api.StartWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Status: http.StatusBadRequest,
		})
		return
	}

	id, err := s.coordinator.Start(c.Request.Context(), req.Name, req.Data)
	if err == nil {
		c.JSON(http.StatusOK, api.WorkflowStartedResponse{
			ExecutionID: id,
		})
		return
	}

	if errors.Is(err, registry.ErrWorkflowNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrStartFailed, err),
		Status: http.StatusInternalServerError,
	})
}

func (s *Server) executionStatus(c *gin.Context) {
	id := api.ExecutionID(c.Param("executionID"))

	rec, err := s.coordinator.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, api.ErrorResponse{
				Error:  err.Error(),
				Status: http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusInternalServerError,
		})
		return
	}

	if path := c.Query("path"); path != "" {
		s.queryCurrent(c, rec, path)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// queryCurrent extracts a value from the record's current data using a
// gjson path expression
func (s *Server) queryCurrent(c *gin.Context, rec *api.Execution, path string) {
	data, err := json.Marshal(rec.Current)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error:  fmt.Sprintf("%s: %v", ErrQueryCurrent, err),
			Status: http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, api.QueryResponse{
		ExecutionID: rec.ID,
		Status:      rec.Status,
		Path:        path,
		Value:       gjson.GetBytes(data, path).Value(),
	})
}

func (s *Server) listWorkflows(c *gin.Context) {
	flows := s.registry.List(c.Request.Context())
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: flows,
		Count:     len(flows),
	})
}
