package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (POST /api/analyze-rag)
	PostAnalyzeRag(c *gin.Context, params PostAnalyzeRagParams)
	// (POST /api/chatbot)
	PostChatbot(c *gin.Context)
	// (GET /api/security-findings)
	GetSecurityFindings(c *gin.Context)
	// (GET /api/analyses)
	GetAnalyses(c *gin.Context, params GetAnalysesParams)
	// (GET /api/analyses/{id})
	GetAnalysis(c *gin.Context, id string)
	// (GET /api/openapi.json)
	GetOpenAPI(c *gin.Context)
}

type MiddlewareFunc func(c *gin.Context)

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return false
		}
	}
	return true
}

// PostAnalyzeRag operation middleware
func (siw *ServerInterfaceWrapper) PostAnalyzeRag(c *gin.Context) {
	var params PostAnalyzeRagParams

	// ------------- Optional query parameter "mode" -------------
	err := runtime.BindQueryParameter("form", true, false, "mode", c.Request.URL.Query(), &params.Mode)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("invalid format for parameter mode: %w", err), http.StatusBadRequest)
		return
	}
	if params.Mode != nil && !params.Mode.Valid() {
		siw.ErrorHandler(c, fmt.Errorf("unknown mode %q", *params.Mode), http.StatusBadRequest)
		return
	}

	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.PostAnalyzeRag(c, params)
}

// PostChatbot operation middleware
func (siw *ServerInterfaceWrapper) PostChatbot(c *gin.Context) {
	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.PostChatbot(c)
}

// GetSecurityFindings operation middleware
func (siw *ServerInterfaceWrapper) GetSecurityFindings(c *gin.Context) {
	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetSecurityFindings(c)
}

// GetAnalyses operation middleware
func (siw *ServerInterfaceWrapper) GetAnalyses(c *gin.Context) {
	var params GetAnalysesParams

	// ------------- Optional query parameter "limit" -------------
	err := runtime.BindQueryParameter("form", true, false, "limit", c.Request.URL.Query(), &params.Limit)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("invalid format for parameter limit: %w", err), http.StatusBadRequest)
		return
	}

	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetAnalyses(c, params)
}

// GetAnalysis operation middleware
func (siw *ServerInterfaceWrapper) GetAnalysis(c *gin.Context) {
	var id string

	// ------------- Path parameter "id" -------------
	err := runtime.BindStyledParameterWithOptions("simple", "id", c.Param("id"), &id, runtime.BindStyledParameterOptions{Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("invalid format for parameter id: %w", err), http.StatusBadRequest)
		return
	}

	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetAnalysis(c, id)
}

// GetOpenAPI operation middleware
func (siw *ServerInterfaceWrapper) GetOpenAPI(c *gin.Context) {
	if !siw.runMiddlewares(c) {
		return
	}
	siw.Handler.GetOpenAPI(c)
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers creates http.Handler with routing matching the OpenAPI document.
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, Error{Error: http.StatusText(statusCode), Detail: err.Error()})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.POST(options.BaseURL+"/api/analyze-rag", wrapper.PostAnalyzeRag)
	router.POST(options.BaseURL+"/api/chatbot", wrapper.PostChatbot)
	router.GET(options.BaseURL+"/api/security-findings", wrapper.GetSecurityFindings)
	router.GET(options.BaseURL+"/api/analyses", wrapper.GetAnalyses)
	router.GET(options.BaseURL+"/api/analyses/:id", wrapper.GetAnalysis)
	router.GET(options.BaseURL+"/api/openapi.json", wrapper.GetOpenAPI)
}
