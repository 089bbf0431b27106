package server

import (
	"errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"media-orchestrator/dto"
	"media-orchestrator/pkg/validation"
	"media-orchestrator/service"
	"net/http"
	"time"
)

func newRouter(mediaService service.MediaService, uploadService service.UploadService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	addHealth(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/v1/raw-media", listRawMedia(mediaService))
	r.POST("/api/v1/upload", generateUploadURL(uploadService))

	return r
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func listRawMedia(mediaService service.MediaService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query dto.PageQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if err := validation.ValidateStruct(query); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid paging parameters", validation.Fields(err))
			return
		}

		page, err := mediaService.FindAll(c.Request.Context(), query.Page, query.Size)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("failed to list raw media")
			abortWithError(c, http.StatusInternalServerError, "could not list raw media", nil)
			return
		}

		c.JSON(http.StatusOK, dto.PageOf(page, dto.RawMediaFrom))
	}
}

func generateUploadURL(uploadService service.UploadService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.UploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		if err := validation.ValidateStruct(req); err != nil {
			abortWithError(c, http.StatusBadRequest, "validation error", validation.Fields(err))
			return
		}

		presigned, err := uploadService.GeneratePresignedURL(c.Request.Context(), req)
		switch {
		case errors.Is(err, service.ErrInvalidUpload):
			abortWithError(c, http.StatusBadRequest, err.Error(), nil)
			return
		case errors.Is(err, service.ErrPresignedURLFailed):
			abortWithError(c, http.StatusBadGateway, "could not generate upload url", nil)
			return
		case err != nil:
			abortWithError(c, http.StatusInternalServerError, "could not generate upload url", nil)
			return
		}

		c.JSON(http.StatusCreated, presigned)
	}
}

func abortWithError(c *gin.Context, status int, msg string, fields map[string]string) {
	c.AbortWithStatusJSON(status, dto.ApiError{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     msg,
		Path:      c.Request.URL.Path,
		Fields:    fields,
	})
}
