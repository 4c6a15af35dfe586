package router

import (
	"context"

	"resume-matcher-go/internal/api/handler"
	"resume-matcher-go/internal/config"
	"resume-matcher-go/internal/logger"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册所有HTTP路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, resumeHandler *handler.ResumeHandler) {
	api := h.Group("/api/v1")

	// 配置了api_key时，所有业务接口要求Bearer鉴权
	if cfg.Server.APIKey != "" {
		expectedKey := cfg.Server.APIKey
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == expectedKey, nil
			}),
		))
	}
	{
		resumes := api.Group("/resumes")
		{
			// 上传简历，异步处理
			resumes.POST("/upload", func(ctx context.Context, c *app.RequestContext) {
				fileHeader, err := c.FormFile("file")
				if err != nil {
					c.JSON(consts.StatusBadRequest, utils.H{"error": "缺少file字段"})
					return
				}
				file, err := fileHeader.Open()
				if err != nil {
					c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开上传文件失败"})
					return
				}
				defer file.Close()

				sourceChannel := c.PostForm("source_channel")

				resp, err := resumeHandler.HandleResumeUpload(ctx, file, fileHeader.Size, fileHeader.Filename, sourceChannel)
				if err != nil {
					logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("简历上传处理失败")
					c.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
					return
				}
				c.JSON(consts.StatusOK, resp)
			})

			// 同步解析，不落库，内嵌数据的PDF毫秒级返回
			resumes.POST("/parse", func(ctx context.Context, c *app.RequestContext) {
				fileHeader, err := c.FormFile("file")
				if err != nil {
					c.JSON(consts.StatusBadRequest, utils.H{"error": "缺少file字段"})
					return
				}
				file, err := fileHeader.Open()
				if err != nil {
					c.JSON(consts.StatusInternalServerError, utils.H{"error": "打开上传文件失败"})
					return
				}
				defer file.Close()

				resp, err := resumeHandler.HandleParseDocument(ctx, file, fileHeader.Filename)
				if err != nil {
					logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("同步解析失败")
					c.JSON(consts.StatusUnprocessableEntity, utils.H{"error": err.Error()})
					return
				}
				c.JSON(consts.StatusOK, resp)
			})

			// 查询处理状态和结构化结果
			resumes.GET("/:uuid", func(ctx context.Context, c *app.RequestContext) {
				submissionUUID := c.Param("uuid")
				includeMarkdown := c.Query("include_markdown") == "true"

				resp, err := resumeHandler.HandleGetResume(ctx, submissionUUID, includeMarkdown)
				if err != nil {
					c.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
					return
				}
				c.JSON(consts.StatusOK, resp)
			})

			// 导出带内嵌结构化数据的PDF，默认直接返回PDF字节流
			// format=json时只返回元信息和预签名下载链接
			resumes.POST("/:uuid/export", func(ctx context.Context, c *app.RequestContext) {
				submissionUUID := c.Param("uuid")

				resp, pdfData, err := resumeHandler.HandleExportResume(ctx, submissionUUID)
				if err != nil {
					logger.Error().Err(err).Str("submission_uuid", submissionUUID).Msg("简历导出失败")
					c.JSON(consts.StatusUnprocessableEntity, utils.H{"error": err.Error()})
					return
				}

				if c.Query("format") == "json" {
					c.JSON(consts.StatusOK, resp)
					return
				}
				c.Header("Content-Disposition", `attachment; filename="resume_`+submissionUUID+`.pdf"`)
				c.Data(consts.StatusOK, "application/pdf", pdfData)
			})
		}
	}

	// 健康检查
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		status, healthy := resumeHandler.HandleHealth(ctx)
		code := consts.StatusOK
		if !healthy {
			code = consts.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
}
