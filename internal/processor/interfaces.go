package processor

import (
	"context"
	"log"

	"resume-matcher-go/internal/parser"
	"resume-matcher-go/internal/storage"
	"resume-matcher-go/internal/types"
)

//
// 文档转换相关接口
//

// DocumentConverter 文档转文本接口，复用parser包的定义
type DocumentConverter = parser.DocumentConverter

// FallbackExtractor 纯文本兜底提取接口，主转换器失败或产出为空时使用
type FallbackExtractor interface {
	// ExtractText 尽力从PDF文件提取纯文本，失败时返回空串
	ExtractText(filePath string) string
}

//
// 结构化提取相关接口
//

// StructuredExtractor LLM结构化提取接口
type StructuredExtractor interface {
	// ExtractStructured 从简历文本提取结构化数据
	// 返回解析后的map和LLM原始JSON（保留键序，供修复逻辑使用）
	ExtractStructured(ctx context.Context, markdownText string) (map[string]any, []byte, error)
}

// ProjectRepairer 项目经历修复接口
type ProjectRepairer interface {
	// RepairProjects 当personalProjects为空时，尝试从customSections找回项目条目
	RepairProjects(result map[string]any, rawJSON []byte) map[string]any
}

//
// 渲染与嵌入相关接口
//

// ResumeRenderer 结构化简历渲染接口
type ResumeRenderer interface {
	// Render 将结构化简历渲染为Markdown
	Render(resume *types.NormalizedResume) string
}

// MetadataEmbedder PDF元数据嵌入/提取接口
type MetadataEmbedder interface {
	// Embed 将结构化简历写入PDF元数据，返回新的PDF字节
	Embed(pdfData []byte, resumeData map[string]any, sourceResumeID string) ([]byte, error)

	// Extract 从PDF元数据读取嵌入的简历数据
	// 未找到时返回 (nil, nil)；找到但校验失败时返回错误
	Extract(filename string, pdfData []byte) (*types.NormalizedResume, error)
}

// Components 聚合所有功能组件依赖，便于集中管理和测试替换
type Components struct {
	// 核心组件接口
	Converter DocumentConverter   // 文档转文本
	Fallback  FallbackExtractor   // 文本提取兜底
	Extractor StructuredExtractor // LLM结构化提取
	Repairer  ProjectRepairer     // 项目经历修复
	Renderer  ResumeRenderer      // Markdown渲染
	Embedder  MetadataEmbedder    // PDF元数据嵌入

	// 存储层依赖
	Storage *storage.Storage // 聚合的存储服务
}

// Settings 纯配置项，不包含任何业务逻辑组件
type Settings struct {
	Debug  bool        // 是否开启调试模式
	Logger *log.Logger // 日志记录器
}
