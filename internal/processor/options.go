package processor

import (
	"io"
	"log"

	"resume-matcher-go/internal/storage"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// NewComponents 以选项方式组装组件集合
func NewComponents(opts ...ComponentOpt) Components {
	c := Components{}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// ----- 组件选项 -----

// WithcompConverter 设置文档转换器组件
func WithcompConverter(converter DocumentConverter) ComponentOpt {
	return func(c *Components) {
		c.Converter = converter
	}
}

// WithcompFallback 设置文本提取兜底组件
func WithcompFallback(fallback FallbackExtractor) ComponentOpt {
	return func(c *Components) {
		c.Fallback = fallback
	}
}

// WithcompExtractor 设置LLM结构化提取器组件
func WithcompExtractor(extractor StructuredExtractor) ComponentOpt {
	return func(c *Components) {
		c.Extractor = extractor
	}
}

// WithcompRepairer 设置项目经历修复组件
func WithcompRepairer(repairer ProjectRepairer) ComponentOpt {
	return func(c *Components) {
		c.Repairer = repairer
	}
}

// WithcompRenderer 设置Markdown渲染组件
func WithcompRenderer(renderer ResumeRenderer) ComponentOpt {
	return func(c *Components) {
		c.Renderer = renderer
	}
}

// WithcompEmbedder 设置PDF元数据嵌入组件
func WithcompEmbedder(embedder MetadataEmbedder) ComponentOpt {
	return func(c *Components) {
		c.Embedder = embedder
	}
}

// WithcompStorage 设置存储组件
func WithcompStorage(storage *storage.Storage) ComponentOpt {
	return func(c *Components) {
		c.Storage = storage
	}
}

// ----- 设置选项 -----

// WithsetDebug 设置调试模式
func WithsetDebug(debug bool) SettingOpt {
	return func(s *Settings) {
		s.Debug = debug
	}
}

// WithsetLogger 设置日志记录器
func WithsetLogger(logger *log.Logger) SettingOpt {
	return func(s *Settings) {
		if logger != nil {
			s.Logger = logger
		} else {
			// 防止nil logger引发panic
			s.Logger = log.New(io.Discard, "", 0)
		}
	}
}
