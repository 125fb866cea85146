package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"career-agent-go/internal/api/middleware"
	"career-agent-go/internal/extractor"
	"career-agent-go/internal/llm"
	"career-agent-go/internal/normalizer"
	"career-agent-go/internal/pipeline"
)

// 处理提取文本命令
func runExtract() error {
	data, err := readInput()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ext, err := extractor.NewFromConfig(ctx, cfg.Extractor)
	if err != nil {
		return fmt.Errorf("创建文本提取器失败: %w", err)
	}

	start := time.Now()
	text, err := ext.Extract(ctx, data, filepath.Base(*filePath), mimeOf(*filePath))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "提取完成! 耗时: %v, 总计 %d 字符\n", time.Since(start), len([]rune(text)))

	if *maxLen >= 0 {
		if runes := []rune(text); len(runes) > *maxLen {
			text = string(runes[:*maxLen]) + "\n...(已截断)"
		}
	}
	fmt.Println(text)
	return nil
}

// 规范化一份保存下来的模型输出
func runNormalize() error {
	data, err := readInput()
	if err != nil {
		return err
	}
	return printJSON(normalizer.Normalize(string(data)))
}

// 对单个文件执行完整流水线，不写数据库
func runAnalyze() error {
	data, err := readInput()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	timeout := cfg.LLMTimeout()*2 + 30*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ext, err := extractor.NewFromConfig(ctx, cfg.Extractor)
	if err != nil {
		return fmt.Errorf("创建文本提取器失败: %w", err)
	}
	client, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("创建大模型客户端失败: %w", err)
	}

	p := pipeline.New(ext, client)
	start := time.Now()
	result, err := p.Analyze(ctx, pipeline.Document{
		Data:     data,
		Filename: filepath.Base(*filePath),
		MimeType: mimeOf(*filePath),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "分析完成! 模型: %s, 耗时: %v\n", p.ModelName(), time.Since(start))

	out := map[string]interface{}{
		"parsed":       result.Parsed,
		"report":       result.Report,
		"reportStatus": result.ReportStatus(),
	}
	if result.ReportErr != nil {
		out["reportError"] = result.ReportErr.Error()
	}
	return printJSON(out)
}

// 按配置中的密钥签发调试令牌
func runToken() error {
	if *userID == 0 {
		return fmt.Errorf("必须通过 --user 指定用户ID")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ttl := *tokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer, *userID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func mimeOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" {
		return "text/markdown"
	}
	return mime.TypeByExtension(ext)
}
