// resumeprocessor 本地调试简历分析流水线的命令行工具
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"career-agent-go/internal/config"
	"career-agent-go/internal/logger"

	"github.com/spf13/pflag"
)

// 命令行参数定义
var (
	command    = pflag.String("cmd", "analyze", "执行的命令: extract=仅提取文本, normalize=规范化模型输出, analyze=完整流水线, token=签发调试令牌")
	filePath   = pflag.StringP("file", "f", "", "输入文件路径")
	configPath = pflag.StringP("config", "c", "", "配置文件路径，为空时自动查找")
	mockLLM    = pflag.Bool("mock", false, "使用 mock 大模型客户端")
	maxLen     = pflag.Int("maxlen", -1, "extract 输出的最大字符数，-1 表示全部")
	userID     = pflag.Uint64("user", 0, "token 命令的用户ID")
	tokenTTL   = pflag.Duration("ttl", 0, "token 命令的有效期，默认24小时")
)

func main() {
	pflag.Parse()
	logger.Init(logger.Config{Level: "warn", Format: "pretty"})

	var err error
	switch *command {
	case "extract":
		err = runExtract()
	case "normalize":
		err = runNormalize()
	case "analyze":
		err = runAnalyze()
	case "token":
		err = runToken()
	default:
		err = fmt.Errorf("未知命令 '%s'。支持的命令: extract, normalize, analyze, token", *command)
		pflag.Usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if *mockLLM {
		cfg.LLM.MockMode = true
	}
	return cfg, nil
}

func readInput() ([]byte, error) {
	if *filePath == "" {
		return nil, fmt.Errorf("必须通过 --file 指定输入文件")
	}
	return os.ReadFile(*filePath)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
