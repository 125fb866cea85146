package handler

import (
	"context"
	"errors"

	"career-agent-go/internal/extractor"
	"career-agent-go/internal/logger"
	"career-agent-go/internal/processor"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Response 统一响应结构，成功时 code 为0
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func writeOK(c *app.RequestContext, data interface{}) {
	c.JSON(consts.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func writeError(c *app.RequestContext, status int, message string) {
	c.JSON(status, Response{Code: status, Message: message, Data: nil})
}

// writeServiceError 把服务层错误映射为HTTP状态码
func writeServiceError(ctx context.Context, c *app.RequestContext, err error) {
	status, message := statusOf(err)
	event := logger.Ctx(ctx).Warn()
	if status >= consts.StatusInternalServerError {
		event = logger.Ctx(ctx).Error()
	}
	event.Err(err).Int("status", status).Str("path", string(c.Path())).Msg("请求处理失败")
	writeError(c, status, message)
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, processor.ErrInvalidUser):
		return consts.StatusUnauthorized, "用户身份无效"
	case errors.Is(err, processor.ErrEmptyFile):
		return consts.StatusBadRequest, "上传文件为空"
	case errors.Is(err, processor.ErrFileNameTooLong):
		return consts.StatusBadRequest, "文件名过长"
	case errors.Is(err, processor.ErrNoteTooLong):
		return consts.StatusBadRequest, "版本备注过长"
	case errors.Is(err, processor.ErrFileTooLarge):
		return consts.StatusRequestEntityTooLarge, "上传文件过大"
	case errors.Is(err, extractor.ErrUnreadableDocument):
		return consts.StatusUnprocessableEntity, "无法读取简历文件内容"
	case errors.Is(err, processor.ErrUploadInProgress):
		return consts.StatusConflict, "已有简历正在处理，请稍后再试"
	case errors.Is(err, processor.ErrVersionNotFound):
		return consts.StatusNotFound, "简历版本不存在"
	case errors.Is(err, processor.ErrFileNotArchived):
		return consts.StatusNotFound, "该版本没有原始文件"
	case errors.Is(err, processor.ErrNoParsedData):
		return consts.StatusUnprocessableEntity, "该版本没有可用的解析结果"
	case errors.Is(err, processor.ErrStorageNotInit):
		return consts.StatusServiceUnavailable, "文件存储不可用"
	case errors.Is(err, processor.ErrPersistFailed):
		return consts.StatusInternalServerError, "简历数据保存失败"
	}

	// 大模型调用失败
	var pe *processor.ResumeProcessError
	if errors.As(err, &pe) && pe.Op == processor.OpAnalyze {
		return consts.StatusBadGateway, "简历分析服务暂时不可用"
	}
	return consts.StatusInternalServerError, "服务器内部错误"
}
