package processor

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrInvalidUser      = errors.New("用户ID无效")
	ErrEmptyFile        = errors.New("上传文件为空")
	ErrFileTooLarge     = errors.New("上传文件过大")
	ErrFileNameTooLong  = errors.New("文件名过长")
	ErrNoteTooLong      = errors.New("版本备注过长")
	ErrUploadInProgress = errors.New("该用户已有简历正在上传处理")
	ErrPersistFailed    = errors.New("简历数据保存失败")
	ErrVersionNotFound  = errors.New("简历版本不存在")
	ErrNoParsedData     = errors.New("该版本没有可用的解析结果")
	ErrFileNotArchived  = errors.New("该版本没有归档原始文件")
	ErrStorageNotInit   = errors.New("对象存储未初始化")
)

// OpAnalyze 分析流水线或报告生成失败时的 Op
const OpAnalyze = "analyze"

// ResumeProcessError 包含详细错误信息的自定义错误
type ResumeProcessError struct {
	UserID  uint64
	Op      string
	BaseErr error
	Detail  string
}

func (e *ResumeProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 用户:%d): %s", e.BaseErr, e.Op, e.UserID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 用户:%d)", e.BaseErr, e.Op, e.UserID)
}

func (e *ResumeProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *ResumeProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数

// NewAnalyzeError 流水线失败，保留底层错误以便区分无法读取的文件和模型调用失败
func NewAnalyzeError(userID uint64, err error) error {
	return &ResumeProcessError{
		UserID:  userID,
		Op:      OpAnalyze,
		BaseErr: err,
	}
}

func NewPersistError(userID uint64, op string, err error) error {
	return &ResumeProcessError{
		UserID:  userID,
		Op:      op,
		BaseErr: ErrPersistFailed,
		Detail:  err.Error(),
	}
}

func NewVersionNotFoundError(userID, versionID uint64) error {
	return &ResumeProcessError{
		UserID:  userID,
		Op:      "version",
		BaseErr: ErrVersionNotFound,
		Detail:  fmt.Sprintf("版本ID:%d", versionID),
	}
}
