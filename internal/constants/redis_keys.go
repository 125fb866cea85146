package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"

	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyResumeUploadLock 用户上传/重新生成报告的互斥锁 (STRING)
	// 格式: app:resume:lock:{userID}
	KeyResumeUploadLock = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityLock + ":%d"
)
