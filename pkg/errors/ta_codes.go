package errors

import "google.golang.org/grpc/codes"

// Virtual TA 服务代码: 20 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 20
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求参数错误 (类别 01)
	ErrTAInvalidRequest = Register(New(MakeCode(ServiceVirtualTA, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid request format", "请求格式无效"))

	// 资源加载错误 (类别 10)
	ErrResourceUnavailable = Register(New(MakeCode(ServiceVirtualTA, CategoryNetwork, 1), 503, codes.Unavailable, "Resource unavailable", "资源不可用"))
	ErrResourceUnknown     = Register(New(MakeCode(ServiceVirtualTA, CategoryInternal, 1), 500, codes.Internal, "Resource not registered", "资源未注册"))

	// 推理池错误 (类别 06)
	ErrInferenceOverloaded = Register(New(MakeCode(ServiceVirtualTA, CategoryRateLimit, 1), 503, codes.ResourceExhausted, "Inference capacity exhausted, retry later", "推理容量已满，请稍后重试"))

	// 查询相关错误
	ErrQueryTimeout = Register(New(MakeCode(ServiceVirtualTA, CategoryTimeout, 1), 504, codes.DeadlineExceeded, "Query timeout", "查询超时"))
	ErrQueryFailed  = Register(New(MakeCode(ServiceVirtualTA, CategoryInternal, 2), 500, codes.Internal, "Query failed", "查询失败"))

	// 索引相关错误
	ErrIndexCorrupt   = Register(New(MakeCode(ServiceVirtualTA, CategoryInternal, 3), 500, codes.DataLoss, "Index artifact corrupt", "索引文件损坏"))
	ErrIndexDimension = Register(New(MakeCode(ServiceVirtualTA, CategoryInternal, 4), 500, codes.FailedPrecondition, "Embedding dimension mismatch", "向量维度不匹配"))
	ErrIndexBuild     = Register(New(MakeCode(ServiceVirtualTA, CategoryInternal, 5), 500, codes.Internal, "Index build failed", "索引构建失败"))
)
