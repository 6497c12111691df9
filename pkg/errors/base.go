package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 通用错误，服务代码 00，由框架层（路由、中间件、探针）返回。
var (
	OK = Register(New(0, http.StatusOK, codes.OK, "Success", "成功"))

	ErrRequestTooLarge = Register(New(MakeCode(ServiceCommon, CategoryRequest, 5), http.StatusRequestEntityTooLarge, codes.InvalidArgument, "Request entity too large", "请求体过大"))
	ErrRouteNotFound   = Register(New(MakeCode(ServiceCommon, CategoryResource, 4), http.StatusNotFound, codes.NotFound, "Route not found", "路由不存在"))

	// ErrInternal 是 FromError 对非 Errno 错误的兜底。
	ErrInternal = Register(New(MakeCode(ServiceCommon, CategoryInternal, 0), http.StatusInternalServerError, codes.Internal, "Internal server error", "服务器内部错误"))
	ErrPanic    = Register(New(MakeCode(ServiceCommon, CategoryInternal, 2), http.StatusInternalServerError, codes.Internal, "Service panic", "服务崩溃"))

	// ErrServiceUnavailable 就绪探针失败。
	ErrServiceUnavailable = Register(New(MakeCode(ServiceCommon, CategoryNetwork, 1), http.StatusServiceUnavailable, codes.Unavailable, "Service unavailable", "服务不可用"))
)
