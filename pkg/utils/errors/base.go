package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// 通用错误（服务代码 00）。
var (
	OK = &Errno{Code: 0, HTTP: http.StatusOK, GRPCCode: codes.OK, MessageEN: "success", MessageRU: "успешно"}

	ErrInvalidParam = define(ServiceCommon, CategoryRequest, 1, "Invalid parameter", "Неверный параметр")
	ErrNotFound     = define(ServiceCommon, CategoryResource, 1, "Resource not found", "Ресурс не найден")
	ErrInternal     = define(ServiceCommon, CategoryInternal, 1, "Internal server error", "Внутренняя ошибка")
	ErrConfig       = define(ServiceCommon, CategoryConfig, 1, "Invalid configuration", "Неверная конфигурация")
)
