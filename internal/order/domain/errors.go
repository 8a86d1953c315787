package domain

import "errors"

// ErrValidation 订单字段或类型参数非法，客户端修正输入后可重试
var ErrValidation = errors.New("order validation failed")

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = errors.New("order not found")

// ErrUnauthorized 订单不属于请求用户
var ErrUnauthorized = errors.New("order does not belong to user")
