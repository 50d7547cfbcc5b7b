// Package api 通过 HTTP 暴露聚合后的工具集：工具列表、同步调用、
// 排队调用的提交与查询，以及健康检查和指标端点。
package api
