// Copyright (c) SceneFlow Authors.
// Licensed under the MIT License.

/*
Package proxy 提供两类服务端转发：面向浏览器的文件代理与面向厂商任务
API 的后端代理。

# 文件代理

FileProxy 处理 GET /proxy?url=…，把目标资源流式转发给浏览器。响应头只
透传白名单内的六项（content-type、content-length、content-disposition、
cache-control、etag、last-modified），上游的 CORS 与 Transfer-Encoding
头一律丢弃 — 网关有自己的 CORS 中间件，叠加转发会在浏览器侧产生
双重编码伪影。模型文件可达数百 MB，转发客户端不设全局超时，下载的
生命周期完全由请求 ctx 管理。

# 后端代理

Backend 把 /upload、/task、/task/{id} 转发给厂商 API，在出站请求上注入
服务端保管的 Bearer 密钥 — 浏览器永远接触不到真实 Key，客户端带来的
Authorization 头也绝不透传给厂商。GET /task/{id} 的终态结果可选地缓存
进 Redis：任务一旦 completed/error 便不再变化，命中直接省掉一次厂商
往返；缓存故障透明退化为直连。

两个代理都不解析厂商信封的业务语义（终态缓存判定所需的最小解码除外），
成功与失败一律按原状态码透传，错误分类交给 gen.Client。
*/
package proxy
