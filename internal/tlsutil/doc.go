// Package tlsutil 统一管理出站连接的 TLS 姿势：
// 任务后端、厂商代理、模型文件下载共用同一份加固配置（TLS 1.2+，仅 AEAD 套件），
// 避免各处自建 http.Client 时把安全参数悄悄放宽。
package tlsutil
