// 版权所有 2025 SceneFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 是 SceneFlow 的 Redis 访问层，眼下只服务一个场景：
生成后端的终态任务记录。completed/error 状态的任务查询结果
永不再变，代理层把它们写进来，后续同 ID 查询不再打上游。

# 概述

Manager 包住 go-redis 客户端：建连时 Ping 验证可达性，运行期
由后台 goroutine 周期探活，Close 后所有操作返回 ErrClosed。
读写有字符串和 JSON 两套入口，键名走 TaskKey 统一拼前缀。

# 核心类型

  - Manager：连接持有者。Get/Set/Delete 操作字符串值，
    GetJSON/SetJSON 负责序列化往返；Ping 暴露给就绪检查。
  - Config：地址、密码、库号、连接池参数（PoolSize 与
    MinIdleConns）、默认 TTL 和探活间隔。

# 错误语义

  - 键不存在统一折算成 ErrCacheMiss，调用方用 IsCacheMiss
    区分未命中与真实故障。
  - 关闭后的任何调用返回 ErrClosed；Close 本身幂等。
  - Set 未显式给 TTL 时落 Config.DefaultTTL，终态记录不做
    永久驻留。
*/
package cache
